package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/localnerve/meddb/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// tokenHandler serves a Keycloak style token endpoint and counts token requests.
func tokenHandler(t *testing.T, count *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad token form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("Expected client_credentials grant, got %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_id") != "meddb" {
			t.Errorf("Expected client id in params, got %q", r.PostForm.Get("client_id"))
		}
		count.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	}
}

const deltaFixture = `{
	"graphQueryResult": [{
		"instances": [
			{
				"identity": {"name": "Jane Smith"},
				"inTypeRefs": [
					{"userKey": "APOS-Types-User-TypeRelation-Person", "targetObject": {"identity": {"userKey": "DQ1234"}}},
					{"userKey": "APOS-Types-Engagement-TypeRelation-Person", "targetObject": {
						"state": "STATE_ACTIVE",
						"attributes": [{"userKey": "APOS-Types-Engagement-Attribute-Email", "value": "j.smith@org.dk"}],
						"typeRefs": [{"userKey": "APOS-Types-Engagement-TypeRelation-AdmUnit", "targetObject": {"identity": {"name": "Rådhuset"}}}]
					}}
				]
			},
			{
				"identity": {"name": "No Engagement"},
				"inTypeRefs": []
			},
			{
				"identity": {"name": "Inactive"},
				"inTypeRefs": [
					{"userKey": "APOS-Types-Engagement-TypeRelation-Person", "targetObject": {
						"state": "STATE_INACTIVE",
						"attributes": [{"userKey": "APOS-Types-Engagement-Attribute-Email", "value": "old@org.dk"}],
						"typeRefs": [{"userKey": "APOS-Types-Engagement-TypeRelation-AdmUnit", "targetObject": {"identity": {"name": "Gammel"}}}]
					}}
				]
			}
		]
	}]
}`

func newDeltaServer(t *testing.T, tokens *atomic.Int32, onQuery func(deltaRequest)) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/kommune/protocol/openid-connect/token", tokenHandler(t, tokens))
	mux.HandleFunc("/api/object/graph-query", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		var req deltaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad graph query: %v", err)
		}
		if onQuery != nil {
			onQuery(req)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, deltaFixture)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestDelta(t *testing.T, srv *httptest.Server) *Delta {
	d, err := NewDelta(DeltaConfig{
		URL:          srv.URL,
		Realm:        "kommune",
		ClientID:     "meddb",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewDelta failed: %v", err)
	}
	return d
}

func TestDeltaSearch(t *testing.T) {
	var tokens atomic.Int32
	var criteria []deltaCriterion
	srv := newDeltaServer(t, &tokens, func(req deltaRequest) {
		criteria = req.GraphQueries[0].GraphQuery.Criteria.Criteria
		if limit := req.GraphQueries[0].Limit; limit != SearchLimit {
			t.Errorf("Expected limit %d, got %d", SearchLimit, limit)
		}
	})
	d := newTestDelta(t, srv)

	records, err := d.Search(context.Background(), Query{Name: "Smith", Username: "DQ1234"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d: %+v", len(records), records)
	}
	want := PersonRecord{Name: "Jane Smith", Email: "j.smith@org.dk", Organization: "Rådhuset", Username: "DQ1234"}
	if records[0] != want {
		t.Errorf("Expected %+v, got %+v", want, records[0])
	}

	if len(criteria) != 2 {
		t.Fatalf("Expected 2 criteria, got %d", len(criteria))
	}
	if criteria[0].Operator != "LIKE" || criteria[0].Right.Value != "%Smith%" {
		t.Errorf("Unexpected name criterion %+v", criteria[0])
	}
	if criteria[1].Operator != "EQUAL" || criteria[1].Left.Alias != "person.user.$userKey" {
		t.Errorf("Unexpected username criterion %+v", criteria[1])
	}

	if _, err := d.Search(context.Background(), Query{Email: "j.smith"}); err != nil {
		t.Fatalf("second Search failed: %v", err)
	}
	if tokens.Load() != 1 {
		t.Errorf("Expected the token to be cached, fetched %d times", tokens.Load())
	}
}

func TestCheckEmailExists(t *testing.T) {
	var tokens atomic.Int32
	d := newTestDelta(t, newDeltaServer(t, &tokens, nil))

	exists, err := CheckEmailExists(context.Background(), d, "J.Smith@org.dk")
	if err != nil || !exists {
		t.Errorf("Expected exact match ignoring case, got %v (err %v)", exists, err)
	}

	exists, err = CheckEmailExists(context.Background(), d, "smith@org.dk")
	if err != nil || exists {
		t.Errorf("Expected a fragment hit not to count as existing, got %v (err %v)", exists, err)
	}
}

func TestDeltaExternalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/token") {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
			return
		}
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	d := newTestDelta(t, srv)

	_, err := d.Search(context.Background(), Query{Name: "x"})
	var ext *types.ExternalServiceError
	if !errors.As(err, &ext) {
		t.Fatalf("Expected ExternalServiceError, got %v", err)
	}
	if ext.Service != "delta" || ext.StatusCode != http.StatusBadGateway {
		t.Errorf("Unexpected error details %+v", ext)
	}
}

func TestGraphSearchAlias(t *testing.T) {
	var tokens atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/tenant-1/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("scope") != "https://graph.microsoft.com/.default" {
			t.Errorf("Expected scope to be sent, got %q", r.PostForm.Get("scope"))
		}
		tokenHandler(t, &tokens)(w, r)
	})
	mux.HandleFunc("/v1.0/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("ConsistencyLevel") != "eventual" {
			t.Errorf("Expected ConsistencyLevel header")
		}
		filter := r.URL.Query().Get("$filter")
		if filter != "proxyAddresses/any(p:p eq 'smtp:o''brien@org.dk')" {
			t.Errorf("Unexpected filter %q", filter)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value":[{"displayName":"Pat O'Brien","mail":"pat.obrien@org.dk","onPremisesSamAccountName":"DQ9"}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g, err := NewGraph(GraphConfig{
		URL:          srv.URL + "/v1.0",
		AuthURL:      srv.URL,
		TenantID:     "tenant-1",
		ClientID:     "meddb",
		ClientSecret: "secret",
		Scope:        "https://graph.microsoft.com/.default",
		Timeout:      5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}

	records, err := g.SearchAlias(context.Background(), "o'brien@org.dk")
	if err != nil {
		t.Fatalf("SearchAlias failed: %v", err)
	}
	if len(records) != 1 || records[0].Email != "pat.obrien@org.dk" {
		t.Fatalf("Unexpected records %+v", records)
	}
	if records[0].Organization != Placeholder {
		t.Errorf("Expected placeholder for a missing office, got %q", records[0].Organization)
	}
}

func openSchoolDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(puresqlite.Open(fmt.Sprintf("file:school_%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open school database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	stmts := []string{
		`CREATE TABLE skole_person ("DQnummer" TEXT, "Navn" TEXT, "Mail" TEXT, "Skole" TEXT)`,
		`INSERT INTO skole_person VALUES ('DQ1', 'Lise Lærer', 'Lise.Laerer@skole.dk', 'Nordskolen')`,
		`INSERT INTO skole_person VALUES ('DQ2', 'Lars Lærer', 'lars@skole.dk', NULL)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("school fixture failed: %v", err)
		}
	}
	return db
}

func TestSchoolSearch(t *testing.T) {
	s := NewSchool(openSchoolDB(t), "skole_person")
	ctx := context.Background()

	records, err := s.Search(ctx, Query{Name: "lærer"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}

	records, err = s.Search(ctx, Query{Username: "dq2", Email: "nobody@skole.dk"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 1 || records[0].Organization != Placeholder {
		t.Errorf("Expected DQ2 with placeholder school, got %+v", records)
	}

	record, found, err := s.FindByEmail(ctx, "lise.laerer@skole.dk")
	if err != nil || !found {
		t.Fatalf("Expected FindByEmail to match ignoring case, found=%v err=%v", found, err)
	}
	if record.Organization != "Nordskolen" {
		t.Errorf("Expected organization Nordskolen, got %q", record.Organization)
	}

	if _, found, err := s.FindByEmail(ctx, "missing@skole.dk"); err != nil || found {
		t.Errorf("Expected no match, found=%v err=%v", found, err)
	}
}

func TestSearchRequiresCriteria(t *testing.T) {
	var tokens atomic.Int32
	srv := newDeltaServer(t, &tokens, nil)
	graph, err := NewGraph(GraphConfig{URL: srv.URL, AuthURL: srv.URL, TenantID: "t", ClientID: "meddb", ClientSecret: "s"})
	if err != nil {
		t.Fatalf("NewGraph failed: %v", err)
	}

	searchers := map[string]Searcher{
		"delta":  newTestDelta(t, srv),
		"graph":  graph,
		"school": NewSchool(openSchoolDB(t), "skole_person"),
		"merged": NewMerged(newTestDelta(t, srv)),
	}
	for name, s := range searchers {
		_, err := s.Search(context.Background(), Query{})
		if !errors.Is(err, types.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", name, err)
		}
	}
	if tokens.Load() != 0 {
		t.Errorf("Expected no outbound calls for invalid queries")
	}
}

type staticSearcher []PersonRecord

func (s staticSearcher) Search(context.Context, Query) ([]PersonRecord, error) {
	return s, nil
}

func TestMergedDeduplicatesByEmail(t *testing.T) {
	var school *School
	m := NewMerged(
		staticSearcher{{Name: "A", Email: "a@org.dk"}, {Name: "NoMail", Email: Placeholder}},
		school,
		staticSearcher{{Name: "A again", Email: "A@org.dk"}, {Name: "B", Email: "b@org.dk"}, {Name: "NoMail2", Email: Placeholder}},
	)

	records, err := m.Search(context.Background(), Query{Name: "x"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("Expected 4 records, got %+v", records)
	}
	if records[2].Name != "B" {
		t.Errorf("Expected the duplicate to be skipped, got %+v", records)
	}
}

func TestTokenURL(t *testing.T) {
	cases := []struct {
		realm, tenant string
		addAuth       bool
		want          string
	}{
		{"r", "", false, "https://id/realms/r/protocol/openid-connect/token"},
		{"r", "", true, "https://id/auth/realms/r/protocol/openid-connect/token"},
		{"", "t", false, "https://id/t/oauth2/v2.0/token"},
	}
	for _, tc := range cases {
		got, err := TokenURL("https://id/", tc.realm, tc.tenant, tc.addAuth)
		if err != nil || got != tc.want {
			t.Errorf("TokenURL(%q, %q, %v) = %q, %v; want %q", tc.realm, tc.tenant, tc.addAuth, got, err, tc.want)
		}
	}
	if _, err := TokenURL("https://id", "", "", false); err == nil {
		t.Errorf("Expected an error without realm or tenant")
	}
}
