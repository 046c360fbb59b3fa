package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/directory"
	"github.com/localnerve/meddb/internal/handlers"
	"github.com/localnerve/meddb/internal/jobs"
	"github.com/localnerve/meddb/internal/middleware"
	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/reconcile"
	"github.com/localnerve/meddb/internal/services"
	"github.com/localnerve/meddb/internal/testutil"
	"github.com/localnerve/meddb/internal/tree"
	"github.com/localnerve/meddb/internal/types"
	"github.com/localnerve/meddb/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	editorCookie = "editor"
	memberCookie = "member"
)

// grantValidator accepts a cookie when it was granted one of the requested roles.
func grantValidator(grants map[string][]string) middleware.SessionValidator {
	return func(_ *fiber.Ctx, cookie string, roles []string) (interface{}, error) {
		for _, have := range grants[cookie] {
			for _, want := range roles {
				if have == want {
					return cookie, nil
				}
			}
		}
		return nil, errors.New("missing role")
	}
}

type staticSearcher struct {
	records []directory.PersonRecord
	err     error
}

func (s staticSearcher) Search(_ context.Context, q directory.Query) ([]directory.PersonRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.records, s.err
}

// setupApp builds the API over a fresh database the way the server does.
func setupApp(t *testing.T, searcher directory.Searcher) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	log := zap.NewNop()

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	api := &handlers.API{
		Committees: &handlers.CommitteeHandler{
			DB:             db,
			Log:            log,
			DropOrphans:    true,
			PriorityRoles:  []string{"Formand", "Næstformand"},
			TopCommitteeID: 1,
		},
		Catalog:   &handlers.CatalogHandler{DB: db},
		Persons:   &handlers.PersonHandler{DB: db},
		Directory: &handlers.DirectoryHandler{Searcher: searcher},
		Reconcile: &handlers.ReconcileHandler{
			DB:     db,
			Engine: reconcile.New(db, searcher, reconcile.Options{Log: log}),
		},
	}
	api.Register(app.Group("/api"), middleware.Auth{Validate: grantValidator(map[string][]string{
		editorCookie: {services.RoleEditMember, services.RoleEditCommittee},
		memberCookie: {services.RoleEditMember},
	})})
	return app, db
}

func doRequest(t *testing.T, app *fiber.App, method, target, cookie string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "cookie_session", Value: cookie})
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request %s %s: %v", method, target, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func typeID(t *testing.T, db *gorm.DB, name string) uint {
	t.Helper()
	var ct models.CommitteeType
	if err := db.Where("name = ?", name).First(&ct).Error; err != nil {
		t.Fatalf("committee type %s missing: %v", name, err)
	}
	return ct.ID
}

func createCommittee(t *testing.T, app *fiber.App, db *gorm.DB, name string, parentID *uint) models.Committee {
	t.Helper()
	body := map[string]interface{}{"name": name, "typeId": typeID(t, db, "Udvalg")}
	if parentID != nil {
		body["parentId"] = *parentID
	}
	resp := doRequest(t, app, "POST", "/api/committees", editorCookie, body)
	expectStatus(t, resp, fiber.StatusCreated)
	var c models.Committee
	decode(t, resp, &c)
	return c
}

func TestMutationsRequireRole(t *testing.T) {
	app, db := setupApp(t, staticSearcher{})
	body := map[string]interface{}{"name": "Hoved-MED", "typeId": typeID(t, db, "Udvalg")}

	resp := doRequest(t, app, "POST", "/api/committees", "", body)
	expectStatus(t, resp, fiber.StatusForbidden)
	var errBody utils.ErrorResponseStruct
	decode(t, resp, &errBody)
	if errBody.Ok || errBody.Type != "authorization.edit_udvalg" {
		t.Errorf("Unexpected error body %+v", errBody)
	}

	resp = doRequest(t, app, "POST", "/api/committees", memberCookie, body)
	expectStatus(t, resp, fiber.StatusForbidden)

	resp = doRequest(t, app, "POST", "/api/committees", editorCookie, body)
	expectStatus(t, resp, fiber.StatusCreated)
}

func TestCommitteeLifecycle(t *testing.T) {
	app, db := setupApp(t, staticSearcher{})
	top := createCommittee(t, app, db, "Hoved-MED", nil)
	child := createCommittee(t, app, db, "Skole-MED", &top.ID)
	grandchild := createCommittee(t, app, db, "Nordskolen", &child.ID)

	resp := doRequest(t, app, "GET", "/api/committees/tree", "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	var p tree.Projection
	decode(t, resp, &p)
	if len(p.Roots) != 1 || p.Roots[0].Value != top.ID || len(p.Roots[0].Children) != 1 {
		t.Fatalf("Unexpected tree %+v", p.Roots)
	}

	resp = doRequest(t, app, "PATCH", fmt.Sprintf("/api/committees/%d", top.ID), editorCookie,
		map[string]interface{}{"parentId": grandchild.ID})
	expectStatus(t, resp, fiber.StatusConflict)

	resp = doRequest(t, app, "PATCH", fmt.Sprintf("/api/committees/%d", child.ID), editorCookie,
		map[string]interface{}{"parentId": nil, "name": "Skole-MED (ny)"})
	expectStatus(t, resp, fiber.StatusOK)
	var updated models.Committee
	decode(t, resp, &updated)
	if updated.ParentID != nil || updated.Name != "Skole-MED (ny)" {
		t.Errorf("Expected a renamed top-level committee, got %+v", updated)
	}

	resp = doRequest(t, app, "GET", fmt.Sprintf("/api/committees/%d/children", child.ID), "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	var children []models.Committee
	decode(t, resp, &children)
	if len(children) != 1 || children[0].ID != grandchild.ID {
		t.Errorf("Expected the grandchild as only child, got %+v", children)
	}

	resp = doRequest(t, app, "GET", "/api/committees/search?q=nord", "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	var hits []tree.Hit
	decode(t, resp, &hits)
	if len(hits) != 1 || hits[0].Node.Value != grandchild.ID || len(hits[0].Path) != 2 {
		t.Errorf("Unexpected search hits %+v", hits)
	}

	resp = doRequest(t, app, "DELETE", fmt.Sprintf("/api/committees/%d", child.ID), editorCookie, nil)
	expectStatus(t, resp, fiber.StatusOK)

	resp = doRequest(t, app, "GET", fmt.Sprintf("/api/committees/%d", child.ID), "", nil)
	expectStatus(t, resp, fiber.StatusNotFound)

	resp = doRequest(t, app, "GET", "/api/committees/abc", "", nil)
	expectStatus(t, resp, fiber.StatusBadRequest)
}

func TestCreateCommitteeValidation(t *testing.T) {
	app, db := setupApp(t, staticSearcher{})

	resp := doRequest(t, app, "POST", "/api/committees", editorCookie,
		map[string]interface{}{"name": "  ", "typeId": typeID(t, db, "Udvalg")})
	expectStatus(t, resp, fiber.StatusBadRequest)

	resp = doRequest(t, app, "POST", "/api/committees", editorCookie,
		map[string]interface{}{"name": "X", "typeId": 999})
	expectStatus(t, resp, fiber.StatusNotFound)

	resp = doRequest(t, app, "GET", "/api/committees/search", "", nil)
	expectStatus(t, resp, fiber.StatusBadRequest)
}

func TestMembersFlow(t *testing.T) {
	app, db := setupApp(t, staticSearcher{})
	committee := createCommittee(t, app, db, "Hoved-MED", nil)
	chair, _ := services.CreateRole(db, "Formand")
	member, _ := services.CreateRole(db, "Medlem")

	for _, m := range []map[string]interface{}{
		{"name": "Bo", "email": "bo@org.dk", "roleId": member.ID},
		{"name": "Anne", "email": "anne@org.dk", "roleId": fmt.Sprint(chair.ID)},
		{"name": "Bo", "email": "bo@org.dk", "roleId": member.ID},
	} {
		resp := doRequest(t, app, "POST", fmt.Sprintf("/api/committees/%d/members", committee.ID), memberCookie, m)
		expectStatus(t, resp, fiber.StatusCreated)
	}

	resp := doRequest(t, app, "GET", fmt.Sprintf("/api/committees/%d/members", committee.ID), "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	var members handlers.MembersResponse
	decode(t, resp, &members)
	if len(members.Members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(members.Members))
	}
	if members.Members[0].Person.Email != "anne@org.dk" {
		t.Errorf("Expected the chair first, got %s", members.Members[0].Person.Email)
	}
	if len(members.Mailto) != 2 || members.Mailto[0] != "anne@org.dk" {
		t.Errorf("Unexpected mailto %v", members.Mailto)
	}

	bo, err := services.GetPersonByEmail(db, "bo@org.dk")
	if err != nil {
		t.Fatalf("GetPersonByEmail failed: %v", err)
	}
	target := fmt.Sprintf("/api/committees/%d/members/%d/%d", committee.ID, bo.ID, member.ID)
	resp = doRequest(t, app, "DELETE", target, memberCookie, nil)
	expectStatus(t, resp, fiber.StatusOK)
	resp = doRequest(t, app, "DELETE", target, memberCookie, nil)
	expectStatus(t, resp, fiber.StatusNotFound)

	if _, err := services.GetPersonByEmail(db, "bo@org.dk"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected the person without memberships to be removed, got %v", err)
	}

	resp = doRequest(t, app, "POST", fmt.Sprintf("/api/committees/%d/members", committee.ID), memberCookie,
		map[string]interface{}{"name": "Kim", "email": "", "roleId": member.ID})
	expectStatus(t, resp, fiber.StatusBadRequest)
}

func TestApplySelection(t *testing.T) {
	app, db := setupApp(t, staticSearcher{})
	top := createCommittee(t, app, db, "Hoved-MED", nil)
	child := createCommittee(t, app, db, "Skole-MED", &top.ID)
	other := createCommittee(t, app, db, "Social-MED", &top.ID)

	resp := doRequest(t, app, "POST", "/api/selection", "", map[string]interface{}{
		"state":    map[string]interface{}{"checked": []uint{}, "expanded": []uint{}},
		"reported": child.ID,
	})
	expectStatus(t, resp, fiber.StatusOK)
	var tr tree.Transition
	decode(t, resp, &tr)
	if !tr.Changed || len(tr.State.Checked) != 1 || tr.State.Checked[0] != child.ID {
		t.Fatalf("Expected child selected, got %+v", tr)
	}
	if len(tr.State.Expanded) != 2 || tr.State.Expanded[0] != child.ID || tr.State.Expanded[1] != top.ID {
		t.Errorf("Expected ancestor path, got %v", tr.State.Expanded)
	}

	resp = doRequest(t, app, "POST", "/api/selection", "", map[string]interface{}{
		"state":    tr.State,
		"reported": []string{fmt.Sprint(child.ID), fmt.Sprint(other.ID)},
	})
	expectStatus(t, resp, fiber.StatusOK)
	decode(t, resp, &tr)
	if len(tr.State.Checked) != 1 || tr.State.Checked[0] != other.ID {
		t.Errorf("Expected the newly checked committee, got %+v", tr.State)
	}

	resp = doRequest(t, app, "POST", "/api/selection", "", map[string]interface{}{
		"state":    tr.State,
		"reported": []uint{},
	})
	expectStatus(t, resp, fiber.StatusOK)
	decode(t, resp, &tr)
	if len(tr.State.Checked) != 0 || len(tr.State.Expanded) != 1 || tr.State.Expanded[0] != top.ID {
		t.Errorf("Expected cleared selection with the top committee expanded, got %+v", tr.State)
	}
}

func TestCatalogRoutes(t *testing.T) {
	app, db := setupApp(t, staticSearcher{})

	resp := doRequest(t, app, "GET", "/api/committee-types", "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	var visible []models.CommitteeType
	decode(t, resp, &visible)
	if len(visible) != 0 {
		t.Errorf("Expected protected types to be hidden, got %d", len(visible))
	}

	resp = doRequest(t, app, "GET", "/api/committee-types?include_protected=true", "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	decode(t, resp, &visible)
	if len(visible) != 3 {
		t.Errorf("Expected 3 protected types, got %d", len(visible))
	}

	resp = doRequest(t, app, "DELETE", fmt.Sprintf("/api/committee-types/%d", typeID(t, db, "Ukendt")), editorCookie, nil)
	expectStatus(t, resp, fiber.StatusConflict)

	resp = doRequest(t, app, "POST", "/api/roles", editorCookie, map[string]string{"name": "Formand"})
	expectStatus(t, resp, fiber.StatusCreated)
	resp = doRequest(t, app, "POST", "/api/roles", editorCookie, map[string]string{"name": "Formand"})
	expectStatus(t, resp, fiber.StatusConflict)

	resp = doRequest(t, app, "POST", "/api/unions", editorCookie, map[string]interface{}{"name": "FOA", "description": "Fag og Arbejde"})
	expectStatus(t, resp, fiber.StatusCreated)
	var union models.Union
	decode(t, resp, &union)

	resp = doRequest(t, app, "PUT", fmt.Sprintf("/api/unions/%d", union.ID), editorCookie, map[string]interface{}{"name": "FOA Nord"})
	expectStatus(t, resp, fiber.StatusOK)
	resp = doRequest(t, app, "DELETE", fmt.Sprintf("/api/unions/%d", union.ID), editorCookie, nil)
	expectStatus(t, resp, fiber.StatusOK)
	resp = doRequest(t, app, "DELETE", fmt.Sprintf("/api/unions/%d", union.ID), editorCookie, nil)
	expectStatus(t, resp, fiber.StatusNotFound)
}

func TestPersonFilters(t *testing.T) {
	app, db := setupApp(t, staticSearcher{})
	committee := createCommittee(t, app, db, "Hoved-MED", nil)
	role, _ := services.CreateRole(db, "Formand")
	union, _ := services.CreateUnion(db, "FOA", nil)
	notFound := false

	if _, err := services.AddCommitteeMember(db, committee.ID, services.NewMember{
		Person: services.PersonInput{Name: "Anne", Email: "anne@org.dk", UnionID: &union.ID},
		RoleID: role.ID,
	}); err != nil {
		t.Fatalf("AddCommitteeMember failed: %v", err)
	}
	if _, err := services.AddCommitteeMember(db, committee.ID, services.NewMember{
		Person: services.PersonInput{Name: "Bo", Email: "bo", FoundInSystem: &notFound},
		RoleID: role.ID,
	}); err != nil {
		t.Fatalf("AddCommitteeMember failed: %v", err)
	}

	var persons []models.Person
	resp := doRequest(t, app, "GET", fmt.Sprintf("/api/persons?roles=%d&committees=%d&unions=none", role.ID, committee.ID), "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	decode(t, resp, &persons)
	if len(persons) != 1 || persons[0].Email != "bo" {
		t.Errorf("Expected only the person without union, got %+v", persons)
	}

	resp = doRequest(t, app, "GET", fmt.Sprintf("/api/persons?unions=%d&unions=none", union.ID), "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	decode(t, resp, &persons)
	if len(persons) != 2 {
		t.Errorf("Expected both persons, got %d", len(persons))
	}

	resp = doRequest(t, app, "GET", "/api/persons/not-in-system", "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	decode(t, resp, &persons)
	if len(persons) != 1 || persons[0].Email != "bo" {
		t.Errorf("Expected the unconfirmed person, got %+v", persons)
	}

	resp = doRequest(t, app, "GET", "/api/persons?roles=abc", "", nil)
	expectStatus(t, resp, fiber.StatusBadRequest)
	resp = doRequest(t, app, "GET", "/api/persons?in_system=maybe", "", nil)
	expectStatus(t, resp, fiber.StatusBadRequest)
}

func TestDirectoryRoutes(t *testing.T) {
	app, _ := setupApp(t, staticSearcher{records: []directory.PersonRecord{
		{Name: "Anne", Email: "Anne@org.dk", Organization: "Rådhus", Username: directory.Placeholder},
	}})

	resp := doRequest(t, app, "GET", "/api/directory/search?name=anne", "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	var records []directory.PersonRecord
	decode(t, resp, &records)
	if len(records) != 1 || records[0].Organization != "Rådhus" {
		t.Errorf("Unexpected records %+v", records)
	}

	resp = doRequest(t, app, "GET", "/api/directory/search", "", nil)
	expectStatus(t, resp, fiber.StatusBadRequest)

	resp = doRequest(t, app, "GET", "/api/directory/exists?email=anne@org.dk", "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	var exists handlers.EmailExistsResponse
	decode(t, resp, &exists)
	if !exists.Exists {
		t.Errorf("Expected the e-mail to exist")
	}

	failing, _ := setupApp(t, staticSearcher{err: &types.ExternalServiceError{Service: "delta", StatusCode: 500, Err: errors.New("boom")}})
	resp = doRequest(t, failing, "GET", "/api/directory/search?email=x", "", nil)
	expectStatus(t, resp, fiber.StatusBadGateway)
}

func TestReconciliationRuns(t *testing.T) {
	app, _ := setupApp(t, staticSearcher{})

	resp := doRequest(t, app, "POST", "/api/reconciliation/runs", memberCookie, nil)
	expectStatus(t, resp, fiber.StatusForbidden)

	resp = doRequest(t, app, "POST", "/api/reconciliation/runs?wait=true", editorCookie, nil)
	expectStatus(t, resp, fiber.StatusOK)
	var run models.ReconciliationRun
	decode(t, resp, &run)
	if run.Trigger != reconcile.TriggerManual || run.FinishedAt == nil {
		t.Errorf("Unexpected run %+v", run)
	}

	resp = doRequest(t, app, "GET", "/api/reconciliation/runs", "", nil)
	expectStatus(t, resp, fiber.StatusOK)
	var runs []models.ReconciliationRun
	decode(t, resp, &runs)
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Errorf("Expected the run to be listed, got %+v", runs)
	}
}

// gateSearcher blocks searches until its gate is closed.
type gateSearcher struct {
	entered chan struct{}
	gate    chan struct{}
}

func (g *gateSearcher) Search(ctx context.Context, _ directory.Query) ([]directory.PersonRecord, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

func TestStartRunConflictsWithRunInProgress(t *testing.T) {
	db := testutil.OpenDB(t)
	if _, err := services.AddOrUpdatePerson(db, services.PersonInput{Name: "Kim", Email: "kim@org.dk"}); err != nil {
		t.Fatalf("AddOrUpdatePerson failed: %v", err)
	}
	searcher := &gateSearcher{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	engine := reconcile.New(db, searcher, reconcile.Options{Log: zap.NewNop()})
	scheduler, err := jobs.New(db, engine, jobs.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("jobs.New failed: %v", err)
	}
	defer scheduler.Stop()

	h := &handlers.ReconcileHandler{DB: db, Engine: engine, Background: scheduler.ReconcileAsync}
	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Post("/api/reconciliation/runs", h.StartRun)

	resp := doRequest(t, app, "POST", "/api/reconciliation/runs", "", nil)
	expectStatus(t, resp, fiber.StatusAccepted)

	select {
	case <-searcher.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the background run to start")
	}

	resp = doRequest(t, app, "POST", "/api/reconciliation/runs", "", nil)
	expectStatus(t, resp, fiber.StatusConflict)
	resp = doRequest(t, app, "POST", "/api/reconciliation/runs?wait=true", "", nil)
	expectStatus(t, resp, fiber.StatusConflict)

	close(searcher.gate)
}
