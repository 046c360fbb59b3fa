package directory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const graphSelect = "mail,onPremisesSamAccountName,displayName,officeLocation"

type graphUser struct {
	DisplayName              string `json:"displayName"`
	Mail                     string `json:"mail"`
	OfficeLocation           string `json:"officeLocation"`
	OnPremisesSamAccountName string `json:"onPremisesSamAccountName"`
}

type graphUsers struct {
	Value []graphUser `json:"value"`
}

// Graph searches Microsoft Graph users. It is used as the alias fallback during reconciliation.
type Graph struct {
	api *APIClient
}

// GraphConfig configures NewGraph.
type GraphConfig struct {
	URL          string
	AuthURL      string
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	Timeout      time.Duration
}

// NewGraph creates a Graph client authenticating with client credentials against the tenant.
func NewGraph(cfg GraphConfig) (*Graph, error) {
	var scopes []string
	if cfg.Scope != "" {
		scopes = []string{cfg.Scope}
	}
	api, err := NewAPIClient("msgraph", cfg.URL, Auth{
		AuthURL:      cfg.AuthURL,
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       scopes,
	}, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Graph{api: api}, nil
}

// SearchAlias finds users that have alias as one of their SMTP proxy addresses.
func (g *Graph) SearchAlias(ctx context.Context, alias string) ([]PersonRecord, error) {
	if strings.TrimSpace(alias) == "" {
		return nil, Query{}.Validate()
	}
	return g.users(ctx, fmt.Sprintf("proxyAddresses/any(p:p eq 'smtp:%s')", odataString(alias)))
}

// Search matches the display name by prefix and e-mail and username exactly. All given criteria must hold.
func (g *Graph) Search(ctx context.Context, q Query) ([]PersonRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var filters []string
	if q.Name != "" {
		filters = append(filters, fmt.Sprintf("startswith(displayName,'%s')", odataString(q.Name)))
	}
	if q.Email != "" {
		filters = append(filters, fmt.Sprintf("mail eq '%s'", odataString(q.Email)))
	}
	if q.Username != "" {
		filters = append(filters, fmt.Sprintf("onPremisesSamAccountName eq '%s'", odataString(q.Username)))
	}
	return g.users(ctx, strings.Join(filters, " and "))
}

func (g *Graph) users(ctx context.Context, filter string) ([]PersonRecord, error) {
	params := url.Values{}
	params.Set("$select", graphSelect)
	params.Set("$filter", filter)
	params.Set("$top", strconv.Itoa(SearchLimit))
	params.Set("$count", "true")

	var resp graphUsers
	err := g.api.Do(ctx, Request{
		Path:    "users",
		Query:   params,
		Headers: map[string]string{"ConsistencyLevel": "eventual"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	records := make([]PersonRecord, 0, len(resp.Value))
	for _, u := range resp.Value {
		records = append(records, newRecord(u.DisplayName, u.Mail, u.OfficeLocation, u.OnPremisesSamAccountName))
	}
	return records, nil
}

// odataString escapes a value for use inside a single-quoted OData literal.
func odataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
