package directory

import (
	"fmt"

	"github.com/localnerve/meddb/internal/config"
	"gorm.io/gorm"
)

// Clients holds the directory clients configured for the process.
// Graph and School are nil when not configured.
type Clients struct {
	Delta  *Delta
	Graph  *Graph
	School *School
}

// NewClients builds the clients from configuration. schoolDB may be nil to disable school lookups.
func NewClients(cfg *config.Config, schoolDB *gorm.DB) (*Clients, error) {
	delta, err := NewDelta(DeltaConfig{
		URL:          cfg.DeltaURL,
		AuthURL:      cfg.DeltaAuthURL,
		Realm:        cfg.DeltaRealm,
		ClientID:     cfg.DeltaClientID,
		ClientSecret: cfg.DeltaClientSecret,
		Timeout:      cfg.DirectoryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("delta client: %w", err)
	}
	clients := &Clients{Delta: delta}

	if cfg.GraphEnabled() {
		graph, err := NewGraph(GraphConfig{
			URL:          cfg.GraphURL,
			AuthURL:      cfg.GraphAuthURL,
			TenantID:     cfg.GraphTenantID,
			ClientID:     cfg.GraphClientID,
			ClientSecret: cfg.GraphClientSecret,
			Scope:        cfg.GraphScope,
			Timeout:      cfg.DirectoryTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("graph client: %w", err)
		}
		clients.Graph = graph
	}

	if schoolDB != nil {
		clients.School = NewSchool(schoolDB, cfg.SchoolTable)
	}
	return clients, nil
}

// Interactive is the search used by the add-member flow: the primary directory, then the school directory.
func (c *Clients) Interactive() *Merged {
	return NewMerged(c.Delta, c.School)
}
