// Package directory holds the person lookup clients for the external directory systems.
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/localnerve/meddb/internal/types"
)

// Placeholder is used for any field the backing system does not return.
const Placeholder = "-"

// SearchLimit caps the number of records each system is asked for.
const SearchLimit = 10

// PersonRecord is a normalized person as returned by any directory.
type PersonRecord struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
	Username     string `json:"username"`
}

// Query holds the optional search criteria. At least one must be set.
type Query struct {
	Name     string `query:"name"`
	Email    string `query:"email"`
	Username string `query:"username"`
}

// Empty reports whether no criterion is set.
func (q Query) Empty() bool {
	return strings.TrimSpace(q.Name) == "" &&
		strings.TrimSpace(q.Email) == "" &&
		strings.TrimSpace(q.Username) == ""
}

// Validate returns an error wrapping types.ErrValidation when q is empty.
func (q Query) Validate() error {
	if q.Empty() {
		return fmt.Errorf("at least one of name, email or username must be given: %w", types.ErrValidation)
	}
	return nil
}

// Searcher is implemented by every directory client.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]PersonRecord, error)
}

// CheckEmailExists reports whether s returns a record whose e-mail equals email, ignoring case.
func CheckEmailExists(ctx context.Context, s Searcher, email string) (bool, error) {
	records, err := s.Search(ctx, Query{Email: email})
	if err != nil {
		return false, err
	}
	return FindExact(records, email) != nil, nil
}

// FindExact returns the first record whose e-mail equals email, ignoring case.
func FindExact(records []PersonRecord, email string) *PersonRecord {
	for i := range records {
		if strings.EqualFold(records[i].Email, email) {
			return &records[i]
		}
	}
	return nil
}

// HasValue reports whether a record field holds a real value.
func HasValue(field string) bool {
	return field != "" && field != Placeholder
}

func orPlaceholder(value string) string {
	if strings.TrimSpace(value) == "" {
		return Placeholder
	}
	return value
}

func newRecord(name, email, organization, username string) PersonRecord {
	return PersonRecord{
		Name:         orPlaceholder(name),
		Email:        orPlaceholder(email),
		Organization: orPlaceholder(organization),
		Username:     orPlaceholder(username),
	}
}
