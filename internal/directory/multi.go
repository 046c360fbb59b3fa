package directory

import (
	"context"
	"strings"
)

// Merged runs the same query against several directories and concatenates the results
// in order, skipping e-mails already returned by an earlier directory.
type Merged struct {
	searchers []Searcher
}

// NewMerged skips nil searchers so optional directories can be passed unconditionally.
func NewMerged(searchers ...Searcher) *Merged {
	m := &Merged{}
	for _, s := range searchers {
		if s != nil && !isNilSearcher(s) {
			m.searchers = append(m.searchers, s)
		}
	}
	return m
}

// Search stops at the first failing directory.
func (m *Merged) Search(ctx context.Context, q Query) ([]PersonRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []PersonRecord
	for _, s := range m.searchers {
		records, err := s.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			key := strings.ToLower(r.Email)
			if HasValue(r.Email) {
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func isNilSearcher(s Searcher) bool {
	switch v := s.(type) {
	case *School:
		return v == nil
	case *Delta:
		return v == nil
	case *Graph:
		return v == nil
	}
	return false
}
