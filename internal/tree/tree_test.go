package tree

import (
	"testing"

	"github.com/localnerve/meddb/internal/models"
)

func committee(id uint, name string, parent uint) models.Committee {
	c := models.Committee{ID: id, Name: name, Type: &models.CommitteeType{Name: "Udvalg"}}
	if parent != 0 {
		p := parent
		c.ParentID = &p
	}
	return c
}

func labels(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label
	}
	return out
}

func assertLabels(t *testing.T, got []*Node, want ...string) {
	t.Helper()
	gotLabels := labels(got)
	if len(gotLabels) != len(want) {
		t.Fatalf("Expected %v, got %v", want, gotLabels)
	}
	for i := range want {
		if gotLabels[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, gotLabels)
		}
	}
}

func TestBuildSortsBranchesFirst(t *testing.T) {
	p := Build([]models.Committee{
		committee(1, "Hoved-MED", 0),
		committee(2, "Ældre", 1),
		committee(3, "Børn", 1),
		committee(4, "Skoler", 1),
		committee(5, "Skole A", 4),
		committee(6, "Ældrecenter", 2),
		committee(7, "Administration", 1),
	}, Options{DropOrphans: true})

	assertLabels(t, p.Roots, "Hoved-MED")
	assertLabels(t, p.Roots[0].Children, "Skoler", "Ældre", "Administration", "Børn")

	if p.Roots[0].ClassName != "Udvalg" {
		t.Errorf("Expected className Udvalg, got %q", p.Roots[0].ClassName)
	}
	if len(p.Nodes) != 7 {
		t.Errorf("Expected 7 nodes, got %d", len(p.Nodes))
	}
	if parent := p.Parents[5]; parent == nil || *parent != 4 {
		t.Errorf("Expected parent of 5 to be 4, got %v", parent)
	}
	if p.Parents[1] != nil {
		t.Errorf("Expected root to have nil parent")
	}
}

func TestBuildMissingParent(t *testing.T) {
	input := []models.Committee{
		committee(1, "Root", 0),
		committee(2, "Child", 1),
		committee(3, "Dangling", 99),
		committee(4, "Below dangling", 3),
	}

	dropped := Build(input, Options{DropOrphans: true})
	if len(dropped.Nodes) != 2 {
		t.Errorf("Expected 2 reachable nodes, got %d", len(dropped.Nodes))
	}
	if len(dropped.Dropped) != 2 || dropped.Dropped[0] != 3 || dropped.Dropped[1] != 4 {
		t.Errorf("Expected dropped [3 4], got %v", dropped.Dropped)
	}

	promoted := Build(input, Options{DropOrphans: false})
	if len(promoted.Nodes) != 4 || len(promoted.Dropped) != 0 {
		t.Errorf("Expected all 4 nodes with orphans promoted, got %d nodes, dropped %v", len(promoted.Nodes), promoted.Dropped)
	}
	assertLabels(t, promoted.Roots, "Dangling", "Root")
}

func TestBuildIgnoresCycles(t *testing.T) {
	p := Build([]models.Committee{
		committee(1, "Root", 0),
		committee(2, "A", 3),
		committee(3, "B", 2),
	}, Options{DropOrphans: true})

	if len(p.Nodes) != 1 {
		t.Errorf("Expected only the root to be reachable, got %d nodes", len(p.Nodes))
	}
	if len(p.Dropped) != 2 {
		t.Errorf("Expected the cycle members to be dropped, got %v", p.Dropped)
	}
	if path := AncestorPath(2, p.Parents); len(path) != 2 {
		t.Errorf("Expected AncestorPath to stop on the cycle, got %v", path)
	}
}

func TestFlattenAndSearch(t *testing.T) {
	p := Build([]models.Committee{
		committee(1, "Hoved-MED", 0),
		committee(2, "Skoler", 1),
		committee(3, "Skole Nord", 2),
		committee(4, "Rådhus", 1),
	}, Options{DropOrphans: true})

	assertLabels(t, p.Flatten(), "Hoved-MED", "Skoler", "Skole Nord", "Rådhus")

	hits := p.Search("skole")
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	path := hits[1].Path
	if len(path) != 3 || path[0] != 3 || path[1] != 2 || path[2] != 1 {
		t.Errorf("Expected path [3 2 1], got %v", path)
	}

	if hits := p.Search("  "); hits != nil {
		t.Errorf("Expected no hits for a blank query, got %v", hits)
	}
}
