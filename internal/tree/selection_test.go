package tree

import (
	"testing"
)

func testMachine() Machine {
	one, two := uint(1), uint(2)
	return Machine{Parents: map[uint]*uint{
		1: nil,
		2: &one,
		3: &two,
		4: &one,
	}}
}

func assertIDs(t *testing.T, name string, got []uint, want ...uint) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %v, got %v", name, want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s: expected %v, got %v", name, want, got)
		}
	}
}

func TestSelectExpandsAncestors(t *testing.T) {
	tr := testMachine().Apply(Selection{}, []uint{3})
	if !tr.Changed {
		t.Errorf("Expected a change when selecting")
	}
	assertIDs(t, "checked", tr.State.Checked, 3)
	assertIDs(t, "expanded", tr.State.Expanded, 3, 2, 1)
}

func TestSelectIdempotent(t *testing.T) {
	m := testMachine()
	first := m.Apply(Selection{}, []uint{3})
	second := m.Apply(first.State, []uint{3})

	if second.Changed {
		t.Errorf("Expected no change when re-applying the same selection")
	}
	assertIDs(t, "checked", second.State.Checked, first.State.Checked...)
	assertIDs(t, "expanded", second.State.Expanded, first.State.Expanded...)
}

func TestTwoElementReport(t *testing.T) {
	m := testMachine()
	state := m.Select(4)

	for _, reported := range [][]uint{{4, 3}, {3, 4}} {
		tr := m.Apply(state, reported)
		if !tr.Changed {
			t.Errorf("Expected a change for report %v", reported)
		}
		assertIDs(t, "checked", tr.State.Checked, 3)
		assertIDs(t, "expanded", tr.State.Expanded, 3, 2, 1)
	}

	// previous not in the report: keep the last reported id
	tr := m.Apply(m.Select(1), []uint{2, 3})
	assertIDs(t, "fallback", tr.State.Checked, 3)
}

func TestClearSelection(t *testing.T) {
	m := testMachine()
	m.DefaultExpanded = []uint{1}

	tr := m.Apply(m.Select(3), nil)
	if !tr.Changed {
		t.Errorf("Expected a change when clearing")
	}
	assertIDs(t, "checked", tr.State.Checked)
	assertIDs(t, "expanded", tr.State.Expanded, 1)

	again := m.Apply(tr.State, []uint{})
	if again.Changed {
		t.Errorf("Expected clearing an empty selection to be a no-op")
	}
}

func TestInconsistentReport(t *testing.T) {
	m := testMachine()
	tr := m.Apply(m.Select(2), []uint{1, 2, 3})

	if tr.Warning == "" {
		t.Errorf("Expected a warning for more than two reported ids")
	}
	if _, ok := tr.State.Current(); ok {
		t.Errorf("Expected the selection to be cleared, got %v", tr.State.Checked)
	}
}

func TestDuplicateReportIsSingle(t *testing.T) {
	m := testMachine()
	state := m.Select(2)
	tr := m.Apply(state, []uint{2, 2})
	if tr.Changed {
		t.Errorf("Expected a duplicated report of the current id to be a no-op")
	}
}
