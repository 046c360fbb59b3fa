// selection.go
//
// MED-Database committee and member registry service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of meddb.
// meddb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// meddb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with meddb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package tree

// Selection is the single-select state of the committee tree.
// Checked holds zero or one id. Expanded is the ancestor path of the checked id, child first.
type Selection struct {
	Checked  []uint `json:"checked"`
	Expanded []uint `json:"expanded"`
}

// Transition is the outcome of applying a widget report to a Selection.
type Transition struct {
	State   Selection `json:"state"`
	Changed bool      `json:"changed"`
	Warning string    `json:"warning,omitempty"`
}

// Machine applies widget reports against a fixed parent lookup.
type Machine struct {
	Parents map[uint]*uint
	// DefaultExpanded is used when nothing is checked.
	DefaultExpanded []uint
}

// Current returns the checked id, if any.
func (s Selection) Current() (uint, bool) {
	if len(s.Checked) == 0 {
		return 0, false
	}
	return s.Checked[0], true
}

// Apply computes the next state from the checked set the widget reported.
// The widget allows multi-select, so a report of two ids means the user checked a
// second box while the first was still checked.
func (m Machine) Apply(state Selection, reported []uint) Transition {
	reported = dedupe(reported)
	previous, hasPrevious := state.Current()

	switch len(reported) {
	case 0:
		return m.settle(state, m.empty(), "")
	case 1:
		if hasPrevious && reported[0] == previous {
			return Transition{State: state}
		}
		return m.settle(state, m.Select(reported[0]), "")
	case 2:
		remaining := reported[:0:0]
		for _, id := range reported {
			if !hasPrevious || id != previous {
				remaining = append(remaining, id)
			}
		}
		return m.settle(state, m.Select(remaining[len(remaining)-1]), "")
	default:
		return m.settle(state, m.empty(), "inconsistent selection report; selection cleared")
	}
}

// Select returns the state with id checked and its ancestor path expanded.
func (m Machine) Select(id uint) Selection {
	return Selection{Checked: []uint{id}, Expanded: AncestorPath(id, m.Parents)}
}

func (m Machine) empty() Selection {
	return Selection{Checked: []uint{}, Expanded: append([]uint{}, m.DefaultExpanded...)}
}

func (m Machine) settle(from, to Selection, warning string) Transition {
	return Transition{State: to, Changed: !equal(from, to), Warning: warning}
}

func equal(a, b Selection) bool {
	return sameIDs(a.Checked, b.Checked) && sameIDs(a.Expanded, b.Expanded)
}

func sameIDs(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
