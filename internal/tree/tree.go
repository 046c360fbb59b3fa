// tree.go
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

// Package tree turns flat parent-pointer committee rows into a sorted display tree
// and keeps the single-selection state of that tree consistent.
package tree

import (
	"sort"
	"strings"

	"github.com/localnerve/meddb/internal/models"
	"go.uber.org/zap"
)

// Node is one committee in the display tree.
type Node struct {
	Label     string  `json:"label"`
	Value     uint    `json:"value"`
	ClassName string  `json:"className"`
	Children  []*Node `json:"children,omitempty"`
}

// IsBranch reports whether the node has children.
func (n *Node) IsBranch() bool {
	return len(n.Children) > 0
}

// Options controls how committees with a dangling parent id are handled.
type Options struct {
	// DropOrphans drops committees whose parent id is unknown, together with their subtree.
	// When false they are promoted to roots.
	DropOrphans bool
	Log         *zap.Logger
}

// Projection is the materialized tree plus its lookups.
type Projection struct {
	Roots []*Node `json:"tree"`
	// Parents holds the declared parent of every input committee, nil for top level.
	Parents map[uint]*uint `json:"parents"`
	// Nodes holds every node reachable from Roots.
	Nodes map[uint]*Node `json:"nodes"`
	// Dropped lists committees that are not reachable from any root, in id order.
	Dropped []uint `json:"dropped"`
}

// Build materializes committees into a tree. Committees with a nil parent are roots.
// Every level is sorted with branches before leaves, then by label.
func Build(committees []models.Committee, opts Options) *Projection {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	p := &Projection{
		Parents: make(map[uint]*uint, len(committees)),
		Nodes:   make(map[uint]*Node, len(committees)),
	}

	all := make(map[uint]*Node, len(committees))
	for _, c := range committees {
		all[c.ID] = &Node{Label: c.Name, Value: c.ID, ClassName: c.TypeName()}
		p.Parents[c.ID] = c.ParentID
	}

	var roots []*Node
	children := make(map[uint][]*Node)
	for _, c := range committees {
		node := all[c.ID]
		switch {
		case c.ParentID == nil:
			roots = append(roots, node)
		case all[*c.ParentID] == nil:
			log.Warn("committee references a missing parent",
				zap.Uint("committee_id", c.ID),
				zap.Uint("parent_id", *c.ParentID),
				zap.Bool("dropped", opts.DropOrphans))
			if !opts.DropOrphans {
				roots = append(roots, node)
			}
		default:
			children[*c.ParentID] = append(children[*c.ParentID], node)
		}
	}

	// Attach only what is reachable from a root so cycles cannot be entered.
	queue := append([]*Node(nil), roots...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if _, seen := p.Nodes[node.Value]; seen {
			continue
		}
		p.Nodes[node.Value] = node
		node.Children = children[node.Value]
		queue = append(queue, node.Children...)
	}

	for _, c := range committees {
		if _, ok := p.Nodes[c.ID]; !ok {
			p.Dropped = append(p.Dropped, c.ID)
		}
	}
	if len(p.Dropped) > 0 {
		sort.Slice(p.Dropped, func(i, j int) bool { return p.Dropped[i] < p.Dropped[j] })
		log.Warn("committees not reachable from any root", zap.Uints("committee_ids", p.Dropped))
	}

	sortNodes(roots)
	p.Roots = roots
	return p
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.IsBranch() != b.IsBranch() {
			return a.IsBranch()
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Value < b.Value
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Flatten returns the nodes in display order (depth first, pre-order).
func (p *Projection) Flatten() []*Node {
	var out []*Node
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n)
			walk(n.Children)
		}
	}
	walk(p.Roots)
	return out
}

// Hit is a search result together with the path to expand to show it.
type Hit struct {
	Node *Node  `json:"node"`
	Path []uint `json:"path"`
}

// Search matches query case-insensitively against node labels, in display order.
func (p *Projection) Search(query string) []Hit {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var hits []Hit
	for _, n := range p.Flatten() {
		if strings.Contains(strings.ToLower(n.Label), query) {
			hits = append(hits, Hit{Node: n, Path: AncestorPath(n.Value, p.Parents)})
		}
	}
	return hits
}

// AncestorPath returns id followed by its ancestors up to the top level, child first.
// It stops at an unknown parent or a repeated id.
func AncestorPath(id uint, parents map[uint]*uint) []uint {
	path := []uint{id}
	seen := map[uint]bool{id: true}
	current := id
	for {
		parent, ok := parents[current]
		if !ok || parent == nil || seen[*parent] {
			return path
		}
		if _, known := parents[*parent]; !known {
			return path
		}
		path = append(path, *parent)
		seen[*parent] = true
		current = *parent
	}
}
