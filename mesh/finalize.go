package mesh

import (
	"fmt"
	"sort"
	"strings"
)

// Finalize runs the single global invariant pass over everything
// accumulated so far. On success the mesh becomes immutable and Finalize
// is idempotent. On failure it returns an *InvariantError carrying every
// violation found, and the mesh stays in the accumulation phase.
//
// Checked invariants: node IDs are unique and form the dense range 1..N,
// element IDs likewise form 1..M, every element has 3 or 4 pairwise
// distinct node references that resolve, element winding is
// counter-clockwise (positive signed area; quadrilaterals must additionally
// be simple, i.e. at least one diagonal splits them into two
// counter-clockwise triangles), no two elements share the same node set
// under rotation or reflection, and every consecutive node pair in a
// boundary segment lies on an edge of some element.
func (m *Mesh) Finalize() error {
	if m.finalized {
		return nil
	}
	var vs []Violation

	// Node identifier space: dense, 1-based, unique.
	seen := make(map[int]int, len(m.nodes))
	for i, n := range m.nodes {
		if prev, ok := seen[n.ID]; ok {
			vs = append(vs, Violation{DuplicateNodeID, n.ID,
				fmt.Sprintf("node lines %d and %d share ID", prev+1, i+1)})
			continue
		}
		seen[n.ID] = i
		if n.ID < 1 || n.ID > len(m.nodes) {
			vs = append(vs, Violation{NonContiguousNodeID, n.ID,
				fmt.Sprintf("ID outside [1,%d]", len(m.nodes))})
		}
	}
	idsDense := len(seen) == len(m.nodes)
	if idsDense {
		for id := 1; id <= len(m.nodes); id++ {
			if _, ok := seen[id]; !ok {
				idsDense = false
				vs = append(vs, Violation{NonContiguousNodeID, id, "ID missing from range"})
			}
		}
	}
	// The geometric checks below index nodes by ID, so they require a
	// sound dense range. They run against an ID-ordered view; the mesh
	// itself is normalized only once the whole pass succeeds, so a failed
	// Finalize leaves the accumulation order intact.
	ordered := idsDense
	var byID []Node
	if idsDense {
		byID = make([]Node, len(m.nodes))
		for _, n := range m.nodes {
			byID[n.ID-1] = n
		}
	}

	elemSeen := make(map[int]bool, len(m.elements))
	elemSets := make(map[string]int, len(m.elements))
	for i, e := range m.elements {
		if elemSeen[e.ID] {
			vs = append(vs, Violation{DuplicateElementID, e.ID,
				fmt.Sprintf("repeated at element line %d", i+1)})
		}
		elemSeen[e.ID] = true
		if e.ID < 1 || e.ID > len(m.elements) {
			vs = append(vs, Violation{NonContiguousElementID, e.ID,
				fmt.Sprintf("ID outside [1,%d]", len(m.elements))})
		}
		if len(e.Nodes) != 3 && len(e.Nodes) != 4 {
			vs = append(vs, Violation{BadElementSize, e.ID,
				fmt.Sprintf("element has %d nodes, want 3 or 4", len(e.Nodes))})
			continue
		}
		ok := true
		for j, id := range e.Nodes {
			if id < 1 || id > len(m.nodes) {
				vs = append(vs, Violation{DanglingNodeRef, e.ID,
					fmt.Sprintf("node %d does not exist", id)})
				ok = false
			}
			for _, other := range e.Nodes[j+1:] {
				if id == other {
					vs = append(vs, Violation{RepeatedElementNode, e.ID,
						fmt.Sprintf("node %d listed twice", id)})
					ok = false
				}
			}
		}
		if !ok {
			continue
		}
		key := nodeSetKey(e.Nodes)
		if prev, dup := elemSets[key]; dup {
			vs = append(vs, Violation{DuplicateElement, e.ID,
				fmt.Sprintf("same node set as element %d", prev)})
		} else {
			elemSets[key] = e.ID
		}
		if ordered {
			if a := signedArea(byID, e.Nodes); a <= 0 {
				vs = append(vs, Violation{NonPositiveArea, e.ID,
					fmt.Sprintf("signed area %g", a)})
			} else if len(e.Nodes) == 4 && !simpleQuad(byID, e.Nodes) {
				// A positive shoelace sum can hide a self-crossing quad.
				vs = append(vs, Violation{NonPositiveArea, e.ID, "folded quadrilateral"})
			}
		}
	}

	vs = append(vs, m.checkBoundaries(Open, m.open, ordered)...)
	vs = append(vs, m.checkBoundaries(Land, m.land, ordered)...)

	if len(vs) > 0 {
		return &InvariantError{Violations: vs}
	}

	// Normalize to ID order so Node and Element lookups index directly.
	// For a clean 1..N range this is also the canonical insertion order.
	m.nodes = byID
	sort.Slice(m.elements, func(i, j int) bool { return m.elements[i].ID < m.elements[j].ID })
	m.finalized = true
	return nil
}

// signedArea is the shoelace sum over an ID-ordered node slice, used
// during Finalize before the mesh itself is normalized.
func signedArea(nodes []Node, ids []int) float64 {
	var sum float64
	k := len(ids)
	for i := 0; i < k; i++ {
		a := nodes[ids[i]-1]
		b := nodes[ids[(i+1)%k]-1]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// simpleQuad reports whether a counter-clockwise quadrilateral is simple:
// at least one of its diagonals splits it into two counter-clockwise
// triangles. A convex quad passes on both diagonals, a quad with one
// reflex vertex passes on exactly one, and a bowtie passes on neither.
func simpleQuad(nodes []Node, ids []int) bool {
	if signedArea(nodes, []int{ids[0], ids[1], ids[2]}) > 0 &&
		signedArea(nodes, []int{ids[0], ids[2], ids[3]}) > 0 {
		return true
	}
	return signedArea(nodes, []int{ids[1], ids[2], ids[3]}) > 0 &&
		signedArea(nodes, []int{ids[1], ids[3], ids[0]}) > 0
}

// checkBoundaries verifies that segment node references resolve and that
// consecutive nodes in each segment are incident to a shared element edge.
// Full perimeter coverage is not enforced here; a mesh may legitimately
// declare boundaries for only part of its perimeter, and gap detection is
// the topology validator's job.
func (m *Mesh) checkBoundaries(typ BoundaryType, segs []Segment, ordered bool) []Violation {
	var vs []Violation
	var edges map[[2]int]bool
	if ordered {
		edges = make(map[[2]int]bool)
		for _, e := range m.elements {
			if len(e.Nodes) != 3 && len(e.Nodes) != 4 {
				continue
			}
			k := len(e.Nodes)
			for i := 0; i < k; i++ {
				a, b := e.Nodes[i], e.Nodes[(i+1)%k]
				if a > b {
					a, b = b, a
				}
				edges[[2]int{a, b}] = true
			}
		}
	}
	for si, s := range segs {
		if len(s.Nodes) == 0 {
			vs = append(vs, Violation{EmptyBoundarySegment, si + 1,
				fmt.Sprintf("%s segment has no nodes", strings.ToLower(typ.String()))})
			continue
		}
		bad := false
		for _, id := range s.Nodes {
			if id < 1 || id > len(m.nodes) {
				vs = append(vs, Violation{DanglingNodeRef, si + 1,
					fmt.Sprintf("%s segment references missing node %d", strings.ToLower(typ.String()), id)})
				bad = true
			}
		}
		if bad || !ordered {
			continue
		}
		for i := 0; i+1 < len(s.Nodes); i++ {
			a, b := s.Nodes[i], s.Nodes[i+1]
			if a > b {
				a, b = b, a
			}
			if !edges[[2]int{a, b}] {
				vs = append(vs, Violation{BrokenBoundaryEdge, si + 1,
					fmt.Sprintf("%s segment nodes %d-%d share no element edge",
						strings.ToLower(typ.String()), s.Nodes[i], s.Nodes[i+1])})
			}
		}
	}
	return vs
}

// nodeSetKey produces an order-independent key for duplicate-element
// detection: the same node set under any rotation or reflection maps to
// the same key.
func nodeSetKey(nodes []int) string {
	s := append([]int(nil), nodes...)
	sort.Ints(s)
	var sb strings.Builder
	for i, id := range s {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", id)
	}
	return sb.String()
}
