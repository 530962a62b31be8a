// Package mesh holds the in-memory representation of a SCHISM horizontal
// grid: nodes with bathymetry, triangular/quadrilateral elements, and typed
// open/land boundaries. Construction is two-phase: Add* calls accumulate
// data without cross-reference checks so that callers (and the hgrid codec)
// may insert in any order, and a single Finalize pass checks every
// structural invariant at once. After a successful Finalize the mesh is
// immutable.
package mesh

import (
	"fmt"
	"sync"
)

// BoundaryType distinguishes ocean-facing from coastal boundary segments.
type BoundaryType int

const (
	Open BoundaryType = iota
	Land
)

func (b BoundaryType) String() string {
	return [...]string{"Open", "Land"}[b]
}

// Node is a grid point. IDs are 1-based and dense: a finalized mesh with N
// nodes contains exactly the IDs 1..N.
type Node struct {
	ID    int
	X, Y  float64
	Depth float64
}

// Element is a triangle or quadrilateral given as an ordered,
// counter-clockwise list of node IDs.
type Element struct {
	ID    int
	Nodes []int
}

// Segment is one boundary polyline. Flag carries the land-boundary type
// from the hgrid land block (0 = exterior coast, 1 = island ring); it is
// zero for open segments.
type Segment struct {
	Nodes []int
	Flag  int
}

// IsRing reports whether the segment closes on itself (island boundaries).
func (s Segment) IsRing() bool {
	return s.Flag == 1
}

// Mesh exclusively owns its nodes, elements and boundaries. The zero value
// is not usable; call New.
type Mesh struct {
	Name string
	CRS  string

	nodes    []Node
	elements []Element
	open     []Segment
	land     []Segment

	finalized bool

	touchOnce sync.Once
	touching  map[int][]int
}

// New returns an empty mesh in the accumulation phase.
func New(name string) *Mesh {
	return &Mesh{Name: name}
}

// AddNode appends a node. No cross-reference or uniqueness check happens
// here; Finalize reports all violations in one pass.
func (m *Mesh) AddNode(n Node) error {
	if m.finalized {
		return ErrFinalized
	}
	m.nodes = append(m.nodes, n)
	return nil
}

// AddElement appends an element. Node references may be forward
// references; they are resolved during Finalize.
func (m *Mesh) AddElement(e Element) error {
	if m.finalized {
		return ErrFinalized
	}
	m.elements = append(m.elements, e)
	return nil
}

// AddBoundarySegment appends a boundary polyline of the given type.
func (m *Mesh) AddBoundarySegment(typ BoundaryType, s Segment) error {
	if m.finalized {
		return ErrFinalized
	}
	switch typ {
	case Open:
		m.open = append(m.open, s)
	case Land:
		m.land = append(m.land, s)
	default:
		return fmt.Errorf("mesh: unknown boundary type %d", typ)
	}
	return nil
}

// Finalized reports whether the mesh passed Finalize and is immutable.
func (m *Mesh) Finalized() bool {
	return m.finalized
}

func (m *Mesh) NumNodes() int    { return len(m.nodes) }
func (m *Mesh) NumElements() int { return len(m.elements) }

// Node returns the node with the given 1-based ID. Valid only on a
// finalized mesh, where IDs are guaranteed dense.
func (m *Mesh) Node(id int) (Node, error) {
	if !m.finalized {
		return Node{}, ErrNotFinalized
	}
	if id < 1 || id > len(m.nodes) {
		return Node{}, fmt.Errorf("mesh: node %d out of range [1,%d]: %w", id, len(m.nodes), ErrUnknownID)
	}
	return m.nodes[id-1], nil
}

// Element returns the element with the given 1-based ID on a finalized mesh.
func (m *Mesh) Element(id int) (Element, error) {
	if !m.finalized {
		return Element{}, ErrNotFinalized
	}
	if id < 1 || id > len(m.elements) {
		return Element{}, fmt.Errorf("mesh: element %d out of range [1,%d]: %w", id, len(m.elements), ErrUnknownID)
	}
	return m.elements[id-1], nil
}

// Nodes returns the nodes in insertion order. The slice is shared; callers
// must not modify it.
func (m *Mesh) Nodes() []Node { return m.nodes }

// Elements returns the elements in insertion order. The slice is shared;
// callers must not modify it.
func (m *Mesh) Elements() []Element { return m.elements }

// OpenBoundaries returns the open (ocean-facing) boundary segments in
// insertion order.
func (m *Mesh) OpenBoundaries() []Segment { return m.open }

// LandBoundaries returns the land boundary segments in insertion order.
func (m *Mesh) LandBoundaries() []Segment { return m.land }

// Boundaries returns the segments of the given type.
func (m *Mesh) Boundaries(typ BoundaryType) []Segment {
	if typ == Open {
		return m.open
	}
	return m.land
}

// BoundaryXY returns the (x, y) coordinates tracing a boundary segment.
// Requires a finalized mesh.
func (m *Mesh) BoundaryXY(s Segment) ([][2]float64, error) {
	if !m.finalized {
		return nil, ErrNotFinalized
	}
	xy := make([][2]float64, len(s.Nodes))
	for i, id := range s.Nodes {
		n := m.nodes[id-1]
		xy[i] = [2]float64{n.X, n.Y}
	}
	return xy, nil
}

// ElementsTouching returns the IDs of all elements incident to the given
// node. The node-to-element map is built lazily on first use; mutation is
// impossible after Finalize, so the map stays valid for the life of the
// mesh.
func (m *Mesh) ElementsTouching(nodeID int) ([]int, error) {
	if !m.finalized {
		return nil, ErrNotFinalized
	}
	if nodeID < 1 || nodeID > len(m.nodes) {
		return nil, fmt.Errorf("mesh: node %d out of range [1,%d]: %w", nodeID, len(m.nodes), ErrUnknownID)
	}
	m.touchOnce.Do(func() {
		m.touching = make(map[int][]int, len(m.nodes))
		for _, e := range m.elements {
			for _, id := range e.Nodes {
				m.touching[id] = append(m.touching[id], e.ID)
			}
		}
	})
	return m.touching[nodeID], nil
}

// CloneWithCoords returns a finalized copy of m whose node (x, y) pairs are
// replaced by xs and ys. Depth values, elements and boundaries are copied
// unchanged and crs becomes the new mesh's coordinate system. The receiver
// must be finalized, so the clone is finalized without re-running the
// invariant pass: connectivity is untouched.
func (m *Mesh) CloneWithCoords(xs, ys []float64, crs string) (*Mesh, error) {
	if !m.finalized {
		return nil, ErrNotFinalized
	}
	if len(xs) != len(m.nodes) || len(ys) != len(m.nodes) {
		return nil, fmt.Errorf("mesh: coordinate slice length %d/%d does not match %d nodes",
			len(xs), len(ys), len(m.nodes))
	}
	out := &Mesh{
		Name:      m.Name,
		CRS:       crs,
		nodes:     make([]Node, len(m.nodes)),
		elements:  make([]Element, len(m.elements)),
		open:      make([]Segment, len(m.open)),
		land:      make([]Segment, len(m.land)),
		finalized: true,
	}
	for i, n := range m.nodes {
		n.X, n.Y = xs[i], ys[i]
		out.nodes[i] = n
	}
	for i, e := range m.elements {
		e.Nodes = append([]int(nil), e.Nodes...)
		out.elements[i] = e
	}
	for i, s := range m.open {
		s.Nodes = append([]int(nil), s.Nodes...)
		out.open[i] = s
	}
	for i, s := range m.land {
		s.Nodes = append([]int(nil), s.Nodes...)
		out.land[i] = s
	}
	return out, nil
}

// SignedArea computes the shoelace area of an element's node loop.
// Counter-clockwise winding yields a positive area. Quadrilaterals use the
// full 4-node shoelace sum. Valid only once node references resolve, i.e.
// during Finalize or on a finalized mesh.
func (m *Mesh) SignedArea(e Element) float64 {
	var sum float64
	k := len(e.Nodes)
	for i := 0; i < k; i++ {
		a := m.nodes[e.Nodes[i]-1]
		b := m.nodes[e.Nodes[(i+1)%k]-1]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}
