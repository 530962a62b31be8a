// Package validate runs advisory topology checks over a finalized mesh.
// A Delaunay triangulation of the node point set serves as a geometric
// oracle that is independent of the mesh's declared connectivity. All
// findings are advisory: Validate never fails on a mesh that passed
// Finalize, it only describes it.
package validate

import (
	"io"
	"sort"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"

	"github.com/notargets/gohgrid/mesh"
)

// Kind classifies a topology finding.
type Kind int

const (
	// DuplicateNode flags nodes whose coordinates coincide within the
	// configured tolerance.
	DuplicateNode Kind = iota
	// BadWinding flags an element with non-positive signed area. Finalize
	// already rejects these, so it only appears on meshes assembled
	// through CloneWithCoords or inspected mid-diagnosis.
	BadWinding
	// SelfIntersectingBoundary flags a boundary polyline that crosses
	// itself.
	SelfIntersectingBoundary
	// SuspectConnectivity flags an element whose edges deviate from the
	// Delaunay oracle's local neighborhood beyond the threshold. A
	// quality heuristic, not a correctness proof.
	SuspectConnectivity
)

func (k Kind) String() string {
	return [...]string{
		"DuplicateNode", "BadWinding", "SelfIntersectingBoundary", "SuspectConnectivity",
	}[k]
}

// Issue is a single advisory finding. Which locator fields are meaningful
// depends on Kind: Nodes for DuplicateNode, Element for BadWinding and
// SuspectConnectivity, Boundary/Segment for SelfIntersectingBoundary.
type Issue struct {
	Kind     Kind
	Nodes    []int
	Element  int
	Boundary mesh.BoundaryType
	Segment  int
	Detail   string
}

// Options tunes the advisory checks.
type Options struct {
	// DuplicateTolerance is the distance below which two nodes count as
	// coincident, in source CRS units.
	DuplicateTolerance float64
	// SuspectThreshold is the fraction of an element's edges that must be
	// missing from the Delaunay oracle before the element is flagged.
	SuspectThreshold float64
}

// DefaultOptions returns the tolerances used when a zero Options is given.
func DefaultOptions() Options {
	return Options{
		DuplicateTolerance: 1e-8,
		SuspectThreshold:   0.75,
	}
}

// Validator runs the checks. The zero value uses DefaultOptions and
// discards diagnostics.
type Validator struct {
	Opts Options
	Log  logrus.FieldLogger
}

func (v *Validator) opts() Options {
	o := v.Opts
	def := DefaultOptions()
	if o.DuplicateTolerance <= 0 {
		o.DuplicateTolerance = def.DuplicateTolerance
	}
	if o.SuspectThreshold <= 0 {
		o.SuspectThreshold = def.SuspectThreshold
	}
	return o
}

func (v *Validator) log() logrus.FieldLogger {
	if v.Log != nil {
		return v.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Validate returns the ordered advisory findings for a finalized mesh:
// duplicate nodes first (by lowest node ID), then winding diagnostics,
// boundary self-intersections, and oracle deviations, each ordered by
// identifier. The mesh is never mutated.
func (v *Validator) Validate(m *mesh.Mesh) ([]Issue, error) {
	if !m.Finalized() {
		return nil, mesh.ErrNotFinalized
	}
	opts := v.opts()

	nodes := m.Nodes()
	xs := make([]float64, len(nodes))
	ys := make([]float64, len(nodes))
	for i, n := range nodes {
		xs[i], ys[i] = n.X, n.Y
	}

	var issues []Issue
	issues = append(issues, duplicateNodes(nodes, opts.DuplicateTolerance)...)
	issues = append(issues, windingIssues(m)...)
	issues = append(issues, boundaryIssues(m)...)
	issues = append(issues, v.oracleIssues(m, xs, ys, opts.SuspectThreshold)...)

	v.log().WithFields(logrus.Fields{
		"nodes":  len(nodes),
		"issues": len(issues),
	}).Debug("validate: topology check complete")
	return issues, nil
}

// duplicateNodes clusters nodes closer than tol using a spatial hash with
// tol-sized cells, so only the 3x3 cell neighborhood of each node is
// compared.
func duplicateNodes(nodes []mesh.Node, tol float64) []Issue {
	cells := make(map[[2]int64][]int, len(nodes))
	cellOf := func(n mesh.Node) [2]int64 {
		return [2]int64{int64(n.X / tol), int64(n.Y / tol)}
	}
	for i, n := range nodes {
		c := cellOf(n)
		cells[c] = append(cells[c], i)
	}

	parent := make([]int, len(nodes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) { parent[find(i)] = find(j) }

	tol2 := tol * tol
	for i, n := range nodes {
		c := cellOf(n)
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, j := range cells[[2]int64{c[0] + dx, c[1] + dy}] {
					if j <= i {
						continue
					}
					ddx := nodes[j].X - n.X
					ddy := nodes[j].Y - n.Y
					if ddx*ddx+ddy*ddy <= tol2 {
						union(i, j)
					}
				}
			}
		}
	}

	groups := make(map[int][]int)
	for i := range nodes {
		r := find(i)
		groups[r] = append(groups[r], i)
	}
	var issues []Issue
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		ids := make([]int, len(g))
		for i, idx := range g {
			ids[i] = nodes[idx].ID
		}
		sort.Ints(ids)
		issues = append(issues, Issue{Kind: DuplicateNode, Nodes: ids,
			Detail: "coincident node coordinates"})
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Nodes[0] < issues[j].Nodes[0] })
	return issues
}

func windingIssues(m *mesh.Mesh) []Issue {
	var issues []Issue
	for _, e := range m.Elements() {
		if m.SignedArea(e) <= 0 {
			issues = append(issues, Issue{Kind: BadWinding, Element: e.ID,
				Detail: "non-positive signed area"})
		}
	}
	return issues
}

// boundaryIssues checks each boundary polyline for self-intersection.
// Island rings (land flag 1) include the closing edge back to the first
// node.
func boundaryIssues(m *mesh.Mesh) []Issue {
	var issues []Issue
	for _, typ := range []mesh.BoundaryType{mesh.Open, mesh.Land} {
		for si, s := range m.Boundaries(typ) {
			pts := make([]geom.Point, len(s.Nodes))
			for i, id := range s.Nodes {
				n, _ := m.Node(id)
				pts[i] = geom.Point{X: n.X, Y: n.Y}
			}
			if polylineSelfIntersects(pts, s.IsRing()) {
				issues = append(issues, Issue{Kind: SelfIntersectingBoundary,
					Boundary: typ, Segment: si + 1,
					Detail: "boundary polyline crosses itself"})
			}
		}
	}
	return issues
}

// polylineSelfIntersects runs the pairwise proper-crossing test over the
// polyline's edges, skipping pairs that share an endpoint. Boundary
// segments are short relative to the mesh, so the quadratic pass is fine.
func polylineSelfIntersects(pts []geom.Point, ring bool) bool {
	n := len(pts)
	if n < 4 && !ring {
		return false
	}
	numEdges := n - 1
	if ring {
		numEdges = n
	}
	edge := func(i int) (geom.Point, geom.Point) {
		return pts[i], pts[(i+1)%n]
	}
	for i := 0; i < numEdges; i++ {
		for j := i + 2; j < numEdges; j++ {
			if ring && i == 0 && j == numEdges-1 {
				continue // those two share the ring's first point
			}
			a, b := edge(i)
			c, d := edge(j)
			if segmentsCross(a, b, c, d) {
				return true
			}
		}
	}
	return false
}

func orient(a, b, c geom.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (c.X-a.X)*(b.Y-a.Y)
}

// segmentsCross reports a proper crossing of ab and cd (shared endpoints
// and mere touching do not count).
func segmentsCross(a, b, c, d geom.Point) bool {
	d1 := orient(a, b, c)
	d2 := orient(a, b, d)
	d3 := orient(c, d, a)
	d4 := orient(c, d, b)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// oracleIssues compares each element's edge set against the Delaunay
// triangulation of the node point set. Quadrilaterals are compared on
// their four perimeter edges; the oracle is triangle-only, so a quad's
// diagonal is not expected to appear in it and is not counted against
// the element.
func (v *Validator) oracleIssues(m *mesh.Mesh, xs, ys []float64, threshold float64) []Issue {
	tris := triangulate(xs, ys)
	if tris == nil {
		return nil
	}
	oracle := oracleEdges(tris)

	var issues []Issue
	for _, e := range m.Elements() {
		k := len(e.Nodes)
		missing := 0
		for i := 0; i < k; i++ {
			// Oracle edges are keyed by 0-based point index.
			a, b := e.Nodes[i]-1, e.Nodes[(i+1)%k]-1
			if !oracle[orderEdge([2]int{a, b})] {
				missing++
			}
		}
		if frac := float64(missing) / float64(k); frac >= threshold {
			issues = append(issues, Issue{Kind: SuspectConnectivity, Element: e.ID,
				Detail: "element edges absent from reference triangulation"})
		}
	}
	return issues
}
