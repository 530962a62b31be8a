package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitSquare builds the canonical 4-node unit square split into two
// counter-clockwise triangles, with one open and one land boundary
// segment.
func unitSquare(t *testing.T) *Mesh {
	t.Helper()
	m := New("unit square")
	m.CRS = "+proj=longlat +datum=WGS84 +no_defs"
	coords := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i, c := range coords {
		require.NoError(t, m.AddNode(Node{ID: i + 1, X: c[0], Y: c[1], Depth: 10.5}))
	}
	require.NoError(t, m.AddElement(Element{ID: 1, Nodes: []int{1, 2, 3}}))
	require.NoError(t, m.AddElement(Element{ID: 2, Nodes: []int{1, 3, 4}}))
	require.NoError(t, m.AddBoundarySegment(Open, Segment{Nodes: []int{1, 2}}))
	require.NoError(t, m.AddBoundarySegment(Land, Segment{Nodes: []int{3, 4}}))
	return m
}

func TestFinalizeUnitSquare(t *testing.T) {
	m := unitSquare(t)
	require.NoError(t, m.Finalize())
	assert.True(t, m.Finalized())
	assert.Equal(t, 4, m.NumNodes())
	assert.Equal(t, 2, m.NumElements())

	// Idempotent once finalized.
	require.NoError(t, m.Finalize())

	// Immutable once finalized.
	assert.ErrorIs(t, m.AddNode(Node{ID: 5}), ErrFinalized)
	assert.ErrorIs(t, m.AddElement(Element{ID: 3, Nodes: []int{1, 2, 4}}), ErrFinalized)
	assert.ErrorIs(t, m.AddBoundarySegment(Open, Segment{Nodes: []int{2, 3}}), ErrFinalized)
}

func TestFinalizeCollectsAllViolations(t *testing.T) {
	m := New("broken")
	m.AddNode(Node{ID: 1, X: 0, Y: 0})
	m.AddNode(Node{ID: 1, X: 1, Y: 0}) // duplicate ID, and ID 2 missing
	m.AddElement(Element{ID: 1, Nodes: []int{1, 1, 7}})

	err := m.Finalize()
	require.Error(t, err)
	assert.False(t, m.Finalized())

	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	kinds := make(map[ViolationKind]int)
	for _, v := range inv.Violations {
		kinds[v.Kind]++
	}
	assert.Equal(t, 1, kinds[DuplicateNodeID])
	assert.Equal(t, 1, kinds[NonContiguousNodeID])
	assert.Equal(t, 1, kinds[DanglingNodeRef])
	assert.Equal(t, 1, kinds[RepeatedElementNode])
}

func TestFinalizeRejectsBadWinding(t *testing.T) {
	m := unitSquare(t)
	m.AddElement(Element{ID: 3, Nodes: []int{2, 4, 3}}) // clockwise

	err := m.Finalize()
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	require.Len(t, inv.Violations, 1)
	assert.Equal(t, NonPositiveArea, inv.Violations[0].Kind)
	assert.Equal(t, 3, inv.Violations[0].ID)
}

func TestFinalizeRejectsDuplicateElement(t *testing.T) {
	m := unitSquare(t)
	// Same node set as element 1, rotated.
	m.AddElement(Element{ID: 3, Nodes: []int{2, 3, 1}})

	err := m.Finalize()
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	require.Len(t, inv.Violations, 1)
	assert.Equal(t, DuplicateElement, inv.Violations[0].Kind)
}

func TestFinalizeRejectsDisconnectedBoundaryPair(t *testing.T) {
	m := unitSquare(t)
	// 2 and 4 are opposite corners with no shared element edge.
	m.AddBoundarySegment(Open, Segment{Nodes: []int{2, 4}})

	err := m.Finalize()
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	require.Len(t, inv.Violations, 1)
	assert.Equal(t, BrokenBoundaryEdge, inv.Violations[0].Kind)
}

func TestFinalizeRejectsBadElementSize(t *testing.T) {
	m := unitSquare(t)
	m.AddElement(Element{ID: 3, Nodes: []int{1, 2}})

	err := m.Finalize()
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	require.Len(t, inv.Violations, 1)
	assert.Equal(t, BadElementSize, inv.Violations[0].Kind)
}

func TestFinalizeAcceptsQuad(t *testing.T) {
	m := New("one quad")
	coords := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i, c := range coords {
		m.AddNode(Node{ID: i + 1, X: c[0], Y: c[1]})
	}
	m.AddElement(Element{ID: 1, Nodes: []int{1, 2, 3, 4}})
	require.NoError(t, m.Finalize())
}

func TestFinalizeRejectsFoldedQuad(t *testing.T) {
	m := New("bowtie quad")
	// 3 and 4 swapped: the loop crosses itself but the shoelace sum can
	// stay positive.
	coords := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for i, c := range coords {
		m.AddNode(Node{ID: i + 1, X: c[0], Y: c[1]})
	}
	m.AddElement(Element{ID: 1, Nodes: []int{1, 2, 3, 4}})

	err := m.Finalize()
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	require.Len(t, inv.Violations, 1)
	assert.Equal(t, NonPositiveArea, inv.Violations[0].Kind)
}

func TestFinalizeAcceptsReflexQuad(t *testing.T) {
	m := New("arrowhead quad")
	// Simple counter-clockwise quad with a reflex vertex at node 2: only
	// the 2-4 diagonal splits it into two counter-clockwise triangles.
	coords := [][2]float64{{2, 0}, {0.9, 0.9}, {0, 2}, {0, 0}}
	for i, c := range coords {
		m.AddNode(Node{ID: i + 1, X: c[0], Y: c[1]})
	}
	m.AddElement(Element{ID: 1, Nodes: []int{1, 2, 3, 4}})
	require.NoError(t, m.Finalize())

	e, err := m.Element(1)
	require.NoError(t, err)
	assert.Greater(t, m.SignedArea(e), 0.0)
}

func TestFinalizeFailureKeepsInsertionOrder(t *testing.T) {
	m := New("scrambled and broken")
	m.AddNode(Node{ID: 3, X: 1, Y: 1})
	m.AddNode(Node{ID: 1, X: 0, Y: 0})
	m.AddNode(Node{ID: 2, X: 1, Y: 0})
	m.AddElement(Element{ID: 2, Nodes: []int{1, 2, 3}})
	m.AddElement(Element{ID: 1, Nodes: []int{1, 2, 9}})

	var inv *InvariantError
	require.ErrorAs(t, m.Finalize(), &inv)
	assert.False(t, m.Finalized())

	// The failed pass must not reorder anything: the mesh is still in the
	// accumulation phase and callers see exactly what they inserted.
	ids := make([]int, 0, m.NumNodes())
	for _, n := range m.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []int{3, 1, 2}, ids)
	assert.Equal(t, 2, m.Elements()[0].ID)
	assert.Equal(t, 1, m.Elements()[1].ID)
}

func TestFinalizeNormalizesOutOfOrderIDs(t *testing.T) {
	m := New("scrambled")
	m.AddNode(Node{ID: 2, X: 1, Y: 0})
	m.AddNode(Node{ID: 3, X: 1, Y: 1})
	m.AddNode(Node{ID: 1, X: 0, Y: 0})
	m.AddElement(Element{ID: 1, Nodes: []int{1, 2, 3}})
	require.NoError(t, m.Finalize())

	n, err := m.Node(2)
	require.NoError(t, err)
	assert.Equal(t, 2, n.ID)
	assert.Equal(t, 1.0, n.X)
}

func TestElementsTouching(t *testing.T) {
	m := unitSquare(t)

	_, err := m.ElementsTouching(1)
	assert.ErrorIs(t, err, ErrNotFinalized)

	require.NoError(t, m.Finalize())
	ids, err := m.ElementsTouching(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, ids)

	ids, err = m.ElementsTouching(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1}, ids)

	_, err = m.ElementsTouching(9)
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestBoundaryAccessors(t *testing.T) {
	m := unitSquare(t)
	require.NoError(t, m.Finalize())

	open := m.OpenBoundaries()
	require.Len(t, open, 1)
	assert.Equal(t, []int{1, 2}, open[0].Nodes)

	land := m.LandBoundaries()
	require.Len(t, land, 1)
	assert.Equal(t, []int{3, 4}, land[0].Nodes)

	xy, err := m.BoundaryXY(open[0])
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{0, 0}, {1, 0}}, xy)
}

func TestCloneWithCoords(t *testing.T) {
	m := unitSquare(t)

	_, err := m.CloneWithCoords([]float64{0}, []float64{0}, "x")
	assert.ErrorIs(t, err, ErrNotFinalized)

	require.NoError(t, m.Finalize())
	_, err = m.CloneWithCoords([]float64{0}, []float64{0}, "x")
	assert.Error(t, err)

	xs := []float64{10, 11, 11, 10}
	ys := []float64{20, 20, 21, 21}
	out, err := m.CloneWithCoords(xs, ys, "EPSG:26918")
	require.NoError(t, err)
	assert.True(t, out.Finalized())
	assert.Equal(t, "EPSG:26918", out.CRS)

	// Structure is untouched, coordinates and CRS replaced, depth kept.
	assert.Equal(t, m.Elements(), out.Elements())
	assert.Equal(t, m.OpenBoundaries(), out.OpenBoundaries())
	n, err := out.Node(3)
	require.NoError(t, err)
	assert.Equal(t, 11.0, n.X)
	assert.Equal(t, 21.0, n.Y)
	assert.Equal(t, 10.5, n.Depth)

	// The source mesh keeps its coordinates.
	orig, err := m.Node(3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, orig.X)
}

func TestStatsAndFingerprint(t *testing.T) {
	m := unitSquare(t)

	_, err := m.Stats()
	assert.ErrorIs(t, err, ErrNotFinalized)

	require.NoError(t, m.Finalize())
	s, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, s.Nodes)
	assert.Equal(t, 2, s.Triangles)
	assert.Equal(t, 0, s.Quads)
	assert.Equal(t, 1, s.OpenSegments)
	assert.Equal(t, 1, s.LandSegments)
	assert.InDelta(t, 10.5, s.DepthMean, 1e-12)

	fp1, err := m.Fingerprint()
	require.NoError(t, err)

	same := unitSquare(t)
	require.NoError(t, same.Finalize())
	fp2, err := same.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	moved, err := m.CloneWithCoords([]float64{0, 1, 1, 0}, []float64{0, 0, 1, 1.5}, m.CRS)
	require.NoError(t, err)
	fp3, err := moved.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)
}

func TestSignedArea(t *testing.T) {
	m := unitSquare(t)
	require.NoError(t, m.Finalize())

	e, err := m.Element(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m.SignedArea(e), 1e-12)

	// Reversing the loop flips the sign.
	rev := Element{Nodes: []int{3, 2, 1}}
	assert.InDelta(t, -0.5, m.SignedArea(rev), 1e-12)
}
