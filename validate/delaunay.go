package validate

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// triangle references three point indices into the coordinate slices
// handed to triangulate.
type triangle struct {
	a, b, c int
}

func (t triangle) edges() [3][2]int {
	return [3][2]int{{t.a, t.b}, {t.b, t.c}, {t.c, t.a}}
}

// inCircumcircle reports whether point d lies strictly inside the circle
// through a, b, c. The determinant test is sign-corrected for the
// triangle's handedness so callers need not order a, b, c.
func inCircumcircle(ax, ay, bx, by, cx, cy, dx, dy float64) bool {
	ccw := (bx-ax)*(cy-ay)-(cx-ax)*(by-ay) > 0
	ax, ay = ax-dx, ay-dy
	bx, by = bx-dx, by-dy
	cx, cy = cx-dx, cy-dy
	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)
	if ccw {
		return det > 0
	}
	return det < 0
}

// triangulate computes a Delaunay triangulation of the point set by
// Bowyer–Watson incremental insertion. The result is used purely as a
// geometric oracle, so the O(n) cavity search per insertion is acceptable
// for meshes in the tens of thousands of nodes.
func triangulate(xs, ys []float64) []triangle {
	n := len(xs)
	if n < 3 {
		return nil
	}

	// Super-triangle comfortably containing the point extent.
	minX, maxX := floats.Min(xs), floats.Max(xs)
	minY, maxY := floats.Min(ys), floats.Max(ys)
	d := math.Max(maxX-minX, maxY-minY)
	if d == 0 {
		d = 1
	}
	midX, midY := (minX+maxX)/2, (minY+maxY)/2
	px := append(append([]float64(nil), xs...), midX-20*d, midX+20*d, midX)
	py := append(append([]float64(nil), ys...), midY-d, midY-d, midY+20*d)
	s0, s1, s2 := n, n+1, n+2

	tris := []triangle{{s0, s1, s2}}
	for p := 0; p < n; p++ {
		// Cavity: triangles whose circumcircle contains the new point.
		bad := make([]bool, len(tris))
		edgeCount := make(map[[2]int]int)
		for i, t := range tris {
			if inCircumcircle(px[t.a], py[t.a], px[t.b], py[t.b], px[t.c], py[t.c], px[p], py[p]) {
				bad[i] = true
				for _, e := range t.edges() {
					edgeCount[orderEdge(e)]++
				}
			}
		}
		// Boundary of the cavity: edges owned by exactly one bad triangle.
		var kept []triangle
		for i, t := range tris {
			if !bad[i] {
				kept = append(kept, t)
			}
		}
		for e, count := range edgeCount {
			if count == 1 {
				kept = append(kept, triangle{e[0], e[1], p})
			}
		}
		tris = kept
	}

	// Drop every triangle touching the super-triangle vertices.
	var out []triangle
	for _, t := range tris {
		if t.a < n && t.b < n && t.c < n {
			out = append(out, t)
		}
	}
	return out
}

func orderEdge(e [2]int) [2]int {
	if e[0] > e[1] {
		return [2]int{e[1], e[0]}
	}
	return e
}

// oracleEdges collects the undirected edge set of a triangulation keyed
// by ordered point-index pairs.
func oracleEdges(tris []triangle) map[[2]int]bool {
	edges := make(map[[2]int]bool, 3*len(tris))
	for _, t := range tris {
		for _, e := range t.edges() {
			edges[orderEdge(e)] = true
		}
	}
	return edges
}
