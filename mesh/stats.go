package mesh

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Stats summarizes a mesh for change detection and reporting.
type Stats struct {
	Nodes        int
	Triangles    int
	Quads        int
	OpenSegments int
	LandSegments int
	DepthMin     float64
	DepthMax     float64
	DepthMean    float64
}

// Stats computes summary statistics. Requires a finalized mesh.
func (m *Mesh) Stats() (Stats, error) {
	if !m.finalized {
		return Stats{}, ErrNotFinalized
	}
	s := Stats{
		Nodes:        len(m.nodes),
		OpenSegments: len(m.open),
		LandSegments: len(m.land),
	}
	for _, e := range m.elements {
		if len(e.Nodes) == 3 {
			s.Triangles++
		} else {
			s.Quads++
		}
	}
	for i, n := range m.nodes {
		if i == 0 || n.Depth < s.DepthMin {
			s.DepthMin = n.Depth
		}
		if i == 0 || n.Depth > s.DepthMax {
			s.DepthMax = n.Depth
		}
		s.DepthMean += n.Depth
	}
	if len(m.nodes) > 0 {
		s.DepthMean /= float64(len(m.nodes))
	}
	return s, nil
}

// Fingerprint returns a hex SHA-256 over the mesh's canonical content:
// name, CRS, full-precision node and element records, and boundary
// segments. Two finalized meshes with identical content fingerprint
// identically regardless of how they were assembled.
func (m *Mesh) Fingerprint() (string, error) {
	if !m.finalized {
		return "", ErrNotFinalized
	}
	h := sha256.New()
	m.writeCanonical(h)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (m *Mesh) writeCanonical(w io.Writer) {
	fmt.Fprintf(w, "%s\n%s\n%d %d\n", m.Name, m.CRS, len(m.elements), len(m.nodes))
	for _, n := range m.nodes {
		fmt.Fprintf(w, "%d %.17g %.17g %.17g\n", n.ID, n.X, n.Y, n.Depth)
	}
	for _, e := range m.elements {
		fmt.Fprintf(w, "%d %d", e.ID, len(e.Nodes))
		for _, id := range e.Nodes {
			fmt.Fprintf(w, " %d", id)
		}
		fmt.Fprintln(w)
	}
	for _, segs := range [][]Segment{m.open, m.land} {
		fmt.Fprintf(w, "%d\n", len(segs))
		for _, s := range segs {
			fmt.Fprintf(w, "%d %d", len(s.Nodes), s.Flag)
			for _, id := range s.Nodes {
				fmt.Fprintf(w, " %d", id)
			}
			fmt.Fprintln(w)
		}
	}
}
