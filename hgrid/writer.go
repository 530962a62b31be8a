package hgrid

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/notargets/gohgrid/mesh"
)

// Write serializes m as hgrid text, reproducing node, element, and
// boundary records in insertion order at the codec's fixed precision.
// Boundary blocks are emitted whenever the mesh has any boundary, with
// zero-count blocks for the other type so the file shape stays regular.
func (c *Codec) Write(w io.Writer, m *mesh.Mesh) error {
	bw := bufio.NewWriter(w)
	prec := c.precision()

	if m.CRS != "" {
		fmt.Fprintf(bw, "%s ! CRS=%s\n", m.Name, m.CRS)
	} else {
		fmt.Fprintf(bw, "%s\n", m.Name)
	}
	fmt.Fprintf(bw, "%d %d\n", m.NumElements(), m.NumNodes())

	for _, n := range m.Nodes() {
		fmt.Fprintf(bw, "%d %.*f %.*f %.*f\n", n.ID, prec, n.X, prec, n.Y, prec, n.Depth)
	}
	for _, e := range m.Elements() {
		fmt.Fprintf(bw, "%d %d", e.ID, len(e.Nodes))
		for _, id := range e.Nodes {
			fmt.Fprintf(bw, " %d", id)
		}
		fmt.Fprintln(bw)
	}

	open, land := m.OpenBoundaries(), m.LandBoundaries()
	if len(open) > 0 || len(land) > 0 {
		writeBoundaryBlock(bw, mesh.Open, open)
		writeBoundaryBlock(bw, mesh.Land, land)
	}
	return bw.Flush()
}

func writeBoundaryBlock(w io.Writer, typ mesh.BoundaryType, segs []mesh.Segment) {
	kind := strings.ToLower(typ.String())
	total := 0
	for _, s := range segs {
		total += len(s.Nodes)
	}
	fmt.Fprintf(w, "%d = number of %s boundaries\n", len(segs), kind)
	fmt.Fprintf(w, "%d = total number of %s boundary nodes\n", total, kind)
	for i, s := range segs {
		if typ == mesh.Land {
			fmt.Fprintf(w, "%d %d = number of nodes for %s boundary %d\n", len(s.Nodes), s.Flag, kind, i+1)
		} else {
			fmt.Fprintf(w, "%d = number of nodes for %s boundary %d\n", len(s.Nodes), kind, i+1)
		}
		for _, id := range s.Nodes {
			fmt.Fprintf(w, "%d\n", id)
		}
	}
}

// WriteString serializes m and returns the text.
func (c *Codec) WriteString(m *mesh.Mesh) (string, error) {
	var sb strings.Builder
	if err := c.Write(&sb, m); err != nil {
		return "", err
	}
	return sb.String(), nil
}
