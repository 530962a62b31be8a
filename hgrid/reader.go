package hgrid

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/notargets/gohgrid/mesh"
)

// lineScanner wraps bufio.Scanner with line counting and comment
// stripping so parse errors carry the 1-based source line.
type lineScanner struct {
	s    *bufio.Scanner
	line int
}

func newLineScanner(r io.Reader) *lineScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &lineScanner{s: s}
}

// next returns the next line with any '!' comment removed, skipping
// nothing: blank content still counts as a line so positional formats
// stay aligned with the file.
func (ls *lineScanner) next() (string, bool) {
	if !ls.s.Scan() {
		return "", false
	}
	ls.line++
	text := ls.s.Text()
	if idx := strings.IndexByte(text, '!'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text), true
}

// nextComment returns the next raw line split into content and the '!'
// comment tail, used for the name line where the comment may carry
// metadata.
func (ls *lineScanner) nextComment() (content, comment string, ok bool) {
	if !ls.s.Scan() {
		return "", "", false
	}
	ls.line++
	text := ls.s.Text()
	if idx := strings.IndexByte(text, '!'); idx >= 0 {
		return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+1:]), true
	}
	return strings.TrimSpace(text), "", true
}

func (ls *lineScanner) errf(format string, args ...interface{}) error {
	return &ParseError{Line: ls.line, Reason: fmt.Sprintf(format, args...)}
}

// eoferrf points at the line where content was expected but the input
// ended.
func (ls *lineScanner) eoferrf(format string, args ...interface{}) error {
	return &ParseError{Line: ls.line + 1, Reason: fmt.Sprintf(format, args...)}
}

// counts extracts the leading integer fields of a header line. Real-world
// hgrid headers carry free-text trailers ("2 = number of open boundaries"),
// so tokens from the first '=' on are ignored.
func counts(line string, want int) ([]int, error) {
	if idx := strings.IndexByte(line, '='); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	if len(fields) < want {
		return nil, fmt.Errorf("expected %d count field(s), got %d", want, len(fields))
	}
	out := make([]int, want)
	for i := 0; i < want; i++ {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return nil, fmt.Errorf("bad count %q: %v", fields[i], err)
		}
		out[i] = v
	}
	return out, nil
}

// Read parses hgrid text into a finalized mesh. Any line that cannot be
// tokenized aborts with *ParseError; invariant failures found by the
// mesh's global pass abort with *mesh.InvariantError. No partial mesh is
// ever returned.
func (c *Codec) Read(r io.Reader) (*mesh.Mesh, error) {
	ls := newLineScanner(r)

	name, comment, ok := ls.nextComment()
	if !ok {
		return nil, ls.eoferrf("empty input, expected name line")
	}
	m := mesh.New(name)
	// The grid CRS rides in the name-line comment as CRS=<value>. The
	// value may be a proj4 string with spaces, so it runs to the end of
	// the comment.
	if i := strings.Index(comment, "CRS="); i >= 0 {
		m.CRS = strings.TrimSpace(comment[i+len("CRS="):])
	}

	line, ok := ls.next()
	if !ok {
		return nil, ls.eoferrf("unexpected EOF, expected element and node counts")
	}
	hdr, err := counts(line, 2)
	if err != nil {
		return nil, ls.errf("%v", err)
	}
	ne, np := hdr[0], hdr[1]
	if ne < 0 || np < 0 {
		return nil, ls.errf("negative count: NE=%d NP=%d", ne, np)
	}

	for i := 0; i < np; i++ {
		line, ok = ls.next()
		if !ok {
			return nil, ls.eoferrf("unexpected EOF reading node %d of %d", i+1, np)
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, ls.errf("node line has %d field(s), want id x y depth", len(fields))
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, ls.errf("bad node ID %q: %v", fields[0], err)
		}
		var coords [3]float64
		for j := 0; j < 3; j++ {
			coords[j], err = strconv.ParseFloat(fields[j+1], 64)
			if err != nil {
				return nil, ls.errf("bad coordinate %q: %v", fields[j+1], err)
			}
		}
		// Deferred validation: accumulate unconditionally, one invariant
		// pass at the end.
		if err := m.AddNode(mesh.Node{ID: id, X: coords[0], Y: coords[1], Depth: coords[2]}); err != nil {
			return nil, err
		}
	}

	for i := 0; i < ne; i++ {
		line, ok = ls.next()
		if !ok {
			return nil, ls.eoferrf("unexpected EOF reading element %d of %d", i+1, ne)
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, ls.errf("element line has %d field(s), want id count nodes...", len(fields))
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, ls.errf("bad element ID %q: %v", fields[0], err)
		}
		nv, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, ls.errf("bad element node count %q: %v", fields[1], err)
		}
		if nv < 1 || len(fields) < 2+nv {
			return nil, ls.errf("element %d declares %d node(s), line has %d", id, nv, len(fields)-2)
		}
		nodes := make([]int, nv)
		for j := 0; j < nv; j++ {
			nodes[j], err = strconv.Atoi(fields[2+j])
			if err != nil {
				return nil, ls.errf("bad node reference %q: %v", fields[2+j], err)
			}
		}
		if err := m.AddElement(mesh.Element{ID: id, Nodes: nodes}); err != nil {
			return nil, err
		}
	}

	// Boundary blocks are optional; EOF here is a complete bare grid.
	if err := c.readBoundaries(ls, m); err != nil {
		return nil, err
	}

	if err := m.Finalize(); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Codec) readBoundaries(ls *lineScanner, m *mesh.Mesh) error {
	for _, typ := range []mesh.BoundaryType{mesh.Open, mesh.Land} {
		line, ok := ls.next()
		for ok && line == "" {
			line, ok = ls.next()
		}
		if !ok {
			return nil
		}
		hdr, err := counts(line, 1)
		if err != nil {
			return ls.errf("%s boundary count: %v", strings.ToLower(typ.String()), err)
		}
		nseg := hdr[0]

		line, ok = ls.next()
		if !ok {
			return ls.eoferrf("unexpected EOF, expected total %s boundary node count", strings.ToLower(typ.String()))
		}
		total, err := counts(line, 1)
		if err != nil {
			return ls.errf("%s boundary node total: %v", strings.ToLower(typ.String()), err)
		}

		read := 0
		for s := 0; s < nseg; s++ {
			line, ok = ls.next()
			if !ok {
				return ls.eoferrf("unexpected EOF reading %s segment %d of %d", strings.ToLower(typ.String()), s+1, nseg)
			}
			// Land segment headers may carry a type flag after the count
			// (0 exterior, 1 island ring); open headers are count only.
			want := 1
			if idx := strings.IndexByte(line, '='); idx >= 0 {
				line = line[:idx]
			}
			fields := strings.Fields(line)
			if typ == mesh.Land && len(fields) >= 2 {
				want = 2
			}
			hdr, err := counts(strings.Join(fields, " "), want)
			if err != nil {
				return ls.errf("segment header: %v", err)
			}
			seg := mesh.Segment{Nodes: make([]int, hdr[0])}
			if want == 2 {
				seg.Flag = hdr[1]
			}
			for j := 0; j < hdr[0]; j++ {
				line, ok = ls.next()
				if !ok {
					return ls.eoferrf("unexpected EOF reading %s segment %d node %d", strings.ToLower(typ.String()), s+1, j+1)
				}
				nf := strings.Fields(line)
				if len(nf) < 1 {
					return ls.errf("blank line where boundary node expected")
				}
				seg.Nodes[j], err = strconv.Atoi(nf[0])
				if err != nil {
					return ls.errf("bad boundary node %q: %v", nf[0], err)
				}
			}
			read += len(seg.Nodes)
			if err := m.AddBoundarySegment(typ, seg); err != nil {
				return err
			}
		}
		if read != total[0] {
			c.log().WithFields(map[string]interface{}{
				"boundary": typ.String(),
				"declared": total[0],
				"read":     read,
			}).Warn("hgrid: boundary node total disagrees with segment sum")
		}
	}
	return nil
}
