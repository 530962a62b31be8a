// Package reproject transforms mesh node coordinates between coordinate
// reference systems. Element and boundary structure pass through
// untouched; only node (x, y) pairs change and depths are copied
// verbatim. The per-node transform is embarrassingly parallel, so the
// work is fanned out across workers and any single failure cancels the
// whole call, so no partially transformed mesh is ever observable.
package reproject

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/gohgrid/mesh"
)

// Reprojector transforms finalized meshes. Workers bounds the transform
// fan-out; zero means one worker per CPU.
type Reprojector struct {
	Resolver *Resolver
	Workers  int
	Log      logrus.FieldLogger
}

// New returns a reprojector around the given resolver.
func New(res *Resolver) *Reprojector {
	return &Reprojector{Resolver: res}
}

func (rp *Reprojector) log() logrus.FieldLogger {
	if rp.Log != nil {
		return rp.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Reproject returns a new finalized mesh in targetCRS. The source CRS
// comes from the mesh itself; a mesh without one cannot be reprojected.
// Failure of any node aborts the whole call with a *TransformError.
func (rp *Reprojector) Reproject(ctx context.Context, m *mesh.Mesh, targetCRS string) (*mesh.Mesh, error) {
	if !m.Finalized() {
		return nil, mesh.ErrNotFinalized
	}
	if m.CRS == "" {
		return nil, &TransformError{Kind: KindProjectionDefinition,
			Err: fmt.Errorf("mesh declares no source CRS")}
	}
	res := rp.Resolver
	if res == nil {
		res = NewResolver(nil, rp.Log)
	}

	src, err := res.Resolve(ctx, m.CRS)
	if err != nil {
		return nil, err
	}
	dst, err := res.Resolve(ctx, targetCRS)
	if err != nil {
		return nil, err
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, &TransformError{Kind: KindProjectionDefinition,
			CRS: targetCRS, Err: err}
	}

	nodes := m.Nodes()
	xs := make([]float64, len(nodes))
	ys := make([]float64, len(nodes))

	workers := rp.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(nodes) && len(nodes) > 0 {
		workers = len(nodes)
	}

	// Contiguous index ranges per worker; each node writes its own output
	// slot, so the only synchronization is the final join. Workers poll
	// the group context between nodes for cooperative cancellation.
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(nodes) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > len(nodes) {
			hi = len(nodes)
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				n := nodes[i]
				out, err := geom.Point{X: n.X, Y: n.Y}.Transform(trans)
				if err != nil {
					return &TransformError{Kind: KindNumeric, Node: n.ID, Err: err}
				}
				p := out.(geom.Point)
				if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
					return &TransformError{Kind: KindNumeric, Node: n.ID,
						Err: fmt.Errorf("transform produced non-finite coordinates (%g, %g)", p.X, p.Y)}
				}
				xs[i], ys[i] = p.X, p.Y
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rp.log().WithFields(logrus.Fields{
		"nodes":   len(nodes),
		"source":  m.CRS,
		"target":  targetCRS,
		"workers": workers,
	}).Debug("reproject: transform complete")
	return m.CloneWithCoords(xs, ys, targetCRS)
}
