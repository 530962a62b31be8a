// Package builder exposes staged, validated mesh construction: configure
// options, point the builder at hgrid text or an assembled mesh, then
// Build. Build is all-or-nothing: the caller either receives a
// finalized, optionally reprojected and topology-checked mesh, or a
// BuildError aggregating everything that went wrong. A mesh returned by
// Build never needs re-validation.
package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/notargets/gohgrid/hgrid"
	"github.com/notargets/gohgrid/mesh"
	"github.com/notargets/gohgrid/reproject"
	"github.com/notargets/gohgrid/validate"
)

// BuildError aggregates every failure from a staged build: parse or
// invariant errors wrapped in Err, and (under Strict) the advisory
// topology issues that escalated.
type BuildError struct {
	Err    error
	Issues []validate.Issue
}

func (e *BuildError) Error() string {
	var sb strings.Builder
	sb.WriteString("builder: build failed")
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	for _, is := range e.Issues {
		fmt.Fprintf(&sb, "\n\t%s: %s", is.Kind, is.Detail)
	}
	return sb.String()
}

func (e *BuildError) Unwrap() error { return e.Err }

// Builder accumulates a source and options, then builds once.
type Builder struct {
	opts Options
	log  logrus.FieldLogger

	text    []byte
	hasText bool
	m       *mesh.Mesh
	srcErr  error

	fetcher reproject.Fetcher
}

// New returns a builder with the given options.
func New(opts Options) *Builder {
	return &Builder{opts: opts}
}

// WithLogger injects the diagnostic sink shared with the codec,
// reprojector and validator.
func (b *Builder) WithLogger(l logrus.FieldLogger) *Builder {
	b.log = l
	return b
}

// WithFetcher injects the CRS resource fetcher used when Reprojection is
// requested.
func (b *Builder) WithFetcher(f reproject.Fetcher) *Builder {
	b.fetcher = f
	return b
}

// FromText supplies hgrid text to parse.
func (b *Builder) FromText(text string) *Builder {
	b.text = []byte(text)
	b.hasText = true
	return b
}

// FromReader supplies hgrid text from a reader, consumed immediately.
func (b *Builder) FromReader(r io.Reader) *Builder {
	data, err := io.ReadAll(r)
	if err != nil {
		b.srcErr = err
		return b
	}
	return b.FromText(string(data))
}

// FromFile supplies hgrid text from a file.
func (b *Builder) FromFile(path string) *Builder {
	data, err := os.ReadFile(path)
	if err != nil {
		b.srcErr = err
		return b
	}
	return b.FromText(string(data))
}

// FromMesh supplies a programmatically assembled mesh, finalized or not.
func (b *Builder) FromMesh(m *mesh.Mesh) *Builder {
	b.m = m
	return b
}

// Build runs the staged pipeline: parse (if text was given), finalize,
// optional reprojection to TargetCRS, and, when Strict, the topology
// validator with advisory issues escalated to failures.
func (b *Builder) Build(ctx context.Context) (*mesh.Mesh, error) {
	opts := b.opts.withDefaults()
	if b.srcErr != nil {
		return nil, &BuildError{Err: b.srcErr}
	}

	var m *mesh.Mesh
	switch {
	case b.hasText:
		codec := &hgrid.Codec{Precision: opts.Precision, Log: b.log}
		parsed, err := codec.Read(strings.NewReader(string(b.text)))
		if err != nil {
			return nil, &BuildError{Err: err}
		}
		m = parsed
	case b.m != nil:
		m = b.m
		if err := m.Finalize(); err != nil {
			return nil, &BuildError{Err: err}
		}
	default:
		return nil, &BuildError{Err: fmt.Errorf("no source: call FromText, FromReader, FromFile or FromMesh")}
	}

	if opts.SourceCRS != "" {
		m.CRS = opts.SourceCRS
	}

	if opts.TargetCRS != "" && opts.TargetCRS != m.CRS {
		rp := reproject.New(reproject.NewResolver(b.fetcher, b.log))
		rp.Log = b.log
		out, err := rp.Reproject(ctx, m, opts.TargetCRS)
		if err != nil {
			return nil, &BuildError{Err: err}
		}
		m = out
	}

	if opts.Strict {
		v := &validate.Validator{
			Opts: validate.Options{
				DuplicateTolerance: opts.DuplicateTolerance,
				SuspectThreshold:   opts.SuspectThreshold,
			},
			Log: b.log,
		}
		issues, err := v.Validate(m)
		if err != nil {
			return nil, &BuildError{Err: err}
		}
		if len(issues) > 0 {
			var agg error
			for _, is := range issues {
				agg = multierr.Append(agg, fmt.Errorf("%s: %s", is.Kind, is.Detail))
			}
			return nil, &BuildError{Err: agg, Issues: issues}
		}
	}
	return m, nil
}
