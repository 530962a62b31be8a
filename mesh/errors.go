package mesh

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFinalized indicates a mutation attempt on a finalized mesh.
	ErrFinalized = errors.New("mesh: mesh is finalized and immutable")
	// ErrNotFinalized indicates an operation that requires Finalize first.
	ErrNotFinalized = errors.New("mesh: mesh is not finalized")
	// ErrUnknownID indicates a node or element ID outside the mesh.
	ErrUnknownID = errors.New("mesh: unknown identifier")
)

// ViolationKind classifies a structural invariant violation.
type ViolationKind int

const (
	DuplicateNodeID ViolationKind = iota
	NonContiguousNodeID
	DuplicateElementID
	NonContiguousElementID
	DanglingNodeRef
	RepeatedElementNode
	BadElementSize
	NonPositiveArea
	DuplicateElement
	BrokenBoundaryEdge
	EmptyBoundarySegment
)

func (k ViolationKind) String() string {
	return [...]string{
		"DuplicateNodeID", "NonContiguousNodeID",
		"DuplicateElementID", "NonContiguousElementID",
		"DanglingNodeRef", "RepeatedElementNode", "BadElementSize",
		"NonPositiveArea", "DuplicateElement",
		"BrokenBoundaryEdge", "EmptyBoundarySegment",
	}[k]
}

// Violation is one invariant failure found by Finalize. ID names the
// offending node, element, or segment index depending on Kind.
type Violation struct {
	Kind ViolationKind
	ID   int
	Msg  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s(%d): %s", v.Kind, v.ID, v.Msg)
}

// InvariantError aggregates every violation found in one Finalize pass,
// not just the first.
type InvariantError struct {
	Violations []Violation
}

func (e *InvariantError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mesh: %d invariant violation(s)", len(e.Violations))
	for _, v := range e.Violations {
		sb.WriteString("\n\t")
		sb.WriteString(v.String())
	}
	return sb.String()
}
