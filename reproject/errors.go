package reproject

import "fmt"

// Kind separates transform failures so callers can pick a retry policy:
// network faults are transient, definition and numeric faults are not.
type Kind int

const (
	KindNetwork Kind = iota
	KindProjectionDefinition
	KindNumeric
)

func (k Kind) String() string {
	return [...]string{"network", "projection-definition", "numeric"}[k]
}

// TransformError aborts a reprojection atomically: when it is returned no
// partially transformed mesh is observable. Node is the 1-based node ID
// for numeric failures and zero otherwise.
type TransformError struct {
	Kind Kind
	CRS  string
	Node int
	Err  error
}

func (e *TransformError) Error() string {
	switch {
	case e.Node != 0:
		return fmt.Sprintf("reproject: %s failure at node %d: %v", e.Kind, e.Node, e.Err)
	case e.CRS != "":
		return fmt.Sprintf("reproject: %s failure for %q: %v", e.Kind, e.CRS, e.Err)
	default:
		return fmt.Sprintf("reproject: %s failure: %v", e.Kind, e.Err)
	}
}

func (e *TransformError) Unwrap() error { return e.Err }
