package schemas

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Bounds is the on-screen rectangle of a node in display pixels.
type Bounds struct {
	Left   int `json:"l"`
	Top    int `json:"t"`
	Right  int `json:"r"`
	Bottom int `json:"b"`
}

// Serialize renders the bounds as a compact JSON string for storage.
func (b Bounds) Serialize() string {
	out, err := json.MarshalToString(b)
	if err != nil {
		// Bounds is a plain struct of ints; marshalling cannot fail in practice.
		return "{}"
	}
	return out
}

// ParseBounds is the inverse of Serialize.
func ParseBounds(s string) (Bounds, error) {
	var b Bounds
	if err := json.UnmarshalFromString(s, &b); err != nil {
		return Bounds{}, fmt.Errorf("malformed bounds %q: %w", s, err)
	}
	return b, nil
}

// NodeInfo is an immutable snapshot of the properties of a single
// accessibility node, read once from its platform handle.
type NodeInfo struct {
	ClassName     string
	ResourceID    string
	Text          string
	Description   string
	Clickable     bool
	LongClickable bool
	Checkable     bool
	Focusable     bool
	Enabled       bool
	Bounds        Bounds
	Depth         int
	IndexInParent int
}

// NodeHandle is a single-use reference to an externally owned accessibility
// node. The platform layer imposes a hard ceiling on concurrently outstanding
// handles, so every handle must be recycled exactly once on every exit path
// of every function that receives one. After Recycle, all other methods fail.
type NodeHandle interface {
	// Info reads the node's properties. May block on the platform layer.
	Info(ctx context.Context) (NodeInfo, error)
	// ChildCount returns the number of direct children.
	ChildCount(ctx context.Context) (int, error)
	// Child returns a new handle for the i-th child. Ownership of the
	// returned handle transfers to the caller.
	Child(ctx context.Context, i int) (NodeHandle, error)
	// ID is a stable platform identity for the underlying node, valid for the
	// lifetime of a single traversal pass. Used for cycle detection.
	ID() uint64
	// Recycle releases the handle back to the platform. Idempotent calls are
	// not required of implementations; callers release exactly once.
	Recycle()
}

// Window is one visible top-level surface of the target application.
// Ownership of Root transfers to the receiver of the Window.
type Window struct {
	Root      NodeHandle
	Kind      WindowKind
	IsOverlay bool
	PackageID string
}
