// Package dumpfile implements a WindowEnumerator over uiautomator-style XML
// window dumps, so exploration can run and be demonstrated without a live
// device. A dump directory holds one file per window, named
// "<package>.xml" for the main surface and "<package>.overlay*.xml" for
// overlays.
package dumpfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/api/schemas"
)

// Enumerator reads window dumps from a directory.
type Enumerator struct {
	dir string
	log *zap.Logger

	// nextID hands out handle identities across all windows of a run.
	nextID atomic.Uint64
}

var _ schemas.WindowEnumerator = (*Enumerator)(nil)

// NewEnumerator creates a dump-backed enumerator rooted at dir.
func NewEnumerator(dir string, logger *zap.Logger) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{dir: dir, log: logger.Named("DumpEnumerator")}
}

// ListWindows parses every dump belonging to the package. A package with no
// dump files yields an empty slice, matching the live enumerator contract.
func (e *Enumerator) ListWindows(ctx context.Context, packageID string) ([]schemas.Window, error) {
	matches, err := filepath.Glob(filepath.Join(e.dir, packageID+"*.xml"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan dump directory: %w", err)
	}

	var windows []schemas.Window
	for _, path := range matches {
		select {
		case <-ctx.Done():
			// Already-built windows carry live handles; hand them back so
			// the caller's recycle path runs.
			return windows, ctx.Err()
		default:
		}

		w, err := e.loadWindow(path, packageID)
		if err != nil {
			e.log.Warn("Skipping unreadable dump", zap.String("path", path), zap.Error(err))
			continue
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func (e *Enumerator) loadWindow(path, packageID string) (schemas.Window, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schemas.Window{}, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return schemas.Window{}, fmt.Errorf("malformed dump XML: %w", err)
	}

	root := doc.SelectElement("hierarchy")
	if root == nil {
		return schemas.Window{}, fmt.Errorf("dump has no hierarchy element")
	}
	first := root.SelectElement("node")
	if first == nil {
		return schemas.Window{}, fmt.Errorf("dump hierarchy is empty")
	}

	kind := schemas.WindowMain
	overlay := strings.Contains(filepath.Base(path), ".overlay")
	if overlay {
		kind = schemas.WindowOverlay
	}

	return schemas.Window{
		Root:      e.newHandle(first, 0, 0),
		Kind:      kind,
		IsOverlay: overlay,
		PackageID: packageID,
	}, nil
}

// handle adapts an etree element to the single-use NodeHandle contract.
// Reuse after Recycle is a programming error and fails loudly, mirroring
// the behavior of real platform handles.
type handle struct {
	el    *etree.Element
	id    uint64
	depth int
	index int
	enum  *Enumerator

	mu       sync.Mutex
	recycled bool
}

func (e *Enumerator) newHandle(el *etree.Element, depth, index int) *handle {
	return &handle{el: el, id: e.nextID.Add(1), depth: depth, index: index, enum: e}
}

func (h *handle) live() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recycled {
		return fmt.Errorf("node handle %d used after recycle", h.id)
	}
	return nil
}

func (h *handle) Info(ctx context.Context) (schemas.NodeInfo, error) {
	if err := h.live(); err != nil {
		return schemas.NodeInfo{}, err
	}
	bounds, err := parseBounds(h.el.SelectAttrValue("bounds", ""))
	if err != nil {
		// Dumps in the wild omit bounds on some synthetic nodes.
		bounds = schemas.Bounds{}
	}
	return schemas.NodeInfo{
		ClassName:     h.el.SelectAttrValue("class", ""),
		ResourceID:    h.el.SelectAttrValue("resource-id", ""),
		Text:          h.el.SelectAttrValue("text", ""),
		Description:   h.el.SelectAttrValue("content-desc", ""),
		Clickable:     attrBool(h.el, "clickable"),
		LongClickable: attrBool(h.el, "long-clickable"),
		Checkable:     attrBool(h.el, "checkable"),
		Focusable:     attrBool(h.el, "focusable"),
		Enabled:       attrBool(h.el, "enabled"),
		Bounds:        bounds,
		Depth:         h.depth,
		IndexInParent: h.index,
	}, nil
}

func (h *handle) ChildCount(ctx context.Context) (int, error) {
	if err := h.live(); err != nil {
		return 0, err
	}
	return len(h.el.SelectElements("node")), nil
}

func (h *handle) Child(ctx context.Context, i int) (schemas.NodeHandle, error) {
	if err := h.live(); err != nil {
		return nil, err
	}
	children := h.el.SelectElements("node")
	if i < 0 || i >= len(children) {
		return nil, fmt.Errorf("child index %d out of range (%d children)", i, len(children))
	}
	return h.enum.newHandle(children[i], h.depth+1, i), nil
}

func (h *handle) ID() uint64 { return h.id }

func (h *handle) Recycle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recycled = true
}

func attrBool(el *etree.Element, name string) bool {
	return el.SelectAttrValue(name, "false") == "true"
}

// parseBounds parses the uiautomator "[l,t][r,b]" format.
func parseBounds(s string) (schemas.Bounds, error) {
	var b schemas.Bounds
	if _, err := fmt.Sscanf(s, "[%d,%d][%d,%d]", &b.Left, &b.Top, &b.Right, &b.Bottom); err != nil {
		return schemas.Bounds{}, fmt.Errorf("malformed bounds %q: %w", s, err)
	}
	return b, nil
}

// StaticDispatcher is the action surface for dump replay: clicks succeed but
// never navigate, and the target package is always in the foreground.
type StaticDispatcher struct {
	Package string
}

var _ schemas.ActionDispatcher = (*StaticDispatcher)(nil)

func (d *StaticDispatcher) Click(ctx context.Context, node schemas.NodeHandle) bool { return true }
func (d *StaticDispatcher) PressBack(ctx context.Context) bool                     { return true }
func (d *StaticDispatcher) ActivePackage(ctx context.Context) (string, bool)       { return d.Package, true }
