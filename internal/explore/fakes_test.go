package explore

import (
	"context"
	"sync"

	"github.com/augmentalis/uiscout/api/schemas"
)

// fakeNode is one node in a scripted UI tree.
type fakeNode struct {
	id        uint64
	class     string
	resID     string
	text      string
	desc      string
	clickable bool
	enabled   bool
	children  []*fakeNode
}

// navAction describes what a click on a node does.
type navAction struct {
	toScreen  string // navigate to another screen of the target app
	toPackage string // escape to a foreign package or the launcher
}

// fakeEnv simulates the platform: it enumerates windows for the current
// screen, dispatches clicks according to a navigation script, and tracks
// handle hygiene.
type fakeEnv struct {
	mu sync.Mutex

	target     string
	screens    map[string]*fakeNode
	current    string
	foreground string
	nav        map[string]navAction
	backStack  []string

	// returnAfterBacks is how many back presses a foreign surface absorbs
	// before the target regains the foreground; negative means never.
	returnAfterBacks int
	pressesWhileAway int

	// overlay names a screen returned as a second window on every
	// enumeration.
	overlay string

	listErr error
	// listPartial makes a failing enumeration still return the windows it
	// had gathered, mirroring platform enumerators interrupted mid-list.
	listPartial bool

	nextNodeID  uint64
	outstanding int
	infoReads   int
	clicks      int
	backs       int
}

func newFakeEnv(target string) *fakeEnv {
	return &fakeEnv{
		target:           target,
		screens:          make(map[string]*fakeNode),
		foreground:       target,
		nav:              make(map[string]navAction),
		returnAfterBacks: -1,
	}
}

// addScreen registers a screen tree and assigns stable node ids.
func (e *fakeEnv) addScreen(name string, root *fakeNode) {
	e.assignIDs(root)
	e.screens[name] = root
	if e.current == "" {
		e.current = name
	}
}

func (e *fakeEnv) assignIDs(n *fakeNode) {
	if n.id != 0 {
		// Already visited; trees under test may contain deliberate cycles.
		return
	}
	e.nextNodeID++
	n.id = e.nextNodeID
	for _, c := range n.children {
		e.assignIDs(c)
	}
}

// -- WindowEnumerator --

func (e *fakeEnv) ListWindows(ctx context.Context, packageID string) ([]schemas.Window, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listErr != nil && !e.listPartial {
		return nil, e.listErr
	}

	var windows []schemas.Window
	if root, ok := e.screens[e.current]; ok {
		windows = append(windows, schemas.Window{
			Root:      e.newHandleLocked(root, 0, 0),
			Kind:      schemas.WindowMain,
			PackageID: packageID,
		})
	}
	if e.overlay != "" {
		if root, ok := e.screens[e.overlay]; ok {
			windows = append(windows, schemas.Window{
				Root:      e.newHandleLocked(root, 0, 0),
				Kind:      schemas.WindowOverlay,
				PackageID: packageID,
			})
		}
	}
	return windows, e.listErr
}

// -- ActionDispatcher --

func (e *fakeEnv) Click(ctx context.Context, node schemas.NodeHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clicks++

	h, ok := node.(*fakeHandle)
	if !ok {
		return false
	}
	act, scripted := e.nav[h.n.resID]
	if !scripted {
		return true
	}
	switch {
	case act.toScreen != "":
		e.backStack = append(e.backStack, e.current)
		e.current = act.toScreen
	case act.toPackage != "":
		e.foreground = act.toPackage
		e.pressesWhileAway = 0
	}
	return true
}

func (e *fakeEnv) PressBack(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.backs++

	if e.foreground != e.target {
		e.pressesWhileAway++
		if e.returnAfterBacks >= 0 && e.pressesWhileAway >= e.returnAfterBacks {
			e.foreground = e.target
		}
		return true
	}
	if len(e.backStack) > 0 {
		e.current = e.backStack[len(e.backStack)-1]
		e.backStack = e.backStack[:len(e.backStack)-1]
	}
	return true
}

func (e *fakeEnv) ActivePackage(ctx context.Context) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.foreground, true
}

// -- handles --

// fakeHandle wraps a fakeNode. ID is the node's stable identity, matching
// platform handles where two handles to the same node compare equal.
type fakeHandle struct {
	n     *fakeNode
	depth int
	index int
	env   *fakeEnv

	mu       sync.Mutex
	recycled bool
}

func (e *fakeEnv) newHandleLocked(n *fakeNode, depth, index int) *fakeHandle {
	e.outstanding++
	return &fakeHandle{n: n, depth: depth, index: index, env: e}
}

func (e *fakeEnv) outstandingHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outstanding
}

func (h *fakeHandle) Info(ctx context.Context) (schemas.NodeInfo, error) {
	h.env.mu.Lock()
	h.env.infoReads++
	h.env.mu.Unlock()
	return schemas.NodeInfo{
		ClassName:     h.n.class,
		ResourceID:    h.n.resID,
		Text:          h.n.text,
		Description:   h.n.desc,
		Clickable:     h.n.clickable,
		Enabled:       h.n.enabled,
		Depth:         h.depth,
		IndexInParent: h.index,
	}, nil
}

func (h *fakeHandle) ChildCount(ctx context.Context) (int, error) {
	return len(h.n.children), nil
}

func (h *fakeHandle) Child(ctx context.Context, i int) (schemas.NodeHandle, error) {
	h.env.mu.Lock()
	defer h.env.mu.Unlock()
	return h.env.newHandleLocked(h.n.children[i], h.depth+1, i), nil
}

func (h *fakeHandle) ID() uint64 { return h.n.id }

func (h *fakeHandle) Recycle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recycled {
		return
	}
	h.recycled = true

	h.env.mu.Lock()
	h.env.outstanding--
	h.env.mu.Unlock()
}

// fakeLauncher is a set-backed LauncherRegistry.
type fakeLauncher struct {
	set map[string]bool
}

func (f *fakeLauncher) IsLauncher(ctx context.Context, packageID string) bool {
	return f.set[packageID]
}
