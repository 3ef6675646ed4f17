package explore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/api/schemas"
	"github.com/augmentalis/uiscout/internal/classify"
	"github.com/augmentalis/uiscout/internal/fingerprint"
	"github.com/augmentalis/uiscout/internal/platform"
)

// windowPass is the per-window traversal scratchpad. Click handling can nest
// another window pass (navigating into a new screen), so this state cannot
// live on the run.
type windowPass struct {
	screen  *schemas.ScreenRecord
	visited map[uint64]struct{}
	batch   []*schemas.ElementRecord
}

// walkWindow fingerprints the window's subtree, applies screen-level dedup
// and runs the depth-first walk. It owns w.Root and guarantees its recycle.
func (r *run) walkWindow(ctx context.Context, w schemas.Window) error {
	root := w.Root

	info, err := r.readInfo(ctx, root)
	if err != nil {
		root.Recycle()
		r.log.Warn("Unreadable window root, skipping window", zap.Error(err))
		return nil
	}
	childCount, err := r.readChildCount(ctx, root)
	if err != nil {
		root.Recycle()
		r.log.Warn("Unreadable window root, skipping window", zap.Error(err))
		return nil
	}

	// Screen identity folds the whole hierarchy, not just the root: Android
	// activities commonly share an identical android:id/content root, and
	// those screens must not collapse to one hash.
	rootHash, err := r.subtreeSignature(ctx, root, info, make(map[uint64]struct{}))
	if err != nil {
		root.Recycle()
		return err
	}
	screenHash := fingerprint.Screen(w.Kind, rootHash, childCount)

	if _, seen := r.screensSeen[screenHash]; seen {
		// Already walked this surface during this session (reached again via
		// a click edge).
		root.Recycle()
		return nil
	}

	if r.shortCircuit && r.e.coord.IsScreenKnown(ctx, r.target, screenHash) {
		// Passive mode skips known screens wholesale; the fingerprint pass is
		// the entire cost of re-encountering a captured surface.
		root.Recycle()
		r.log.Debug("Known screen, short-circuiting",
			zap.String("screen", string(screenHash)))
		return nil
	}

	r.screensSeen[screenHash] = struct{}{}
	pass := &windowPass{
		screen: &schemas.ScreenRecord{
			Hash:       screenHash,
			PackageID:  r.target,
			Kind:       w.Kind,
			CapturedAt: time.Now(),
		},
		visited: make(map[uint64]struct{}),
	}

	walkErr := r.walk(ctx, pass, root, info, nil, "", nil)

	if !r.captureSuppressed() {
		r.e.coord.RecordCapture(ctx, pass.screen, pass.batch)
	}
	return walkErr
}

// subtreeSignature folds the flat fingerprints of a node and all of its
// descendants into one hash, depth-first in child order. Child handles
// created here are recycled before returning; h itself stays with the
// caller. Depth and cycle guards mirror the walk so the signature pass can
// never read deeper than the walk would.
func (r *run) subtreeSignature(ctx context.Context, h schemas.NodeHandle, info schemas.NodeInfo, visited map[uint64]struct{}) (schemas.Hash, error) {
	self := fingerprint.Element(info.ClassName, info.ResourceID, info.Text, info.Description, "")

	if _, seen := visited[h.ID()]; seen {
		return self, nil
	}
	visited[h.ID()] = struct{}{}

	if info.Depth >= r.e.cfg.MaxDepth {
		return fingerprint.Subtree(self, nil), nil
	}
	childCount, err := r.readChildCount(ctx, h)
	if err != nil {
		childCount = 0
	}

	children := make([]schemas.Hash, 0, childCount)
	for i := 0; i < childCount; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ch, err := h.Child(ctx, i)
		if err != nil {
			continue
		}
		ci, err := r.readInfo(ctx, ch)
		if err != nil {
			ch.Recycle()
			continue
		}
		sub, err := r.subtreeSignature(ctx, ch, ci, visited)
		ch.Recycle()
		if err != nil {
			return "", err
		}
		children = append(children, sub)
	}
	return fingerprint.Subtree(self, children), nil
}

// walk visits one node and its subtree. It owns h and recycles it on every
// exit path. info has already been read by the caller; ancestors is the
// classification chain nearest-first; siblings maps class names to their
// occurrence count among the node's siblings.
func (r *run) walk(
	ctx context.Context,
	pass *windowPass,
	h schemas.NodeHandle,
	info schemas.NodeInfo,
	ancestors []schemas.Classification,
	parentCtx schemas.Hash,
	siblings map[string]int,
) error {
	defer h.Recycle()

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, seen := pass.visited[h.ID()]; seen {
		// A node reachable twice within one pass means the platform handed us
		// a cyclic structure; skipping is the only safe move.
		r.log.Warn("Cycle detected in node tree, skipping revisit",
			zap.Uint64("handle", h.ID()), zap.Int("depth", info.Depth))
		return nil
	}
	pass.visited[h.ID()] = struct{}{}

	label := r.e.classifier.Classify(classify.Input{
		Node:               info,
		AncestorChain:      ancestors,
		SiblingClassCounts: siblings,
	})

	childCount, err := r.readChildCount(ctx, h)
	if err != nil {
		r.log.Debug("Child count unavailable, treating node as leaf",
			zap.Uint64("handle", h.ID()), zap.Error(err))
		childCount = 0
	}

	var hash schemas.Hash
	if label == schemas.ClassHybrid {
		// Repeated rows collapse to one structure-only template; per-row text
		// never becomes durable identity.
		hash = fingerprint.Structure(info.ClassName, info.Depth, childCount)
	} else {
		hash = fingerprint.Element(info.ClassName, info.ResourceID, info.Text, info.Description, parentCtx)
	}

	r.captureElement(pass, hash, info, label)

	if r.clicking && label != schemas.ClassEphemeral && r.e.classifier.SafeToClick(info) {
		edge := clickKey{screen: pass.screen.Hash, element: hash}
		_, done := r.clicked[edge]
		_, dead := r.deadEdges[edge]
		_, home := r.homeEdges[edge]
		if !done && !dead && !home {
			r.clicked[edge] = struct{}{}
			r.clickNode(ctx, h, edge)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}

	if childCount == 0 {
		return nil
	}
	if info.Depth >= r.e.cfg.MaxDepth {
		// One guard event per truncated subtree; descendants are never read,
		// so nothing deeper can log again.
		r.log.Warn("Depth cap reached, truncating subtree",
			zap.Int("depth", info.Depth), zap.Int("maxDepth", r.e.cfg.MaxDepth),
			zap.String("class", info.ClassName))
		return nil
	}

	nextParentCtx := parentCtx
	if r.e.classifier.IsContainer(info.ClassName) {
		nextParentCtx = hash
	}

	// Children are read up front: sibling class counts must be complete
	// before any child is classified.
	type childEntry struct {
		h    schemas.NodeHandle
		info schemas.NodeInfo
	}
	entries := make([]childEntry, 0, childCount)
	counts := make(map[string]int, childCount)
	for i := 0; i < childCount; i++ {
		ch, err := h.Child(ctx, i)
		if err != nil {
			r.log.Debug("Child handle unavailable, skipping",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		ci, err := r.readInfo(ctx, ch)
		if err != nil {
			ch.Recycle()
			r.log.Debug("Child info unavailable, skipping",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		entries = append(entries, childEntry{h: ch, info: ci})
		counts[ci.ClassName]++
	}

	childChain := make([]schemas.Classification, 0, len(ancestors)+1)
	childChain = append(childChain, label)
	childChain = append(childChain, ancestors...)

	for i, en := range entries {
		if err := r.walk(ctx, pass, en.h, en.info, childChain, nextParentCtx, counts); err != nil {
			for _, rest := range entries[i+1:] {
				rest.h.Recycle()
			}
			return err
		}
	}
	return nil
}

// captureElement records one observed element into the pass batch, unless
// capture is suppressed (recovery in progress).
func (r *run) captureElement(pass *windowPass, hash schemas.Hash, info schemas.NodeInfo, label schemas.Classification) {
	if r.captureSuppressed() {
		return
	}
	r.elementsSeen[hash] = struct{}{}

	now := time.Now()
	rec := &schemas.ElementRecord{
		Hash:           hash,
		PackageID:      r.target,
		ScreenHash:     pass.screen.Hash,
		ClassName:      info.ClassName,
		ResourceID:     info.ResourceID,
		Text:           info.Text,
		Description:    info.Description,
		Clickable:      info.Clickable,
		LongClickable:  info.LongClickable,
		Checkable:      info.Checkable,
		Focusable:      info.Focusable,
		Enabled:        info.Enabled,
		Bounds:         info.Bounds,
		Depth:          info.Depth,
		IndexInParent:  info.IndexInParent,
		Classification: label,
		FirstSeen:      now,
		LastSeen:       now,
		SeenCount:      1,
	}
	if label == schemas.ClassHybrid {
		// Template record: structure only.
		rec.Text = ""
		rec.Description = ""
	}
	pass.batch = append(pass.batch, rec)
}

// clickNode dispatches a click on an edge and classifies the outcome by the
// resulting foreground package: still the target (possibly a new screen), a
// launcher (terminal edge), or a foreign package (recovery).
func (r *run) clickNode(ctx context.Context, h schemas.NodeHandle, edge clickKey) {
	if !r.e.actions.Click(ctx, h) {
		r.log.Debug("Click dispatch failed, treating as no effect",
			zap.String("element", string(edge.element)))
		return
	}
	r.clickCount++

	active, ok := r.e.actions.ActivePackage(ctx)
	if !ok {
		// Foreground unknown; assuming no navigation beats blind recovery.
		r.log.Debug("Foreground package unavailable after click")
		return
	}

	switch {
	case active == r.target:
		r.scrapeResultingSurface(ctx)

	case r.e.launcher.IsLauncher(ctx, active):
		// Landing on the home screen is a terminal edge, never a recovery
		// target: back-pressing out of a launcher is undefined behavior.
		r.homeEdges[edge] = struct{}{}
		r.log.Info("Click returned to launcher, recording terminal edge",
			zap.String("element", string(edge.element)))
		r.e.actions.PressBack(ctx)

	default:
		if !r.recoverTo(ctx, edge, active) {
			r.log.Warn("Edge marked unreachable after failed recovery",
				zap.String("element", string(edge.element)),
				zap.String("landedIn", active))
		}
	}
}

// scrapeResultingSurface walks any screens newly on display after a click
// that stayed inside the target app, then presses back once to return toward
// the click origin. Screens already walked this session are skipped by
// walkWindow, so navigation loops terminate once the click set is exhausted.
func (r *run) scrapeResultingSurface(ctx context.Context) {
	if r.captureSuppressed() {
		return
	}
	windows, err := r.e.windows.ListWindows(ctx, r.target)
	if err != nil {
		// A failed enumeration may still hand over window roots.
		platform.RecycleWindows(windows)
		r.log.Debug("Post-click enumeration failed", zap.Error(err))
		return
	}

	navigated := false
	for i, w := range windows {
		before := len(r.screensSeen)
		if err := r.walkWindow(ctx, w); err != nil {
			platform.RecycleWindows(windows[i+1:])
			r.log.Debug("Post-click walk interrupted", zap.Error(err))
			break
		}
		if len(r.screensSeen) > before {
			navigated = true
		}
	}
	if navigated {
		r.e.actions.PressBack(ctx)
	}
}

// recoverTo runs the bounded recovery protocol after a click escaped into a
// foreign package: press back, wait, re-check the foreground, up to the retry
// cap. Capture stays suppressed for the whole window. Returns whether the
// target regained the foreground; on failure the edge is marked unreachable.
func (r *run) recoverTo(ctx context.Context, edge clickKey, landedIn string) bool {
	r.setState(StateRecovering)
	defer r.setState(StateTraversing)

	r.log.Info("Click escaped target, recovering",
		zap.String("landedIn", landedIn),
		zap.Int("maxRetries", r.e.cfg.MaxBackRetries))

	for attempt := 1; attempt <= r.e.cfg.MaxBackRetries; attempt++ {
		if !r.e.actions.PressBack(ctx) {
			r.log.Debug("Back press dispatch failed", zap.Int("attempt", attempt))
		}
		select {
		case <-ctx.Done():
			r.deadEdges[edge] = struct{}{}
			return false
		case <-time.After(r.e.cfg.RecoveryDelay):
		}

		active, ok := r.e.actions.ActivePackage(ctx)
		if ok && active == r.target {
			r.log.Info("Recovered to target", zap.Int("attempts", attempt))
			return true
		}
	}

	r.deadEdges[edge] = struct{}{}
	return false
}

// readInfo reads a node snapshot with one bounded retry; transient platform
// read failures are common under load.
func (r *run) readInfo(ctx context.Context, h schemas.NodeHandle) (schemas.NodeInfo, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		actionCtx, cancel := context.WithTimeout(ctx, r.e.cfg.ActionTimeout)
		info, err := h.Info(actionCtx)
		cancel()
		if err == nil {
			return info, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return schemas.NodeInfo{}, lastErr
}

func (r *run) readChildCount(ctx context.Context, h schemas.NodeHandle) (int, error) {
	actionCtx, cancel := context.WithTimeout(ctx, r.e.cfg.ActionTimeout)
	defer cancel()
	return h.ChildCount(actionCtx)
}
