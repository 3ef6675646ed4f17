package explore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/augmentalis/uiscout/api/schemas"
	"github.com/augmentalis/uiscout/internal/classify"
	"github.com/augmentalis/uiscout/internal/config"
	"github.com/augmentalis/uiscout/internal/scrape"
	"github.com/augmentalis/uiscout/internal/store"
)

const (
	targetPkg   = "com.example.app"
	launcherPkg = "com.android.launcher3"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEngine(t *testing.T, env *fakeEnv, logger *zap.Logger) (*Engine, *store.Memory, *scrape.Coordinator) {
	t.Helper()
	repo := store.NewMemory(nil)
	cfg := config.NewDefaultConfig()
	cfg.Explore.RecoveryDelay = time.Millisecond

	coord := scrape.New(repo, cfg.Scraper, nil)
	cls := classify.New(cfg.Scraper.RowRepeatThreshold, cfg.Explore.DenyClickMarkers, nil)
	launcher := &fakeLauncher{set: map[string]bool{launcherPkg: true}}

	eng := NewEngine(cfg.Explore, coord, env, launcher, env, cls, logger)
	return eng, repo, coord
}

func button(resID, text string) *fakeNode {
	return &fakeNode{class: "android.widget.Button", resID: resID, text: text, clickable: true, enabled: true}
}

func label(text string) *fakeNode {
	return &fakeNode{class: "android.widget.TextView", text: text, enabled: true}
}

// buildTwoScreenApp scripts a home screen with a button that navigates to a
// details screen. 9 distinct elements, 4 of them clickable.
func buildTwoScreenApp(env *fakeEnv) {
	env.addScreen("home", &fakeNode{
		class: "android.widget.FrameLayout", resID: "android:id/content", enabled: true,
		children: []*fakeNode{
			label("Home"),
			button("btn_details", "Open Details"),
			button("btn_refresh", "Refresh"),
			label("All caught up"),
		},
	})
	env.addScreen("details", &fakeNode{
		class: "android.widget.FrameLayout", resID: "com.example.app:id/details_root", enabled: true,
		children: []*fakeNode{
			label("Details"),
			button("btn_a", "Action A"),
			button("btn_b", "Action B"),
		},
	})
	env.current = "home"
	env.nav["btn_details"] = navAction{toScreen: "details"}
}

func TestExploreEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv(targetPkg)
	buildTwoScreenApp(env)

	eng, repo, _ := newTestEngine(t, env, nil)

	session, err := eng.Explore(ctx, targetPkg)
	require.NoError(t, err)

	assert.Equal(t, schemas.SessionCompleted, session.Status)
	assert.Equal(t, 2, session.ScreensDiscovered)
	assert.Equal(t, 9, session.ElementsDiscovered)
	assert.Equal(t, 4, session.ElementsClicked)
	assert.InDelta(t, 1.0, session.Completion, 1e-9)
	assert.NotNil(t, session.EndedAt)

	app, err := repo.GetApp(ctx, targetPkg)
	require.NoError(t, err)
	assert.True(t, app.FullyLearned)
	assert.Equal(t, schemas.ModeDynamic, app.Mode, "post-completion downgrade to dynamic")
	assert.Equal(t, 9, app.TotalElements)

	assert.Equal(t, 0, env.outstandingHandles(), "every node handle must be recycled")
}

func TestScreensWithIdenticalRootsStayDistinct(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv(targetPkg)

	// Both activities share the stock android:id/content root with one child;
	// only the content below differs.
	env.addScreen("list", &fakeNode{
		class: "android.widget.FrameLayout", resID: "android:id/content", enabled: true,
		children: []*fakeNode{{
			class: "android.widget.LinearLayout", enabled: true,
			children: []*fakeNode{
				label("Home"),
				button("btn_go", "Open"),
			},
		}},
	})
	env.addScreen("detail", &fakeNode{
		class: "android.widget.FrameLayout", resID: "android:id/content", enabled: true,
		children: []*fakeNode{{
			class: "android.widget.LinearLayout", enabled: true,
			children: []*fakeNode{
				label("Details"),
				button("btn_x", "Action X"),
				button("btn_y", "Action Y"),
			},
		}},
	})
	env.current = "list"
	env.nav["btn_go"] = navAction{toScreen: "detail"}

	eng, _, _ := newTestEngine(t, env, nil)

	session, err := eng.Explore(ctx, targetPkg)
	require.NoError(t, err)

	assert.Equal(t, 2, session.ScreensDiscovered,
		"matching roots with different content must not collapse to one screen")
	assert.Equal(t, 7, session.ElementsDiscovered,
		"the second screen's unique elements are captured")
	assert.Equal(t, 0, env.outstandingHandles())
}

func TestExploreIsIdempotentAcrossSessions(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv(targetPkg)
	buildTwoScreenApp(env)
	eng, repo, _ := newTestEngine(t, env, nil)

	_, err := eng.Explore(ctx, targetPkg)
	require.NoError(t, err)

	// Reset the scripted UI and explore again: counts bump, records do not
	// duplicate.
	env.current = "home"
	_, err = eng.Explore(ctx, targetPkg)
	require.NoError(t, err)

	apps, err := repo.ListApps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, 9, apps[0].TotalElements)
}

func TestExploreRefusesLauncher(t *testing.T) {
	env := newFakeEnv(launcherPkg)
	eng, _, _ := newTestEngine(t, env, nil)

	_, err := eng.Explore(context.Background(), launcherPkg)
	assert.Error(t, err)
}

func TestExploreEnumerationFailureFailsSession(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv(targetPkg)
	buildTwoScreenApp(env)
	env.listErr = errors.New("accessibility service unavailable")

	eng, repo, _ := newTestEngine(t, env, nil)

	session, err := eng.Explore(ctx, targetPkg)
	require.Error(t, err)
	require.NotNil(t, session, "a failed run still returns its session record")
	assert.Equal(t, schemas.SessionFailed, session.Status)

	// The session slot must be released so a retry can start.
	env.listErr = nil
	_, err = eng.Explore(ctx, targetPkg)
	assert.NoError(t, err)

	app, err := repo.GetApp(ctx, targetPkg)
	require.NoError(t, err)
	assert.Equal(t, schemas.ModeDynamic, app.Mode)
}

func TestRecoverySucceedsWithinBound(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv(targetPkg)
	buildTwoScreenApp(env)
	env.nav["btn_refresh"] = navAction{toPackage: "com.foreign.browser"}
	env.returnAfterBacks = 3

	eng, _, _ := newTestEngine(t, env, nil)

	session, err := eng.Explore(ctx, targetPkg)
	require.NoError(t, err)
	assert.Equal(t, schemas.SessionCompleted, session.Status)
	// One back press returns from the btn_details navigation; the three
	// recovery presses follow. Recovery stops as soon as the target is back.
	assert.Equal(t, 4, env.backs)
	assert.Equal(t, 0, env.outstandingHandles())
}

func TestRecoveryExhaustionMarksEdgeUnreachable(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv(targetPkg)

	// The trap button is the only clickable element, so exactly one recovery
	// attempt runs.
	env.addScreen("trap", &fakeNode{
		class: "android.widget.FrameLayout", resID: "android:id/content", enabled: true,
		children: []*fakeNode{
			label("Trapped"),
			button("btn_evil", "Open external link"),
		},
	})
	env.nav["btn_evil"] = navAction{toPackage: "com.foreign.browser"} // never returns

	eng, _, _ := newTestEngine(t, env, nil)
	r := eng.newRun(nil, targetPkg, true)
	r.setState(StateTraversing)

	require.NoError(t, r.exploreWindows(ctx))

	assert.Equal(t, eng.cfg.MaxBackRetries, env.backs,
		"back presses are bounded by the retry cap")
	assert.Len(t, r.deadEdges, 1)
	assert.Equal(t, StateTraversing, r.State(), "traversal resumes after giving up")
	assert.NotEmpty(t, r.elementsSeen, "capture still happened for the home screen")
	assert.Equal(t, 0, env.outstandingHandles())
}

func TestCaptureSuppressedWhileRecovering(t *testing.T) {
	env := newFakeEnv(targetPkg)
	buildTwoScreenApp(env)
	eng, _, _ := newTestEngine(t, env, nil)

	r := eng.newRun(nil, targetPkg, true)
	pass := &windowPass{
		screen:  &schemas.ScreenRecord{Hash: "s1", PackageID: targetPkg},
		visited: make(map[uint64]struct{}),
	}

	r.setState(StateRecovering)
	assert.True(t, r.captureSuppressed())
	r.captureElement(pass, "e1", schemas.NodeInfo{ClassName: "android.widget.Button"}, schemas.ClassPersistent)
	assert.Empty(t, pass.batch, "nothing is scraped mid-recovery")

	r.setState(StateTraversing)
	assert.False(t, r.captureSuppressed())
	r.captureElement(pass, "e1", schemas.NodeInfo{ClassName: "android.widget.Button"}, schemas.ClassPersistent)
	assert.Len(t, pass.batch, 1)
}

func TestLauncherLandingIsTerminalEdge(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv(targetPkg)

	env.addScreen("hub", &fakeNode{
		class: "android.widget.FrameLayout", resID: "android:id/content", enabled: true,
		children: []*fakeNode{
			label("Hub"),
			button("btn_home", "Go home"),
		},
	})
	env.nav["btn_home"] = navAction{toPackage: launcherPkg}
	env.returnAfterBacks = 1

	eng, _, _ := newTestEngine(t, env, nil)
	r := eng.newRun(nil, targetPkg, true)
	r.setState(StateTraversing)

	require.NoError(t, r.exploreWindows(ctx))

	assert.Len(t, r.homeEdges, 1, "launcher landing is recorded, not recovered from")
	assert.Empty(t, r.deadEdges)
	assert.Equal(t, 1, env.backs, "a single best-effort back press, no retry loop")
}

func TestPostClickPartialEnumerationRecyclesWindows(t *testing.T) {
	env := newFakeEnv(targetPkg)
	buildTwoScreenApp(env)
	eng, _, _ := newTestEngine(t, env, nil)
	r := eng.newRun(nil, targetPkg, true)
	r.setState(StateTraversing)

	env.listErr = errors.New("enumeration interrupted")
	env.listPartial = true
	r.scrapeResultingSurface(context.Background())

	assert.Equal(t, 0, env.outstandingHandles(),
		"roots handed over by a failed enumeration must still be recycled")
}

func TestPostClickWalkErrorRecyclesRemainingWindows(t *testing.T) {
	env := newFakeEnv(targetPkg)
	buildTwoScreenApp(env)
	env.overlay = "details"
	eng, _, _ := newTestEngine(t, env, nil)
	r := eng.newRun(nil, targetPkg, true)
	r.setState(StateTraversing)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.scrapeResultingSurface(ctx)

	assert.Equal(t, 0, env.outstandingHandles(),
		"windows after an interrupted walk must still be recycled")
}

func TestDepthGuard(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv(targetPkg)

	// A linear chain deeper than the cap, each level distinct.
	leafmost := &fakeNode{class: "android.widget.TextView", text: "bottom", enabled: true}
	node := leafmost
	for i := 0; i < 12; i++ {
		node = &fakeNode{
			class:    "android.widget.FrameLayout",
			resID:    fmt.Sprintf("com.example.app:id/level_%d", i),
			enabled:  true,
			children: []*fakeNode{node},
		}
	}
	env.addScreen("deep", node)

	core, logs := observer.New(zap.WarnLevel)
	eng, _, _ := newTestEngine(t, env, zap.New(core))
	eng.cfg.MaxDepth = 5

	r := eng.newRun(nil, targetPkg, true)
	r.setState(StateTraversing)
	require.NoError(t, r.exploreWindows(ctx))

	// Depths 0 through 5 inclusive are captured; nothing deeper is read.
	assert.Len(t, r.elementsSeen, 6)

	guardEvents := logs.FilterMessage("Depth cap reached, truncating subtree").Len()
	assert.Equal(t, 1, guardEvents, "exactly one guard event per truncated subtree")
	assert.Equal(t, 0, env.outstandingHandles())
}

func TestCycleGuard(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv(targetPkg)

	a := &fakeNode{class: "android.widget.FrameLayout", resID: "a", enabled: true}
	b := &fakeNode{class: "android.widget.LinearLayout", resID: "b", enabled: true}
	a.children = []*fakeNode{b}
	b.children = []*fakeNode{a} // cycle back to the root

	env.addScreen("cyclic", a)

	core, logs := observer.New(zap.WarnLevel)
	eng, _, _ := newTestEngine(t, env, zap.New(core))

	r := eng.newRun(nil, targetPkg, true)
	r.setState(StateTraversing)
	require.NoError(t, r.exploreWindows(ctx))

	assert.Len(t, r.elementsSeen, 2, "each node visited once despite the cycle")
	assert.Equal(t, 1, logs.FilterMessage("Cycle detected in node tree, skipping revisit").Len())
	assert.Equal(t, 0, env.outstandingHandles())
}

func TestExploreHonorsCancellation(t *testing.T) {
	env := newFakeEnv(targetPkg)
	buildTwoScreenApp(env)
	eng, repo, _ := newTestEngine(t, env, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := eng.Explore(ctx, targetPkg)
	require.Error(t, err)
	assert.Equal(t, schemas.SessionFailed, session.Status)
	assert.NotNil(t, session.EndedAt, "finalization runs even when the caller cancelled")

	// The session record made it to storage despite the cancelled context.
	apps, err := repo.ListApps(context.Background())
	require.NoError(t, err)
	assert.Len(t, apps, 1)
	assert.Equal(t, 0, env.outstandingHandles())
}
