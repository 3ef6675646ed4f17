package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentalis/uiscout/api/schemas"
)

func TestMemoryAppLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	_, err := m.GetApp(ctx, "com.example.app")
	assert.ErrorIs(t, err, schemas.ErrNotFound)

	app := &schemas.AppRecord{
		PackageID: "com.example.app",
		Mode:      schemas.ModeDynamic,
		FirstSeen: time.Now(),
		LastSeen:  time.Now(),
	}
	require.NoError(t, m.UpsertApp(ctx, app))

	got, err := m.GetApp(ctx, "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, schemas.ModeDynamic, got.Mode)

	// Mutating the returned copy must not leak into the store.
	got.Mode = schemas.ModeLearnApp
	again, err := m.GetApp(ctx, "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, schemas.ModeDynamic, again.Mode)

	apps, err := m.ListApps(ctx)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestMemoryListAppsIsSorted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	for _, pkg := range []string{"com.zeta", "com.alpha", "com.mid"} {
		require.NoError(t, m.UpsertApp(ctx, &schemas.AppRecord{PackageID: pkg}))
	}

	apps, err := m.ListApps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 3)
	assert.Equal(t, "com.alpha", apps[0].PackageID)
	assert.Equal(t, "com.zeta", apps[2].PackageID)
}

func TestMemoryScreensAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	first := &schemas.ScreenRecord{Hash: "s1", PackageID: "com.example.app", Kind: schemas.WindowMain, CapturedAt: time.Now()}
	require.NoError(t, m.UpsertScreen(ctx, first))

	later := *first
	later.Kind = schemas.WindowOverlay
	require.NoError(t, m.UpsertScreen(ctx, &later))

	exists, err := m.ScreenExists(ctx, "com.example.app", "s1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.ScreenExists(ctx, "com.other", "s1")
	require.NoError(t, err)
	assert.False(t, exists, "screen existence is scoped per app")
}

func TestMemoryElementUpsertBumpsSeenCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	el := &schemas.ElementRecord{
		Hash:           "e1",
		PackageID:      "com.example.app",
		Classification: schemas.ClassEphemeral,
		LastSeen:       time.Now(),
	}
	require.NoError(t, m.UpsertElement(ctx, el))

	count, err := m.ElementSeenCount(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Second capture bumps the count and overwrites the classification, so
	// promotion sticks.
	el2 := *el
	el2.Classification = schemas.ClassPersistent
	require.NoError(t, m.UpsertElement(ctx, &el2))

	stored, ok := m.GetElement("e1")
	require.True(t, ok)
	assert.Equal(t, 2, stored.SeenCount)
	assert.Equal(t, schemas.ClassPersistent, stored.Classification)

	count, err = m.ElementSeenCount(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, count, "unknown hashes report zero, not an error")
}

func TestMemoryUpsertElementsBulk(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	els := []*schemas.ElementRecord{
		{Hash: "a", PackageID: "com.example.app"},
		{Hash: "b", PackageID: "com.example.app"},
		{Hash: "a", PackageID: "com.example.app"},
	}
	require.NoError(t, m.UpsertElements(ctx, els))

	count, err := m.ElementSeenCount(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryDeleteAppCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.UpsertApp(ctx, &schemas.AppRecord{PackageID: "com.example.app"}))
	require.NoError(t, m.UpsertScreen(ctx, &schemas.ScreenRecord{Hash: "s1", PackageID: "com.example.app"}))
	require.NoError(t, m.UpsertElement(ctx, &schemas.ElementRecord{Hash: "e1", PackageID: "com.example.app"}))
	require.NoError(t, m.CreateSession(ctx, &schemas.ExplorationSession{ID: "sess", PackageID: "com.example.app"}))
	require.NoError(t, m.UpsertElement(ctx, &schemas.ElementRecord{Hash: "other", PackageID: "com.other"}))

	require.NoError(t, m.DeleteApp(ctx, "com.example.app"))

	_, err := m.GetApp(ctx, "com.example.app")
	assert.ErrorIs(t, err, schemas.ErrNotFound)
	exists, _ := m.ScreenExists(ctx, "com.example.app", "s1")
	assert.False(t, exists)
	exists, _ = m.ElementExists(ctx, "e1")
	assert.False(t, exists)
	exists, _ = m.ElementExists(ctx, "other")
	assert.True(t, exists, "other apps' elements survive")
}

func TestMemorySessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	err := m.FinishSession(ctx, &schemas.ExplorationSession{ID: "ghost"})
	assert.ErrorIs(t, err, schemas.ErrNotFound)

	s := &schemas.ExplorationSession{ID: "sess", PackageID: "com.example.app", Status: schemas.SessionInProgress}
	require.NoError(t, m.CreateSession(ctx, s))

	now := time.Now()
	s.Status = schemas.SessionCompleted
	s.EndedAt = &now
	require.NoError(t, m.FinishSession(ctx, s))
}

func TestMemoryWithTransaction(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	err := m.WithTransaction(ctx, func(r schemas.Repository) error {
		return r.UpsertApp(ctx, &schemas.AppRecord{PackageID: "com.example.app"})
	})
	require.NoError(t, err)

	_, err = m.GetApp(ctx, "com.example.app")
	assert.NoError(t, err)
}
