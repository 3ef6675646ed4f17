package dumpfile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentalis/uiscout/api/schemas"
)

func TestListWindows(t *testing.T) {
	ctx := context.Background()
	e := NewEnumerator("testdata", nil)

	windows, err := e.ListWindows(ctx, "com.example.app")
	require.NoError(t, err)
	require.Len(t, windows, 2, "main surface plus one overlay")

	var main, overlay *schemas.Window
	for i := range windows {
		if windows[i].Kind == schemas.WindowOverlay {
			overlay = &windows[i]
		} else {
			main = &windows[i]
		}
	}
	require.NotNil(t, main)
	require.NotNil(t, overlay)
	assert.True(t, overlay.IsOverlay)
	assert.Equal(t, "com.example.app", main.PackageID)

	defer main.Root.Recycle()
	defer overlay.Root.Recycle()

	info, err := main.Root.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "android.widget.FrameLayout", info.ClassName)
	assert.Equal(t, "android:id/content", info.ResourceID)
	assert.Equal(t, 0, info.Depth)
	assert.Equal(t, schemas.Bounds{Left: 0, Top: 0, Right: 1080, Bottom: 2280}, info.Bounds)
}

func TestListWindowsUnknownPackage(t *testing.T) {
	e := NewEnumerator("testdata", nil)
	windows, err := e.ListWindows(context.Background(), "com.missing.app")
	require.NoError(t, err)
	assert.Empty(t, windows, "no dumps means no windows, not an error")
}

func TestChildTraversal(t *testing.T) {
	ctx := context.Background()
	e := NewEnumerator("testdata", nil)

	windows, err := e.ListWindows(ctx, "com.example.app")
	require.NoError(t, err)
	var root schemas.NodeHandle
	for _, w := range windows {
		if w.Kind == schemas.WindowMain {
			root = w.Root
		} else {
			w.Root.Recycle()
		}
	}
	require.NotNil(t, root)
	defer root.Recycle()

	count, err := root.ChildCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	layout, err := root.Child(ctx, 0)
	require.NoError(t, err)
	defer layout.Recycle()

	count, err = layout.ChildCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	button, err := layout.Child(ctx, 1)
	require.NoError(t, err)
	defer button.Recycle()

	info, err := button.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Settings", info.Text)
	assert.Equal(t, "Open settings", info.Description)
	assert.True(t, info.Clickable)
	assert.True(t, info.Enabled)
	assert.Equal(t, 2, info.Depth)
	assert.Equal(t, 1, info.IndexInParent)

	_, err = layout.Child(ctx, 7)
	assert.Error(t, err, "out-of-range child index")
}

func TestHandleIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	e := NewEnumerator("testdata", nil)

	windows, err := e.ListWindows(ctx, "com.example.app")
	require.NoError(t, err)

	seen := make(map[uint64]bool)
	for _, w := range windows {
		assert.False(t, seen[w.Root.ID()])
		seen[w.Root.ID()] = true
		w.Root.Recycle()
	}
}

func TestUseAfterRecycleFails(t *testing.T) {
	ctx := context.Background()
	e := NewEnumerator("testdata", nil)

	windows, err := e.ListWindows(ctx, "com.example.app")
	require.NoError(t, err)
	require.NotEmpty(t, windows)
	for _, w := range windows[1:] {
		w.Root.Recycle()
	}

	root := windows[0].Root
	root.Recycle()

	_, err = root.Info(ctx)
	assert.Error(t, err)
	_, err = root.ChildCount(ctx)
	assert.Error(t, err)
	_, err = root.Child(ctx, 0)
	assert.Error(t, err)
}

func TestParseBounds(t *testing.T) {
	b, err := parseBounds("[0,120][1080,2280]")
	require.NoError(t, err)
	assert.Equal(t, schemas.Bounds{Left: 0, Top: 120, Right: 1080, Bottom: 2280}, b)

	_, err = parseBounds("garbage")
	assert.Error(t, err)
}

func TestStaticDispatcher(t *testing.T) {
	d := &StaticDispatcher{Package: "com.example.app"}
	ctx := context.Background()

	assert.True(t, d.Click(ctx, nil))
	assert.True(t, d.PressBack(ctx))
	pkg, ok := d.ActivePackage(ctx)
	assert.True(t, ok)
	assert.Equal(t, "com.example.app", pkg)
}
