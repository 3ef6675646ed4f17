// Package platform holds the adapters between the engine and the
// OS accessibility layer: node handle lifetime helpers, action pacing and
// the launcher registry.
package platform

import (
	"github.com/augmentalis/uiscout/api/schemas"
)

// UseNode runs fn with the handle and guarantees exactly one recycle on
// every exit path, including panics propagating out of fn. The platform
// layer caps concurrently outstanding handles, so a leaked handle degrades
// the whole scraping subsystem.
func UseNode(h schemas.NodeHandle, fn func(schemas.NodeHandle) error) error {
	defer h.Recycle()
	return fn(h)
}

// RecycleWindows releases the root handles of all windows in the slice.
// Call it on every exit path of a function that owns a window list.
func RecycleWindows(windows []schemas.Window) {
	for _, w := range windows {
		if w.Root != nil {
			w.Root.Recycle()
		}
	}
}
