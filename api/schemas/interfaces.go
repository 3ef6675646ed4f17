package schemas

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repository lookups for missing records.
var ErrNotFound = errors.New("record not found")

// -- Platform collaborator interfaces --

// WindowEnumerator returns the currently visible top-level surfaces for a
// target application. Windows owned by other packages are filtered out.
// An app with no visible surface yields an empty slice, not an error.
type WindowEnumerator interface {
	ListWindows(ctx context.Context, packageID string) ([]Window, error)
}

// LauncherRegistry identifies home-screen/launcher packages, which are
// excluded from scraping and treated as terminal navigation targets.
type LauncherRegistry interface {
	IsLauncher(ctx context.Context, packageID string) bool
}

// ActionDispatcher is the click/back-navigation surface of the platform
// layer. All three operations may fail; failure means "no effect occurred",
// never an exceptional condition.
type ActionDispatcher interface {
	// Click dispatches a click on the node. Returns false if the platform
	// rejected or dropped the action.
	Click(ctx context.Context, node NodeHandle) bool
	// PressBack issues a global back-navigation action.
	PressBack(ctx context.Context) bool
	// ActivePackage reports the package owning the current foreground
	// surface. The second return is false when it cannot be determined.
	ActivePackage(ctx context.Context) (string, bool)
}

// -- Persistence collaborator --

// Repository is the persistence contract for scrape records. Schema and
// migration mechanics are owned by the implementation. Upserts must be
// atomic per key (single-writer-per-key semantics) so that concurrent
// passive and active captures of the same screen cannot race.
type Repository interface {
	// UpsertApp inserts the app record or updates the mutable fields of an
	// existing one.
	UpsertApp(ctx context.Context, app *AppRecord) error
	// GetApp returns ErrNotFound when the package has never been seen.
	GetApp(ctx context.Context, packageID string) (*AppRecord, error)
	// ListApps returns all app records ordered by package identifier.
	ListApps(ctx context.Context) ([]*AppRecord, error)
	// DeleteApp removes an app and cascades to its screens and elements.
	DeleteApp(ctx context.Context, packageID string) error

	// UpsertScreen inserts the screen if its hash is unseen for the owning
	// app; a duplicate insert is a no-op (screens are append-only).
	UpsertScreen(ctx context.Context, screen *ScreenRecord) error
	ScreenExists(ctx context.Context, packageID string, hash Hash) (bool, error)

	// UpsertElement inserts a new element, or bumps seen_count/last_seen on
	// an existing hash. Classification is overwritten on update so that
	// ephemeral promotion sticks.
	UpsertElement(ctx context.Context, el *ElementRecord) error
	// UpsertElements is the bulk-capture variant of UpsertElement.
	UpsertElements(ctx context.Context, els []*ElementRecord) error
	ElementExists(ctx context.Context, hash Hash) (bool, error)
	// ElementSeenCount returns 0 for unknown hashes.
	ElementSeenCount(ctx context.Context, hash Hash) (int, error)

	CreateSession(ctx context.Context, s *ExplorationSession) error
	FinishSession(ctx context.Context, s *ExplorationSession) error

	// WithTransaction runs fn against a transactional view of the
	// repository, committing on nil and rolling back on error.
	WithTransaction(ctx context.Context, fn func(Repository) error) error
}
