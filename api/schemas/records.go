package schemas

import (
	"time"
)

// Hash is a deterministic, content-derived identifier used for deduplication.
// The zero value means "no hash".
type Hash string

// ScrapeMode is the per-app scraping mode.
type ScrapeMode string

const (
	// ModeDynamic is the passive, observe-as-navigated capture mode.
	ModeDynamic ScrapeMode = "dynamic"
	// ModeLearnApp is the exhaustive, click-driven exploration mode.
	ModeLearnApp ScrapeMode = "learn_app"
)

// Classification describes the expected lifetime of a UI element.
type Classification string

const (
	ClassPersistent Classification = "persistent"
	ClassEphemeral  Classification = "ephemeral"
	ClassHybrid     Classification = "hybrid"
)

// WindowKind distinguishes the main surface of an app from overlays.
type WindowKind string

const (
	WindowMain    WindowKind = "main"
	WindowOverlay WindowKind = "overlay"
)

// SessionStatus is the lifecycle state of an exploration session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// AppRecord is the durable record for one scraped application, keyed by its
// package identifier. It is created on first observation and mutated by the
// coordinator after every scrape batch.
type AppRecord struct {
	PackageID     string     `json:"package_id"`
	DisplayName   string     `json:"display_name"`
	Mode          ScrapeMode `json:"mode"`
	FullyLearned  bool       `json:"fully_learned"`
	Completion    float64    `json:"completion"`
	TotalScreens  int        `json:"total_screens"`
	TotalElements int        `json:"total_elements"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastSeen      time.Time  `json:"last_seen"`
	LearnedAt     *time.Time `json:"learned_at,omitempty"`
}

// ScreenRecord is one distinct visual surface, keyed by the content hash of
// its node tree plus window kind. Screens are append-only within an app.
type ScreenRecord struct {
	Hash       Hash       `json:"hash"`
	PackageID  string     `json:"package_id"`
	Kind       WindowKind `json:"kind"`
	CapturedAt time.Time  `json:"captured_at"`
}

// ElementRecord is one distinct interactive or informational node, keyed by
// its context-aware hash. Hash uniqueness is enforced per app.
type ElementRecord struct {
	Hash           Hash           `json:"hash"`
	PackageID      string         `json:"package_id"`
	ScreenHash     Hash           `json:"screen_hash"`
	ClassName      string         `json:"class_name"`
	ResourceID     string         `json:"resource_id"`
	Text           string         `json:"text"`
	Description    string         `json:"description"`
	Clickable      bool           `json:"clickable"`
	LongClickable  bool           `json:"long_clickable"`
	Checkable      bool           `json:"checkable"`
	Focusable      bool           `json:"focusable"`
	Enabled        bool           `json:"enabled"`
	Bounds         Bounds         `json:"bounds"`
	Depth          int            `json:"depth"`
	IndexInParent  int            `json:"index_in_parent"`
	Classification Classification `json:"classification"`
	FirstSeen      time.Time      `json:"first_seen"`
	LastSeen       time.Time      `json:"last_seen"`
	SeenCount      int            `json:"seen_count"`
}

// ExplorationSession tracks one active-mode run. At most one session per app
// may be in progress at a time.
type ExplorationSession struct {
	ID                 string        `json:"id"`
	PackageID          string        `json:"package_id"`
	StartedAt          time.Time     `json:"started_at"`
	EndedAt            *time.Time    `json:"ended_at,omitempty"`
	Status             SessionStatus `json:"status"`
	ScreensDiscovered  int           `json:"screens_discovered"`
	ElementsDiscovered int           `json:"elements_discovered"`
	ElementsClicked    int           `json:"elements_clicked"`
	Completion         float64       `json:"completion"`
}
