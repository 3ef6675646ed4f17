package store

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/api/schemas"
)

// Memory is a fast, ephemeral Repository for tests, offline dump replay and
// short-lived runs where persistence is not required.
type Memory struct {
	mu       sync.RWMutex
	apps     map[string]*schemas.AppRecord
	screens  map[string]map[schemas.Hash]*schemas.ScreenRecord
	elements map[schemas.Hash]*schemas.ElementRecord
	sessions map[string]*schemas.ExplorationSession
	log      *zap.Logger
}

var _ schemas.Repository = (*Memory)(nil)

// NewMemory creates a new, empty in-memory repository.
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		apps:     make(map[string]*schemas.AppRecord),
		screens:  make(map[string]map[schemas.Hash]*schemas.ScreenRecord),
		elements: make(map[schemas.Hash]*schemas.ElementRecord),
		sessions: make(map[string]*schemas.ExplorationSession),
		log:      logger.Named("MemoryStore"),
	}
}

func (m *Memory) UpsertApp(ctx context.Context, app *schemas.AppRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *app
	m.apps[app.PackageID] = &cp
	return nil
}

func (m *Memory) GetApp(ctx context.Context, packageID string) (*schemas.AppRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.apps[packageID]
	if !ok {
		return nil, schemas.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (m *Memory) ListApps(ctx context.Context) ([]*schemas.AppRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	apps := make([]*schemas.AppRecord, 0, len(m.apps))
	for _, app := range m.apps {
		cp := *app
		apps = append(apps, &cp)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].PackageID < apps[j].PackageID })
	return apps, nil
}

func (m *Memory) DeleteApp(ctx context.Context, packageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.apps, packageID)
	delete(m.screens, packageID)
	for hash, el := range m.elements {
		if el.PackageID == packageID {
			delete(m.elements, hash)
		}
	}
	for id, s := range m.sessions {
		if s.PackageID == packageID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *Memory) UpsertScreen(ctx context.Context, screen *schemas.ScreenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byHash, ok := m.screens[screen.PackageID]
	if !ok {
		byHash = make(map[schemas.Hash]*schemas.ScreenRecord)
		m.screens[screen.PackageID] = byHash
	}
	// Screens are append-only; a duplicate insert is a no-op.
	if _, exists := byHash[screen.Hash]; exists {
		return nil
	}
	cp := *screen
	byHash[screen.Hash] = &cp
	return nil
}

func (m *Memory) ScreenExists(ctx context.Context, packageID string, hash schemas.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byHash, ok := m.screens[packageID]
	if !ok {
		return false, nil
	}
	_, exists := byHash[hash]
	return exists, nil
}

func (m *Memory) UpsertElement(ctx context.Context, el *schemas.ElementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertElementLocked(el)
	return nil
}

func (m *Memory) upsertElementLocked(el *schemas.ElementRecord) {
	if existing, ok := m.elements[el.Hash]; ok {
		existing.SeenCount++
		existing.LastSeen = el.LastSeen
		existing.Classification = el.Classification
		return
	}
	cp := *el
	cp.SeenCount = 1
	m.elements[el.Hash] = &cp
}

func (m *Memory) UpsertElements(ctx context.Context, els []*schemas.ElementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, el := range els {
		m.upsertElementLocked(el)
	}
	return nil
}

func (m *Memory) ElementExists(ctx context.Context, hash schemas.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.elements[hash]
	return exists, nil
}

func (m *Memory) ElementSeenCount(ctx context.Context, hash schemas.Hash) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	el, ok := m.elements[hash]
	if !ok {
		return 0, nil
	}
	return el.SeenCount, nil
}

// GetElement returns a copy of the stored element. Test helper; not part of
// the Repository contract.
func (m *Memory) GetElement(hash schemas.Hash) (*schemas.ElementRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	el, ok := m.elements[hash]
	if !ok {
		return nil, false
	}
	cp := *el
	return &cp, true
}

func (m *Memory) CreateSession(ctx context.Context, s *schemas.ExplorationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *Memory) FinishSession(ctx context.Context, s *schemas.ExplorationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[s.ID]
	if !ok {
		return schemas.ErrNotFound
	}
	cp := *s
	*existing = cp
	return nil
}

// WithTransaction runs fn directly; every Memory operation is individually
// atomic, which is enough for the repository's callers.
func (m *Memory) WithTransaction(ctx context.Context, fn func(schemas.Repository) error) error {
	return fn(m)
}
