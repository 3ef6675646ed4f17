// Package mocks provides testify mocks for the interfaces in api/schemas,
// shared across package tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/augmentalis/uiscout/api/schemas"
)

// -- Repository Mock --

// MockRepository mocks schemas.Repository.
type MockRepository struct {
	mock.Mock
}

var _ schemas.Repository = (*MockRepository)(nil)

func (m *MockRepository) UpsertApp(ctx context.Context, app *schemas.AppRecord) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockRepository) GetApp(ctx context.Context, packageID string) (*schemas.AppRecord, error) {
	args := m.Called(ctx, packageID)
	if app := args.Get(0); app != nil {
		return app.(*schemas.AppRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) ListApps(ctx context.Context) ([]*schemas.AppRecord, error) {
	args := m.Called(ctx)
	if apps := args.Get(0); apps != nil {
		return apps.([]*schemas.AppRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) DeleteApp(ctx context.Context, packageID string) error {
	args := m.Called(ctx, packageID)
	return args.Error(0)
}

func (m *MockRepository) UpsertScreen(ctx context.Context, screen *schemas.ScreenRecord) error {
	args := m.Called(ctx, screen)
	return args.Error(0)
}

func (m *MockRepository) ScreenExists(ctx context.Context, packageID string, hash schemas.Hash) (bool, error) {
	args := m.Called(ctx, packageID, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) UpsertElement(ctx context.Context, el *schemas.ElementRecord) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockRepository) UpsertElements(ctx context.Context, els []*schemas.ElementRecord) error {
	args := m.Called(ctx, els)
	return args.Error(0)
}

func (m *MockRepository) ElementExists(ctx context.Context, hash schemas.Hash) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ElementSeenCount(ctx context.Context, hash schemas.Hash) (int, error) {
	args := m.Called(ctx, hash)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) CreateSession(ctx context.Context, s *schemas.ExplorationSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) FinishSession(ctx context.Context, s *schemas.ExplorationSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) WithTransaction(ctx context.Context, fn func(schemas.Repository) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

// -- WindowEnumerator Mock --

// MockEnumerator mocks schemas.WindowEnumerator.
type MockEnumerator struct {
	mock.Mock
}

var _ schemas.WindowEnumerator = (*MockEnumerator)(nil)

func (m *MockEnumerator) ListWindows(ctx context.Context, packageID string) ([]schemas.Window, error) {
	args := m.Called(ctx, packageID)
	if ws := args.Get(0); ws != nil {
		return ws.([]schemas.Window), args.Error(1)
	}
	return nil, args.Error(1)
}

// -- ActionDispatcher Mock --

// MockDispatcher mocks schemas.ActionDispatcher.
type MockDispatcher struct {
	mock.Mock
}

var _ schemas.ActionDispatcher = (*MockDispatcher)(nil)

func (m *MockDispatcher) Click(ctx context.Context, node schemas.NodeHandle) bool {
	args := m.Called(ctx, node)
	return args.Bool(0)
}

func (m *MockDispatcher) PressBack(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockDispatcher) ActivePackage(ctx context.Context) (string, bool) {
	args := m.Called(ctx)
	return args.String(0), args.Bool(1)
}

// -- LauncherRegistry Mock --

// MockLauncher mocks schemas.LauncherRegistry.
type MockLauncher struct {
	mock.Mock
}

var _ schemas.LauncherRegistry = (*MockLauncher)(nil)

func (m *MockLauncher) IsLauncher(ctx context.Context, packageID string) bool {
	args := m.Called(ctx, packageID)
	return args.Bool(0)
}
