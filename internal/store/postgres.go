// Package store provides the persistence collaborator implementations: a
// PostgreSQL repository for durable deployments and an in-memory repository
// for tests and offline replay. Schema and migration mechanics are owned by
// the operator; the expected tables are apps, screens, elements and sessions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts pgxpool.Pool so the repository can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// querier is the subset of DBPool shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Postgres is the durable Repository implementation. All upserts use
// ON CONFLICT so that concurrent captures of the same key resolve to
// single-writer-per-key semantics inside the database.
type Postgres struct {
	pool DBPool // nil inside a transaction
	q    querier
	log  *zap.Logger
}

var _ schemas.Repository = (*Postgres)(nil)

// NewPostgres creates a repository and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, q: pool, log: logger.Named("store")}, nil
}

const sqlUpsertApp = `
	INSERT INTO apps (package_id, display_name, mode, fully_learned, completion,
		total_screens, total_elements, first_seen, last_seen, learned_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (package_id) DO UPDATE SET
		display_name = EXCLUDED.display_name,
		mode = EXCLUDED.mode,
		fully_learned = EXCLUDED.fully_learned,
		completion = EXCLUDED.completion,
		total_screens = EXCLUDED.total_screens,
		total_elements = EXCLUDED.total_elements,
		last_seen = EXCLUDED.last_seen,
		learned_at = EXCLUDED.learned_at;
`

func (p *Postgres) UpsertApp(ctx context.Context, app *schemas.AppRecord) error {
	_, err := p.q.Exec(ctx, sqlUpsertApp,
		app.PackageID, app.DisplayName, string(app.Mode), app.FullyLearned,
		app.Completion, app.TotalScreens, app.TotalElements,
		app.FirstSeen.UTC(), app.LastSeen.UTC(), app.LearnedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert app %s: %w", app.PackageID, err)
	}
	return nil
}

const sqlSelectApp = `
	SELECT package_id, display_name, mode, fully_learned, completion,
		total_screens, total_elements, first_seen, last_seen, learned_at
	FROM apps WHERE package_id = $1;
`

func (p *Postgres) GetApp(ctx context.Context, packageID string) (*schemas.AppRecord, error) {
	row := p.q.QueryRow(ctx, sqlSelectApp, packageID)
	app, err := scanApp(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schemas.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch app %s: %w", packageID, err)
	}
	return app, nil
}

func scanApp(row pgx.Row) (*schemas.AppRecord, error) {
	var app schemas.AppRecord
	var mode string
	err := row.Scan(&app.PackageID, &app.DisplayName, &mode, &app.FullyLearned,
		&app.Completion, &app.TotalScreens, &app.TotalElements,
		&app.FirstSeen, &app.LastSeen, &app.LearnedAt)
	if err != nil {
		return nil, err
	}
	app.Mode = schemas.ScrapeMode(mode)
	return &app, nil
}

const sqlListApps = `
	SELECT package_id, display_name, mode, fully_learned, completion,
		total_screens, total_elements, first_seen, last_seen, learned_at
	FROM apps ORDER BY package_id ASC;
`

func (p *Postgres) ListApps(ctx context.Context) ([]*schemas.AppRecord, error) {
	rows, err := p.q.Query(ctx, sqlListApps)
	if err != nil {
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}
	defer rows.Close()

	var apps []*schemas.AppRecord
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app row: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// DeleteApp removes the app and everything it owns. Sessions reference the
// app by package id and go with it.
func (p *Postgres) DeleteApp(ctx context.Context, packageID string) error {
	return p.WithTransaction(ctx, func(r schemas.Repository) error {
		tx := r.(*Postgres)
		for _, stmt := range []string{
			`DELETE FROM elements WHERE package_id = $1;`,
			`DELETE FROM screens WHERE package_id = $1;`,
			`DELETE FROM sessions WHERE package_id = $1;`,
			`DELETE FROM apps WHERE package_id = $1;`,
		} {
			if _, err := tx.q.Exec(ctx, stmt, packageID); err != nil {
				return fmt.Errorf("failed to purge app %s: %w", packageID, err)
			}
		}
		return nil
	})
}

const sqlUpsertScreen = `
	INSERT INTO screens (hash, package_id, kind, captured_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (package_id, hash) DO NOTHING;
`

func (p *Postgres) UpsertScreen(ctx context.Context, screen *schemas.ScreenRecord) error {
	_, err := p.q.Exec(ctx, sqlUpsertScreen,
		string(screen.Hash), screen.PackageID, string(screen.Kind), screen.CapturedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert screen %s: %w", screen.Hash, err)
	}
	return nil
}

func (p *Postgres) ScreenExists(ctx context.Context, packageID string, hash schemas.Hash) (bool, error) {
	var exists bool
	err := p.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM screens WHERE package_id = $1 AND hash = $2);`,
		packageID, string(hash)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check screen existence: %w", err)
	}
	return exists, nil
}

// capabilities is the serialized form of the boolean capability flags,
// stored as a single JSONB column.
type capabilities struct {
	Clickable     bool `json:"clickable"`
	LongClickable bool `json:"long_clickable"`
	Checkable     bool `json:"checkable"`
	Focusable     bool `json:"focusable"`
	Enabled       bool `json:"enabled"`
}

const sqlUpsertElement = `
	INSERT INTO elements (hash, package_id, screen_hash, class_name, resource_id,
		text, description, caps, bounds, depth, index_in_parent, classification,
		first_seen, last_seen, seen_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)
	ON CONFLICT (hash) DO UPDATE SET
		seen_count = elements.seen_count + 1,
		last_seen = EXCLUDED.last_seen,
		classification = EXCLUDED.classification;
`

func elementArgs(el *schemas.ElementRecord) ([]any, error) {
	caps, err := json.MarshalToString(capabilities{
		Clickable:     el.Clickable,
		LongClickable: el.LongClickable,
		Checkable:     el.Checkable,
		Focusable:     el.Focusable,
		Enabled:       el.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capability flags: %w", err)
	}
	return []any{
		string(el.Hash), el.PackageID, string(el.ScreenHash), el.ClassName,
		el.ResourceID, el.Text, el.Description, caps, el.Bounds.Serialize(),
		el.Depth, el.IndexInParent, string(el.Classification),
		el.FirstSeen.UTC(), el.LastSeen.UTC(),
	}, nil
}

func (p *Postgres) UpsertElement(ctx context.Context, el *schemas.ElementRecord) error {
	args, err := elementArgs(el)
	if err != nil {
		return err
	}
	if _, err := p.q.Exec(ctx, sqlUpsertElement, args...); err != nil {
		return fmt.Errorf("failed to upsert element %s: %w", el.Hash, err)
	}
	return nil
}

// UpsertElements queues the whole capture batch into a single pgx batch
// round-trip. Per-element marshalling errors abort before anything is sent.
func (p *Postgres) UpsertElements(ctx context.Context, els []*schemas.ElementRecord) error {
	if len(els) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, el := range els {
		args, err := elementArgs(el)
		if err != nil {
			return err
		}
		batch.Queue(sqlUpsertElement, args...)
	}

	br := p.q.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send element batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for i := range els {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to execute batch upsert for element %s (index %d): %w",
				els[i].Hash, i, err)
		}
	}
	return nil
}

func (p *Postgres) ElementExists(ctx context.Context, hash schemas.Hash) (bool, error) {
	var exists bool
	err := p.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM elements WHERE hash = $1);`,
		string(hash)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check element existence: %w", err)
	}
	return exists, nil
}

func (p *Postgres) ElementSeenCount(ctx context.Context, hash schemas.Hash) (int, error) {
	var count int
	err := p.q.QueryRow(ctx,
		`SELECT seen_count FROM elements WHERE hash = $1;`,
		string(hash)).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to fetch seen count: %w", err)
	}
	return count, nil
}

const sqlInsertSession = `
	INSERT INTO sessions (id, package_id, started_at, status,
		screens_discovered, elements_discovered, elements_clicked, completion)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`

func (p *Postgres) CreateSession(ctx context.Context, s *schemas.ExplorationSession) error {
	_, err := p.q.Exec(ctx, sqlInsertSession,
		s.ID, s.PackageID, s.StartedAt.UTC(), string(s.Status),
		s.ScreensDiscovered, s.ElementsDiscovered, s.ElementsClicked, s.Completion)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", s.ID, err)
	}
	return nil
}

const sqlFinishSession = `
	UPDATE sessions SET ended_at = $2, status = $3, screens_discovered = $4,
		elements_discovered = $5, elements_clicked = $6, completion = $7
	WHERE id = $1;
`

func (p *Postgres) FinishSession(ctx context.Context, s *schemas.ExplorationSession) error {
	var endedAt *time.Time
	if s.EndedAt != nil {
		utc := s.EndedAt.UTC()
		endedAt = &utc
	}
	_, err := p.q.Exec(ctx, sqlFinishSession,
		s.ID, endedAt, string(s.Status),
		s.ScreensDiscovered, s.ElementsDiscovered, s.ElementsClicked, s.Completion)
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", s.ID, err)
	}
	return nil
}

// WithTransaction runs fn against a transactional repository view. Nested
// calls reuse the enclosing transaction.
func (p *Postgres) WithTransaction(ctx context.Context, fn func(schemas.Repository) error) error {
	if p.pool == nil {
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			p.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := fn(&Postgres{q: tx, log: p.log}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
