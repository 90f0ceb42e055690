package report

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/neurlang/seqadv/stats"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Kinds of report rows.
const (
	KindTrain = "train"
	KindValid = "valid"
)

// Row is one stored report.
type Row struct {
	RunID      string
	// Kind is KindTrain or KindValid.
	Kind       string
	Step       int
	Task       string
	Loss       float64
	NWords     int
	NCorrect   int
	NSrcWords  int
	CriticLoss float64
	LR         float64
	CreatedAt  time.Time
}

// Stats rebuilds the statistics a row was stored from.
func (r Row) Stats() *stats.Statistics {
	return &stats.Statistics{
		Basename:   r.Task,
		Loss:       r.Loss,
		NWords:     r.NWords,
		NCorrect:   r.NCorrect,
		NSrcWords:  r.NSrcWords,
		CriticLoss: r.CriticLoss,
	}
}

// Store keeps training and validation reports in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens the database at path and migrates it. Use ":memory:" for an in-memory database.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open metrics database")
	}
	// an in-memory database lives as long as its connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping metrics database")
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate runs all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return errors.Wrap(err, "set migration dialect")
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a run.
func (s *Store) StartRun(ctx context.Context, runID string, started time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at`,
		runID, started.UnixMilli())
	return errors.Wrap(err, "insert run")
}

// Insert stores one report row.
func (s *Store) Insert(ctx context.Context, r Row) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (run_id, kind, step, task, loss, n_words, n_correct, n_src_words, critic_loss, lr, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Kind, r.Step, r.Task, r.Loss, r.NWords, r.NCorrect, r.NSrcWords, r.CriticLoss, r.LR, r.CreatedAt.UnixMilli())
	return errors.Wrap(err, "insert report")
}

// Runs lists the run ids, oldest first.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reports returns the rows of a run of the given kind ("" for all) ordered by step.
func (s *Store) Reports(ctx context.Context, runID, kind string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, kind, step, task, loss, n_words, n_correct, n_src_words, critic_loss, lr, created_at
		FROM reports
		WHERE run_id = ? AND (? = '' OR kind = ?)
		ORDER BY step, id`, runID, kind, kind)
	if err != nil {
		return nil, errors.Wrap(err, "query reports")
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		var created int64
		if err := rows.Scan(&r.RunID, &r.Kind, &r.Step, &r.Task, &r.Loss, &r.NWords, &r.NCorrect,
			&r.NSrcWords, &r.CriticLoss, &r.LR, &created); err != nil {
			return nil, errors.Wrap(err, "scan report")
		}
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}
