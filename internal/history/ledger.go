// Package history keeps a SQLite ledger of training runs, their per-epoch
// metrics and the audits performed against scored tables.
package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	artifact      TEXT NOT NULL,
	strategy      TEXT NOT NULL DEFAULT '',
	fingerprint   TEXT NOT NULL DEFAULT '',
	train_size    INTEGER NOT NULL DEFAULT 0,
	test_size     INTEGER NOT NULL DEFAULT 0,
	iterations    INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	best_epoch    INTEGER NOT NULL DEFAULT 0,
	best_f_score  REAL NOT NULL DEFAULT 0,
	final_f_score REAL NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS epochs (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	epoch       INTEGER NOT NULL,
	loss        REAL NOT NULL,
	precision   REAL NOT NULL,
	recall      REAL NOT NULL,
	f_score     REAL NOT NULL,
	batches     INTEGER NOT NULL,
	examples    INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, epoch)
);

CREATE TABLE IF NOT EXISTS audits (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	audit_id   TEXT NOT NULL,
	input      TEXT NOT NULL,
	question   TEXT NOT NULL,
	correct    INTEGER NOT NULL,
	eligible   INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_audits_audit ON audits(audit_id);
`

// Run is one training run.
type Run struct {
	ID          string
	Artifact    string
	Strategy    string
	Fingerprint string
	TrainSize   int
	TestSize    int
	Iterations  int
	Status      string
	BestEpoch   int
	BestFScore  float64
	FinalFScore float64
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Epoch is the outcome of one training epoch.
type Epoch struct {
	Epoch      int
	Loss       float64
	Precision  float64
	Recall     float64
	FScore     float64
	Batches    int
	Examples   int
	DurationMs int64
}

// Outcome is the final state of a run.
type Outcome struct {
	Status      string
	BestEpoch   int
	BestFScore  float64
	FinalFScore float64
	Err         error
}

// AuditEntry is the result of one question within an audit.
type AuditEntry struct {
	AuditID   string
	Input     string
	Question  string
	Correct   int
	Eligible  int
	CreatedAt time.Time
}

// Ledger is a SQLite-backed run ledger.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	return &Ledger{db: db, path: path}, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts run in the running state.
func (l *Ledger) StartRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, artifact, strategy, fingerprint, train_size, test_size, iterations, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Artifact, run.Strategy, run.Fingerprint, run.TrainSize, run.TestSize, run.Iterations,
		StatusRunning, run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("starting run %s: %w", run.ID, err)
	}
	return nil
}

// RecordEpoch appends one epoch to a started run.
func (l *Ledger) RecordEpoch(ctx context.Context, runID string, e Epoch) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO epochs (run_id, epoch, loss, precision, recall, f_score, batches, examples, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, e.Epoch, e.Loss, e.Precision, e.Recall, e.FScore, e.Batches, e.Examples, e.DurationMs)
	if err != nil {
		return fmt.Errorf("recording epoch %d of run %s: %w", e.Epoch, runID, err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (l *Ledger) FinishRun(ctx context.Context, runID string, o Outcome) error {
	var msg string
	if o.Err != nil {
		msg = o.Err.Error()
	}
	res, err := l.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, best_epoch = ?, best_f_score = ?, final_f_score = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		o.Status, o.BestEpoch, o.BestFScore, o.FinalFScore, msg, time.Now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundError("run", runID)
	}
	return nil
}

const runColumns = `id, artifact, strategy, fingerprint, train_size, test_size, iterations, status,
	best_epoch, best_f_score, final_f_score, error, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var started, finished int64
	err := row.Scan(&r.ID, &r.Artifact, &r.Strategy, &r.Fingerprint, &r.TrainSize, &r.TestSize, &r.Iterations,
		&r.Status, &r.BestEpoch, &r.BestFScore, &r.FinalFScore, &r.Error, &started, &finished)
	if err != nil {
		return r, err
	}
	r.StartedAt = time.UnixMilli(started)
	if finished > 0 {
		r.FinishedAt = time.UnixMilli(finished)
	}
	return r, nil
}

// GetRun returns the run with id.
func (l *Ledger) GetRun(ctx context.Context, id string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundError("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first. A non-positive limit lists all.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Epochs returns the epochs of a run in order.
func (l *Ledger) Epochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT epoch, loss, precision, recall, f_score, batches, examples, duration_ms
		FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing epochs of run %s: %w", runID, err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		var e Epoch
		if err := rows.Scan(&e.Epoch, &e.Loss, &e.Precision, &e.Recall, &e.FScore, &e.Batches, &e.Examples, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning epoch: %w", err)
		}
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

// RecordAudit stores all question results of one audit in a transaction.
func (l *Ledger) RecordAudit(ctx context.Context, entries []AuditEntry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning audit transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, e := range entries {
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO audits (audit_id, input, question, correct, eligible, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.AuditID, e.Input, e.Question, e.Correct, e.Eligible, created.UnixMilli()); err != nil {
			return fmt.Errorf("recording audit of %s: %w", e.Question, err)
		}
	}
	return tx.Commit()
}

// Audits returns the question results of the most recent audits, newest
// first. A non-positive limit lists all.
func (l *Ledger) Audits(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT audit_id, input, question, correct, eligible, created_at
		FROM audits ORDER BY created_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audits: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var created int64
		if err := rows.Scan(&e.AuditID, &e.Input, &e.Question, &e.Correct, &e.Eligible, &created); err != nil {
			return nil, fmt.Errorf("scanning audit: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
