// Package progress keeps the position of a run in a SQLite database so an
// interrupted run can resume at the dataset it stopped at.
//
// A batch is one pass over the sorted dataset identifiers. Its UUID is sent to
// the catalog with every update so the changes of one pass are grouped.
package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Reset discards stored progress when passed as whereToStart.
const Reset = "RESET"

// Outcome statuses.
const (
	StatusPublished = "published"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// ErrUnknownStart is returned when whereToStart names no known dataset.
var ErrUnknownStart = errors.New("where-to-start dataset not found")

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	total        INTEGER NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT
);
CREATE TABLE IF NOT EXISTS progress (
	batch_id   TEXT PRIMARY KEY REFERENCES batches(id),
	name       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	batch_id    TEXT NOT NULL REFERENCES batches(id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL,
	PRIMARY KEY (batch_id, name)
);`

// DB is the progress database.
type DB struct {
	*sql.DB
	now func() time.Time
}

// Open opens (and creates) the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; avoids SQLITE_BUSY between statements of the same run
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create progress schema: %w", err)
	}
	return &DB{DB: db, now: time.Now}, nil
}

func (db *DB) timestamp() string {
	return db.now().UTC().Format(time.RFC3339)
}

// Batch is an open pass over the dataset list.
type Batch struct {
	ID uuid.UUID

	// Start is the index in the name list to continue from.
	Start int

	// Resumed is true when an unfinished batch was picked up.
	Resumed bool

	db *DB
}

// Begin opens a batch for names.
//
// whereToStart selects the start:
//   - "": resume the latest unfinished batch at its checkpoint, or start a
//     new batch at the first name
//   - Reset: drop unfinished batches and start a new batch
//   - a dataset name: start at that name, in the unfinished batch if there
//     is one
func (db *DB) Begin(ctx context.Context, names []string, whereToStart string) (*Batch, error) {
	whereToStart = strings.TrimSpace(whereToStart)

	if strings.EqualFold(whereToStart, Reset) {
		if _, err := db.ExecContext(ctx, `
		UPDATE batches SET completed_at = ? WHERE completed_at IS NULL`, db.timestamp()); err != nil {
			return nil, err
		}
		if _, err := db.ExecContext(ctx, `DELETE FROM progress`); err != nil {
			return nil, err
		}
		return db.newBatch(ctx, len(names))
	}

	batch, checkpoint, err := db.unfinished(ctx)
	if err != nil {
		return nil, err
	}

	if whereToStart != "" {
		start := indexOf(names, whereToStart)
		if start < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStart, whereToStart)
		}
		if batch == nil {
			batch, err = db.newBatch(ctx, len(names))
			if err != nil {
				return nil, err
			}
		}
		batch.Start = start
		return batch, nil
	}

	if batch == nil {
		return db.newBatch(ctx, len(names))
	}
	if start := indexOf(names, checkpoint); start >= 0 {
		batch.Start = start
	}
	return batch, nil
}

func (db *DB) newBatch(ctx context.Context, total int) (*Batch, error) {
	id := uuid.New()
	if _, err := db.ExecContext(ctx, `
	INSERT INTO batches (id, total, started_at) VALUES (?, ?, ?)`,
		id.String(), total, db.timestamp()); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	return &Batch{ID: id, db: db}, nil
}

// unfinished returns the latest batch without completed_at and its
// checkpoint name.
func (db *DB) unfinished(ctx context.Context) (*Batch, string, error) {
	var id string
	var checkpoint sql.NullString
	err := db.QueryRowContext(ctx, `
	SELECT b.id, p.name
	FROM batches b LEFT JOIN progress p ON p.batch_id = b.id
	WHERE b.completed_at IS NULL
	ORDER BY b.seq DESC
	LIMIT 1`).Scan(&id, &checkpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, "", fmt.Errorf("corrupt batch id %q: %w", id, err)
	}
	return &Batch{ID: parsed, Resumed: true, db: db}, checkpoint.String, nil
}

// Checkpoint stores name as the dataset being processed.
func (b *Batch) Checkpoint(ctx context.Context, name string) error {
	_, err := b.db.ExecContext(ctx, `
	INSERT INTO progress (batch_id, name, updated_at) VALUES (?, ?, ?)
	ON CONFLICT (batch_id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		b.ID.String(), name, b.db.timestamp())
	return err
}

// Record stores the outcome of name, replacing an earlier one.
func (b *Batch) Record(ctx context.Context, name, status, message string) error {
	_, err := b.db.ExecContext(ctx, `
	INSERT INTO outcomes (batch_id, name, status, message, recorded_at) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (batch_id, name) DO UPDATE SET
		status = excluded.status,
		message = excluded.message,
		recorded_at = excluded.recorded_at`,
		b.ID.String(), name, status, message, b.db.timestamp())
	return err
}

// Complete marks the batch finished and drops its checkpoint. The next Begin
// starts a new batch.
func (b *Batch) Complete(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
	UPDATE batches SET completed_at = ? WHERE id = ?`, b.db.timestamp(), b.ID.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM progress WHERE batch_id = ?`, b.ID.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// Outcome is the recorded result of one dataset.
type Outcome struct {
	Name       string
	Status     string
	Message    string
	RecordedAt string
}

// Status describes the latest batch.
type Status struct {
	BatchID     string
	Total       int
	StartedAt   string
	CompletedAt string
	Checkpoint  string
	Outcomes    []Outcome
}

// Latest returns the status of the most recent batch, or nil when there is
// none.
func (db *DB) Latest(ctx context.Context) (*Status, error) {
	var s Status
	var completed, checkpoint sql.NullString
	err := db.QueryRowContext(ctx, `
	SELECT b.id, b.total, b.started_at, b.completed_at, p.name
	FROM batches b LEFT JOIN progress p ON p.batch_id = b.id
	ORDER BY b.seq DESC
	LIMIT 1`).Scan(&s.BatchID, &s.Total, &s.StartedAt, &completed, &checkpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CompletedAt = completed.String
	s.Checkpoint = checkpoint.String

	rows, err := db.QueryContext(ctx, `
	SELECT name, status, message, recorded_at
	FROM outcomes
	WHERE batch_id = ?
	ORDER BY name`, s.BatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.Name, &o.Status, &o.Message, &o.RecordedAt); err != nil {
			return nil, err
		}
		s.Outcomes = append(s.Outcomes, o)
	}
	return &s, rows.Err()
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
