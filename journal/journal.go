package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ringo-is-a-color/lastcall/shutdown"
	"github.com/ringo-is-a-color/lastcall/util/errors"
	"github.com/ringo-is-a-color/lastcall/util/log"
	_ "modernc.org/sqlite"
)

const schema = `
create table if not exists runs
(
    id         text primary key,
    pid        integer not null,
    started_at integer not null,
    stopped_at integer,
    reason     text
);

create table if not exists cleanups
(
    run_id      text    not null references runs (id),
    seq         integer not null,
    name        text    not null,
    duration_ms integer not null,
    error       text,
    primary key (run_id, seq)
);
`

// Journal records each run of the daemon and the outcome of its cleanup actions in SQLite.
type Journal struct {
	db    *sql.DB
	runID uuid.UUID

	mu     sync.Mutex
	closed bool
}

var _ shutdown.Observer = new(Journal)

type Run struct {
	ID        uuid.UUID
	PID       int
	StartedAt time.Time
	StoppedAt *time.Time
	Reason    string
}

type Cleanup struct {
	Seq      int
	Name     string
	Duration time.Duration
	Error    string
}

func Open(path string) (*Journal, error) {
	err := os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	_, err = db.Exec(schema)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "fail to create the journal tables in %v", path)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) StartRun(ctx context.Context) (uuid.UUID, error) {
	runID := uuid.New()
	_, err := j.db.ExecContext(ctx, "insert into runs (id, pid, started_at) values (?, ?, ?)",
		runID.String(), os.Getpid(), time.Now().UnixMilli())
	if err != nil {
		return uuid.Nil, errors.WithStack(err)
	}
	j.mu.Lock()
	j.runID = runID
	j.mu.Unlock()
	return runID, nil
}

func (j *Journal) RunID() uuid.UUID {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runID
}

func (j *Journal) ActionFinished(result shutdown.ActionResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.runID == uuid.Nil {
		return
	}

	var errMsg sql.NullString
	if result.Err != nil {
		errMsg = sql.NullString{String: result.Err.Error(), Valid: true}
	}
	_, err := j.db.Exec("insert into cleanups (run_id, seq, name, duration_ms, error) values (?, ?, ?, ?, ?)",
		j.runID.String(), result.Seq, result.Name, result.Duration.Milliseconds(), errMsg)
	if err != nil {
		log.WarnWithError("fail to record the cleanup action", errors.WithStack(err), "name", result.Name)
	}
}

// DrainFinished does nothing as the journal records the end of the run in its own cleanup action,
// see FinishRun.
func (j *Journal) DrainFinished(*shutdown.Report) {}

// FinishRun marks the current run as stopped, with the reason of the drain when ctx carries one.
func (j *Journal) FinishRun(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.runID == uuid.Nil {
		return nil
	}

	reason := "unknown"
	if r, ok := shutdown.ReasonFromContext(ctx); ok {
		reason = r.String()
	}
	_, err := j.db.ExecContext(ctx, "update runs set stopped_at = ?, reason = ? where id = ?",
		time.Now().UnixMilli(), reason, j.runID.String())
	return errors.WithStack(err)
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return errors.WithStack(j.db.Close())
}

// CleanupAction finishes the run and closes the database. Register it before any other resource
// so the other cleanup actions are recorded before it runs.
func (j *Journal) CleanupAction() shutdown.Action {
	return shutdown.ErrFunc(func(ctx context.Context) error {
		err := j.FinishRun(ctx)
		closeErr := j.Close()
		if err != nil {
			return err
		}
		return closeErr
	})
}

func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, "select id, pid, started_at, stopped_at, reason from runs order by started_at")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var runs []Run
	for rows.Next() {
		var (
			id        string
			run       Run
			startedAt int64
			stoppedAt sql.NullInt64
			reason    sql.NullString
		)
		err := rows.Scan(&id, &run.PID, &startedAt, &stoppedAt, &reason)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		run.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		run.StartedAt = time.UnixMilli(startedAt)
		if stoppedAt.Valid {
			stopped := time.UnixMilli(stoppedAt.Int64)
			run.StoppedAt = &stopped
		}
		run.Reason = reason.String
		runs = append(runs, run)
	}
	return runs, errors.WithStack(rows.Err())
}

func (j *Journal) Cleanups(ctx context.Context, runID uuid.UUID) ([]Cleanup, error) {
	rows, err := j.db.QueryContext(ctx, "select seq, name, duration_ms, error from cleanups where run_id = ? order by seq",
		runID.String())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var cleanups []Cleanup
	for rows.Next() {
		var (
			cleanup    Cleanup
			durationMs int64
			errMsg     sql.NullString
		)
		err := rows.Scan(&cleanup.Seq, &cleanup.Name, &durationMs, &errMsg)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		cleanup.Duration = time.Duration(durationMs) * time.Millisecond
		cleanup.Error = errMsg.String
		cleanups = append(cleanups, cleanup)
	}
	return cleanups, errors.WithStack(rows.Err())
}
