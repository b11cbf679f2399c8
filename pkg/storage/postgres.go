package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aaltosatellite/porthouse/pkg/types"
)

// PostgresStore is the SQL-backed archive spec §1's "persist state to
// time-series SQL tables" line and spec 4.D's db_url key point at: the
// deleted-task archive (spec 4.G, beyond pkg/schedule's in-memory one) and
// a pass-history log (spec 4.F) for sites that want history past process
// restart. Neither is required for a module to run; both are optional
// framework-level conveniences a module may wire in.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn (globals.yaml's db_url) and ensures its
// two tables exist. DefaultQueryExecMode is pinned to DescribeExec rather
// than pgx's CacheStatement default: a launcher's --declare_exchanges or a
// schema migration can alter table shape while modules keep running, and a
// cached prepared-statement plan against the old shape errors out
// (SQLSTATE 0A000) instead of just re-describing the query.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parsing db_url: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: connecting: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS deleted_tasks (
			task_name    TEXT PRIMARY KEY,
			process_name TEXT NOT NULL,
			start_time   TIMESTAMPTZ NOT NULL,
			end_time     TIMESTAMPTZ NOT NULL,
			status       TEXT NOT NULL,
			rotators     JSONB NOT NULL,
			archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS deleted_tasks_process_idx ON deleted_tasks (process_name, start_time);

		CREATE TABLE IF NOT EXISTS pass_history (
			id             BIGSERIAL PRIMARY KEY,
			object_name    TEXT NOT NULL,
			groundstation  TEXT NOT NULL,
			t_aos          TIMESTAMPTZ NOT NULL,
			t_max          TIMESTAMPTZ NOT NULL,
			t_los          TIMESTAMPTZ NOT NULL,
			el_max_degrees DOUBLE PRECISION NOT NULL,
			recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS pass_history_object_idx ON pass_history (object_name, t_aos);
	`)
	if err != nil {
		return fmt.Errorf("storage: ensuring schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ArchiveTask persists an EXECUTED or CANCELLED task beyond
// pkg/schedule's in-memory deleted index, keyed by task name so a
// re-archive (e.g. replaying a crash-recovered schedule) upserts rather
// than duplicates.
func (s *PostgresStore) ArchiveTask(ctx context.Context, task *types.Task) error {
	rotators := make([]string, 0, len(task.Rotators))
	for r := range task.Rotators {
		rotators = append(rotators, r)
	}
	rotatorsJSON, err := json.Marshal(rotators)
	if err != nil {
		return fmt.Errorf("storage: encoding rotators: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO deleted_tasks (task_name, process_name, start_time, end_time, status, rotators)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (task_name) DO UPDATE SET
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			rotators = EXCLUDED.rotators
	`, task.TaskName, task.ProcessName, task.StartTime, task.EndTime, string(task.Status), rotatorsJSON)
	if err != nil {
		return fmt.Errorf("storage: archiving task %q: %w", task.TaskName, err)
	}
	return nil
}

// ListArchivedTasks returns every archived task for process started at or
// after since, oldest first.
func (s *PostgresStore) ListArchivedTasks(ctx context.Context, process string, since time.Time) ([]*types.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT task_name, process_name, start_time, end_time, status, rotators
		FROM deleted_tasks
		WHERE process_name = $1 AND start_time >= $2
		ORDER BY start_time ASC
	`, process, since)
	if err != nil {
		return nil, fmt.Errorf("storage: listing archived tasks: %w", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		var (
			t            types.Task
			status       string
			rotatorsJSON []byte
		)
		if err := rows.Scan(&t.TaskName, &t.ProcessName, &t.StartTime, &t.EndTime, &status, &rotatorsJSON); err != nil {
			return nil, fmt.Errorf("storage: scanning archived task: %w", err)
		}
		t.Status = types.TaskStatus(status)

		var rotators []string
		if err := json.Unmarshal(rotatorsJSON, &rotators); err != nil {
			return nil, fmt.Errorf("storage: decoding rotators: %w", err)
		}
		t.Rotators = make(map[string]struct{}, len(rotators))
		for _, r := range rotators {
			t.Rotators[r] = struct{}{}
		}

		out = append(out, &t)
	}
	return out, rows.Err()
}

// RecordPass appends one completed pass to the history log, matching
// spec 4.F's pass-prediction output shape.
func (s *PostgresStore) RecordPass(ctx context.Context, groundstation string, pass types.Pass) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pass_history (object_name, groundstation, t_aos, t_max, t_los, el_max_degrees)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, pass.ObjectName, groundstation, pass.TAOS, pass.TMax, pass.TLOS, pass.ElMax)
	if err != nil {
		return fmt.Errorf("storage: recording pass for %q: %w", pass.ObjectName, err)
	}
	return nil
}

// ListPassHistory returns every recorded pass for object since, oldest first.
func (s *PostgresStore) ListPassHistory(ctx context.Context, object string, since time.Time) ([]types.Pass, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT object_name, groundstation, t_aos, t_max, t_los, el_max_degrees
		FROM pass_history
		WHERE object_name = $1 AND t_aos >= $2
		ORDER BY t_aos ASC
	`, object, since)
	if err != nil {
		return nil, fmt.Errorf("storage: listing pass history: %w", err)
	}
	defer rows.Close()

	var out []types.Pass
	for rows.Next() {
		var p types.Pass
		if err := rows.Scan(&p.ObjectName, &p.Groundstation, &p.TAOS, &p.TMax, &p.TLOS, &p.ElMax); err != nil {
			return nil, fmt.Errorf("storage: scanning pass history: %w", err)
		}
		p.Status = types.PassPredicted
		out = append(out, p)
	}
	return out, rows.Err()
}
