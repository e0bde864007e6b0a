package trace

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxSessions = 500

// Store persists trace data to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to a PostgreSQL trace database at connStr and applies pending migrations.
func Open(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace ping: %w", err)
	}
	if err = migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a session and prunes the oldest beyond maxSessions.
func (s *Store) CreateSession(ctx context.Context, id, meetingID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, meeting_id, started_at) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		id, meetingID, startedAt.UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id NOT IN (SELECT id FROM sessions ORDER BY started_at DESC LIMIT $1)`,
		maxSessions,
	)
	return err
}

func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = $1 WHERE id = $2 AND ended_at IS NULL`,
		endedAt.UTC(), id,
	)
	return err
}

func (s *Store) CreateRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, kind, artifact_id, requirement_count, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.SessionID, r.Kind, r.ArtifactID, r.RequirementCount, r.StartedAt.UTC(), StatusRunning,
	)
	return err
}

// FinishRun sets the run's final fields.
func (s *Store) FinishRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET duration_ms = $1, chunk_count = $2, output = $3, status = $4, error_msg = $5 WHERE id = $6`,
		r.DurationMs, r.ChunkCount, r.Output, r.Status, r.Error, r.ID,
	)
	return err
}

func (s *Store) CreateSpan(ctx context.Context, sp Span) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spans (id, session_id, run_id, name, started_at, duration_ms, input, output, status, error_msg)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sp.ID, sp.SessionID, sp.RunID, sp.Name, sp.StartedAt.UTC(),
		sp.DurationMs, sp.Input, sp.Output, sp.Status, sp.Error,
	)
	return err
}

// ListSessions returns sessions newest first with run counts, plus the total.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]Session, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.meeting_id, s.started_at, s.ended_at, COUNT(r.id) AS run_count
		FROM sessions s
		LEFT JOIN runs r ON r.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var endedAt sql.NullTime
		if err = rows.Scan(&sess.ID, &sess.MeetingID, &sess.StartedAt, &endedAt, &sess.RunCount); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			sess.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

// GetSession returns one session with its runs in start order.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, []Run, error) {
	var sess Session
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, meeting_id, started_at, ended_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.MeetingID, &sess.StartedAt, &endedAt)
	if err != nil {
		return nil, nil, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, artifact_id, requirement_count, started_at,
		       duration_ms, chunk_count, output, status, error_msg
		FROM runs
		WHERE session_id = $1
		ORDER BY started_at ASC
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err = rows.Scan(&r.ID, &r.SessionID, &r.Kind, &r.ArtifactID, &r.RequirementCount, &r.StartedAt,
			&r.DurationMs, &r.ChunkCount, &r.Output, &r.Status, &r.Error); err != nil {
			return nil, nil, err
		}
		runs = append(runs, r)
	}
	return &sess, runs, rows.Err()
}

// ListSpans returns a session's spans in start order.
func (s *Store) ListSpans(ctx context.Context, sessionID string) ([]Span, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, run_id, name, started_at, duration_ms, input, output, status, error_msg
		 FROM spans WHERE session_id = $1 ORDER BY started_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	spans := []Span{}
	for rows.Next() {
		var sp Span
		if err = rows.Scan(&sp.ID, &sp.SessionID, &sp.RunID, &sp.Name, &sp.StartedAt, &sp.DurationMs,
			&sp.Input, &sp.Output, &sp.Status, &sp.Error); err != nil {
			return nil, err
		}
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}
