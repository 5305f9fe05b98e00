package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
)

const (
	DefaultStatsTable    = "user_theory_question_stats"
	DefaultSessionsTable = "user_theory_sessions"
	DefaultTimeout       = 12 * time.Second
)

type Options struct {
	StatsTable    string
	SessionsTable string
	// Timeout bounds each Push; zero means DefaultTimeout.
	Timeout time.Duration
}

// PostgresPusher upserts into the stats and sessions tables.
type PostgresPusher struct {
	db            *sql.DB
	statsTable    string
	sessionsTable string
	timeout       time.Duration
	logger        *slog.Logger
}

// OpenPostgres connects through the pgx stdlib driver and pings the server.
func OpenPostgres(ctx context.Context, dsn string, opts Options, logger *slog.Logger) (*PostgresPusher, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping remote store: %w", err)
	}
	return NewPostgres(db, opts, logger), nil
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB, opts Options, logger *slog.Logger) *PostgresPusher {
	if opts.StatsTable == "" {
		opts.StatsTable = DefaultStatsTable
	}
	if opts.SessionsTable == "" {
		opts.SessionsTable = DefaultSessionsTable
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPusher{
		db:            db,
		statsTable:    QuoteTable(opts.StatsTable),
		sessionsTable: QuoteTable(opts.SessionsTable),
		timeout:       opts.Timeout,
		logger:        logger,
	}
}

func (p *PostgresPusher) Close() error {
	return p.db.Close()
}

// Push writes the stats rows and then the session row in one transaction.
func (p *PostgresPusher) Push(ctx context.Context, push Push) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, err := json.Marshal(push.Session.Payload)
	if err != nil {
		return fmt.Errorf("encode session payload: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statsQuery := fmt.Sprintf(`
		INSERT INTO %s (user_id, question_id, seen_count, correct_count, incorrect_count, last_is_correct, last_answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, question_id)
		DO UPDATE SET
			seen_count=EXCLUDED.seen_count,
			correct_count=EXCLUDED.correct_count,
			incorrect_count=EXCLUDED.incorrect_count,
			last_is_correct=EXCLUDED.last_is_correct,
			last_answered_at=EXCLUDED.last_answered_at`, p.statsTable)
	for _, r := range push.Stats {
		if _, err := tx.ExecContext(ctx, statsQuery,
			r.UserID, r.QuestionID, r.SeenCount, r.CorrectCount, r.IncorrectCount, r.LastIsCorrect, r.LastAnsweredAt); err != nil {
			return fmt.Errorf("upsert stats %s: %w", r.QuestionID, err)
		}
	}

	s := push.Session
	sessionQuery := fmt.Sprintf(`
		INSERT INTO %s (user_id, session_id, topic_id, total_questions, score_correct, score_incorrect, finished_at, updated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT (user_id, session_id)
		DO UPDATE SET
			topic_id=EXCLUDED.topic_id,
			total_questions=EXCLUDED.total_questions,
			score_correct=EXCLUDED.score_correct,
			score_incorrect=EXCLUDED.score_incorrect,
			finished_at=EXCLUDED.finished_at,
			updated_at=EXCLUDED.updated_at,
			payload=EXCLUDED.payload`, p.sessionsTable)
	if _, err := tx.ExecContext(ctx, sessionQuery,
		s.UserID, s.SessionID, s.TopicID, s.TotalQuestions, s.ScoreCorrect, s.ScoreIncorrect, s.FinishedAt, s.UpdatedAt, string(payload)); err != nil {
		return fmt.Errorf("upsert session %s: %w", s.SessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	p.logger.Debug("pushed session", "user_id", s.UserID, "session_id", s.SessionID, "stats", len(push.Stats))
	return nil
}

// EnsureSchema creates both tables with their natural-key constraints.
func (p *PostgresPusher) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, SchemaSQL(p.statsTable, p.sessionsTable))
	return err
}

// SchemaSQL renders the DDL for already quoted table names.
func SchemaSQL(statsTable, sessionsTable string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  user_id TEXT NOT NULL,
  question_id TEXT NOT NULL,
  seen_count INTEGER NOT NULL DEFAULT 0,
  correct_count INTEGER NOT NULL DEFAULT 0,
  incorrect_count INTEGER NOT NULL DEFAULT 0,
  last_is_correct BOOLEAN,
  last_answered_at TIMESTAMPTZ,
  UNIQUE (user_id, question_id)
);

CREATE TABLE IF NOT EXISTS %s (
  user_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  topic_id TEXT,
  total_questions INTEGER NOT NULL DEFAULT 0,
  score_correct INTEGER NOT NULL DEFAULT 0,
  score_incorrect INTEGER NOT NULL DEFAULT 0,
  finished_at TIMESTAMPTZ,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  payload JSONB NOT NULL DEFAULT '{}'::jsonb,
  UNIQUE (user_id, session_id)
);
`, statsTable, sessionsTable)
}

// QuoteTable quotes a table name, keeping an optional schema prefix.
func QuoteTable(name string) string {
	return pgx.Identifier(strings.Split(strings.TrimSpace(name), ".")).Sanitize()
}

// Postgres error codes of a backend that was never provisioned for sync.
var notProvisionedCodes = map[string]bool{
	"42P01": true, // undefined_table
	"42703": true, // undefined_column
	"3F000": true, // invalid_schema_name
	"22P02": true, // invalid_text_representation
}

// IsNotProvisioned reports whether err means the remote store has no sync
// tables (or rejects our identifiers), which callers treat as sync being
// unavailable rather than as a failure.
func IsNotProvisioned(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && notProvisionedCodes[pgErr.Code] {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "relation") ||
		strings.Contains(msg, "invalid input syntax")
}
