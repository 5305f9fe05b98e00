package remote_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/remote"
)

func TestIsNotProvisioned(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: "x"}, true},
		{"wrapped invalid text", fmt.Errorf("push: %w", &pgconn.PgError{Code: "22P02"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, false},
		{"relation message", errors.New(`relation "user_theory_sessions" does not exist`), true},
		{"invalid input", errors.New("Invalid input syntax for type uuid"), true},
		{"timeout", context.DeadlineExceeded, false},
		{"network", errors.New("connection refused"), false},
	}
	for _, c := range cases {
		if got := remote.IsNotProvisioned(c.err); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestQuoteTable(t *testing.T) {
	if got := remote.QuoteTable("user_theory_sessions"); got != `"user_theory_sessions"` {
		t.Errorf("unexpected %s", got)
	}
	if got := remote.QuoteTable("sync.stats"); got != `"sync"."stats"` {
		t.Errorf("unexpected %s", got)
	}
	if got := remote.QuoteTable(`bad"name`); got != `"bad""name"` {
		t.Errorf("unexpected %s", got)
	}
}

func TestBuildPush(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := practicesession.New("s1", "u1", nil, practicesession.ModeMockExam, practicesession.DefaultSettings(), []string{"1", "2"}, at)
	s.ScoreCorrect = 1
	correct := true
	stats := map[string]questionbank.QuestionStats{
		"1": {QuestionID: "1", SeenCount: 2, CorrectCount: 2, LastIsCorrect: &correct},
	}

	p := remote.BuildPush(s, []string{"1", "2"}, stats, nil, at.Add(time.Hour), at.Add(time.Hour))

	if len(p.Stats) != 1 || p.Stats[0].QuestionID != "1" || p.Stats[0].SeenCount != 2 {
		t.Errorf("expected only touched questions with stats, got %+v", p.Stats)
	}
	if p.Session.SessionID != "s1" || p.Session.ScoreCorrect != 1 || p.Session.Payload.Mode != practicesession.ModeMockExam {
		t.Errorf("unexpected session row %+v", p.Session)
	}
	if p.Session.Payload.Answers == nil {
		t.Error("expected an empty answers array rather than null")
	}
}

func TestSchemaSQL(t *testing.T) {
	ddl := remote.SchemaSQL(`"a"`, `"b"`)
	if !strings.Contains(ddl, "UNIQUE (user_id, question_id)") || !strings.Contains(ddl, "UNIQUE (user_id, session_id)") {
		t.Error("expected natural-key constraints in the schema")
	}
}

// Runs against a real server when REMOTE_TEST_DATABASE_URL is set.
func TestPostgresPusher_Integration(t *testing.T) {
	dsn := os.Getenv("REMOTE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("REMOTE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	suffix := fmt.Sprint(time.Now().UnixNano())
	p, err := remote.OpenPostgres(ctx, dsn, remote.Options{
		StatsTable:    "it_stats_" + suffix,
		SessionsTable: "it_sessions_" + suffix,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	at := time.Now().UTC()
	s := practicesession.New("s1", "u1", nil, practicesession.ModeMarathon, practicesession.DefaultSettings(), []string{"1"}, at)
	push := remote.BuildPush(s, nil, nil, nil, at, at)

	if err := p.Push(ctx, push); !remote.IsNotProvisioned(err) {
		t.Fatalf("expected not-provisioned error before schema exists, got %v", err)
	}
	if err := p.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := p.Push(ctx, push); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
}
