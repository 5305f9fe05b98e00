// Package cli implements theoryctl, the operator tool for the local theory
// store: inspect banks and progress, flush the sync queue, mint dev tokens.
package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/infrastructure/config"
	"github.com/remaimber-it/drivetheory/internal/queue"
	"github.com/remaimber-it/drivetheory/internal/remote"
	"github.com/remaimber-it/drivetheory/internal/service"
	"github.com/remaimber-it/drivetheory/internal/store"
)

// Runtime is the opened local state a command works on.
type Runtime struct {
	Engine *service.Engine
	Banks  *questionbank.Registry
	Queue  *queue.Queue
	Syncer *service.SyncRunner
	Close  func() error
}

type Opener func(ctx context.Context) (*Runtime, error)

// DefaultOpener opens the SQLite store and, when configured, the remote
// database.
func DefaultOpener(cfg *config.Config, logger *slog.Logger) Opener {
	return func(ctx context.Context) (*Runtime, error) {
		db, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		banks := questionbank.NewRegistry(
			questionbank.FileSource{Dir: cfg.QuestionDataDir},
			questionbank.BuildOptions{ResolveImage: questionbank.URLImageResolver(cfg.ImageBaseURL)},
		)
		deps := service.LocalDeps(db, banks, logger, time.Now)

		closers := []func() error{db.Close}
		if cfg.RemoteEnabled() {
			pusher, err := remote.OpenPostgres(ctx, cfg.RemoteDatabaseURL, cfg.RemoteOptions(), logger)
			if err != nil {
				db.Close()
				return nil, err
			}
			deps.Remote = pusher
			closers = append([]func() error{pusher.Close}, closers...)
		}

		engine := service.NewEngine(deps)
		q := queue.New(db, queue.WithLogger(logger))
		return &Runtime{
			Engine: engine,
			Banks:  banks,
			Queue:  q,
			Syncer: service.NewSyncRunner(engine, q, cfg.SyncInterval, logger),
			Close: func() error {
				deps.Cache.Wait()
				var first error
				for _, c := range closers {
					if err := c(); err != nil && first == nil {
						first = err
					}
				}
				return first
			},
		}, nil
	}
}

// NewRootCommand builds theoryctl. open is called lazily by the commands
// that need local state.
func NewRootCommand(cfg *config.Config, open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "theoryctl",
		Short: "Inspect and maintain the local driving-theory store",
		Long: `theoryctl works on the same SQLite store and question data as the
server. It lists topics, prints a user's progress and mistake packs, flushes
queued session completions to the remote database and issues dev tokens.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("lang", string(cfg.DefaultLanguage), "question bank language")

	root.AddCommand(
		topicsCmd(open),
		overviewCmd(open),
		mistakesCmd(open),
		flushCmd(open),
		tokenCmd(cfg),
		remoteSchemaCmd(cfg),
	)
	return root
}

func language(cmd *cobra.Command) questionbank.Language {
	v, _ := cmd.Flags().GetString("lang")
	return questionbank.ParseLanguage(v, questionbank.DefaultLanguage)
}

// withRuntime opens the runtime for the duration of fn.
func withRuntime(cmd *cobra.Command, open Opener, fn func(rt *Runtime, out io.Writer) error) error {
	rt, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt, cmd.OutOrStdout())
}
