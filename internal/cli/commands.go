package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/remaimber-it/drivetheory/internal/auth"
	"github.com/remaimber-it/drivetheory/internal/infrastructure/config"
	"github.com/remaimber-it/drivetheory/internal/queue"
	"github.com/remaimber-it/drivetheory/internal/remote"
)

var errUserRequired = errors.New("--user is required")

func topicsCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List the topics of the question bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(rt *Runtime, out io.Writer) error {
				bank, err := rt.Banks.Bank(cmd.Context(), language(cmd))
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSLUG\tQUESTIONS\tTITLE")
				for _, t := range bank.Topics() {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.ID, t.Slug, len(t.QuestionIDs), t.Title)
				}
				return w.Flush()
			})
		},
	}
}

func overviewCmd(open Opener) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Show a user's progress per topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errUserRequired
			}
			return withRuntime(cmd, open, func(rt *Runtime, out io.Writer) error {
				ov, err := rt.Engine.LoadOverview(cmd.Context(), user, language(cmd))
				if err != nil {
					return err
				}
				s := ov.Summary
				fmt.Fprintf(out, "Topics: %d  Questions: %d  Seen: %d  Progress: %d%%\n\n",
					s.TotalTopics, s.TotalQuestions, s.SeenQuestions, s.ProgressPercent)

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TOPIC\tSEEN\tCORRECT\tINCORRECT\tPROGRESS")
				for _, t := range ov.Topics {
					fmt.Fprintf(w, "%s\t%d/%d\t%d\t%d\t%d%%\n",
						t.Slug, t.SeenQuestions, t.TotalQuestions, t.CorrectCount, t.IncorrectCount, t.ProgressPercent)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	return cmd
}

func mistakesCmd(open Opener) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "mistakes",
		Short: "Show a user's mistake packs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errUserRequired
			}
			return withRuntime(cmd, open, func(rt *Runtime, out io.Writer) error {
				packs, err := rt.Engine.LoadMistakePacks(cmd.Context(), user, language(cmd))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrong questions: %d\n", packs.TotalWrongQuestions)
				for _, p := range packs.Packs {
					fmt.Fprintf(out, "%s (%d): %v\n", p.ID, p.TotalQuestions, p.QuestionIDs)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	return cmd
}

func flushCmd(open Opener) *cobra.Command {
	var (
		user string
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Push queued session completions to the remote database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" && !all {
				return errors.New("one of --user or --all is required")
			}
			return withRuntime(cmd, open, func(rt *Runtime, out io.Writer) error {
				results, err := flush(cmd.Context(), rt, user, all)
				users := make([]string, 0, len(results))
				for u := range results {
					users = append(users, u)
				}
				slices.Sort(users)
				for _, u := range users {
					fmt.Fprintf(out, "%s: synced %d, pending %d\n", u, results[u].Synced, results[u].Pending)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().BoolVar(&all, "all", false, "flush every user with queued items")
	cmd.MarkFlagsMutuallyExclusive("user", "all")
	return cmd
}

func flush(ctx context.Context, rt *Runtime, user string, all bool) (map[string]queue.FlushResult, error) {
	if all {
		return rt.Syncer.FlushAll(ctx)
	}
	res, err := rt.Syncer.FlushUser(ctx, user)
	if err != nil {
		return nil, err
	}
	return map[string]queue.FlushResult{user: res}, nil
}

func tokenCmd(cfg *config.Config) *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errUserRequired
			}
			if cfg.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is not set")
			}
			tok, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer).Issue(user, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func remoteSchemaCmd(cfg *config.Config) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "remote-schema",
		Short: "Print (or apply) the remote tables' DDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !apply {
				fmt.Fprint(cmd.OutOrStdout(), remote.SchemaSQL(
					remote.QuoteTable(cfg.RemoteStatsTable),
					remote.QuoteTable(cfg.RemoteSessionsTable),
				))
				return nil
			}
			if cfg.RemoteDatabaseURL == "" {
				return errors.New("REMOTE_DATABASE_URL is not set")
			}
			pusher, err := remote.OpenPostgres(cmd.Context(), cfg.RemoteDatabaseURL, cfg.RemoteOptions(), nil)
			if err != nil {
				return err
			}
			defer pusher.Close()
			if err := pusher.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "remote schema is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "create the tables instead of printing the DDL")
	return cmd
}
