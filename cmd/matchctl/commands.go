package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/people-match/internal/apperror"
	sqliteRepo "github.com/sakif/people-match/internal/repository/sqlite"
	"github.com/sakif/people-match/internal/service"
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

type rootOptions struct {
	dbPath string
	policy string
	json   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "matchctl",
		Short:         "Query and edit a people-match database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "data/people_match.db", "path to the SQLite database")
	root.PersistentFlags().StringVar(&opts.policy, "policy", string(service.OneDirectional), "match policy: one_directional or mutual")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of text")

	root.AddCommand(
		newQuestionsCmd(opts),
		newNextCmd(opts),
		newAnswerCmd(opts),
		newSearchCmd(opts),
		newMatchCmd(opts),
	)
	return root
}

// withEngine opens the database, restores an engine from it, and runs fn.
func withEngine(ctx context.Context, opts *rootOptions, fn func(e *service.Engine) error) error {
	policy, err := service.ParseMatchPolicy(opts.policy)
	if err != nil {
		return err
	}

	db, err := sqliteRepo.New(opts.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := db.LoadAll(ctx)
	if err != nil {
		return err
	}

	e := service.NewEngine(service.Options{
		Journal:     db,
		MatchPolicy: policy,
		Logger:      slog.New(slog.DiscardHandler),
	})
	if err := e.Restore(ctx, snap); err != nil {
		return err
	}
	return fn(e)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// QUESTIONS
// =============================================================================

func newQuestionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "List the question pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *service.Engine) error {
				questions := e.Pool.All()
				if opts.json {
					return printJSON(cmd.OutOrStdout(), questions)
				}
				for _, q := range questions {
					fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", q.ID, q.Text)
				}
				return nil
			})
		},
	}
}

// =============================================================================
// NEXT / ANSWER
// =============================================================================

func newNextCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next <user>",
		Short: "Show the next question for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *service.Engine) error {
				u, err := e.Registry.Get(args[0])
				if err != nil {
					return err
				}
				q, ok := e.Questions.NextQuestionFor(u)
				if opts.json {
					if !ok {
						return printJSON(cmd.OutOrStdout(), map[string]any{"question": nil})
					}
					return printJSON(cmd.OutOrStdout(), map[string]any{"question": q})
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "No questions left.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d  %s\n", q.ID, q.Text)
				return nil
			})
		},
	}
}

func newAnswerCmd(opts *rootOptions) *cobra.Command {
	var skip bool

	cmd := &cobra.Command{
		Use:   "answer <user> <question> [yes|no]",
		Short: "Record (or with --skip, skip) an answer",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if skip != (len(args) == 2) {
				return fmt.Errorf("give either an answer or --skip")
			}
			return withEngine(cmd.Context(), opts, func(e *service.Engine) error {
				u, err := e.Registry.Get(args[0])
				if err != nil {
					return err
				}
				if skip {
					if err := e.Questions.Skip(cmd.Context(), u, args[1]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s skipped %q\n", u.Name, args[1])
					return nil
				}
				answer, err := parseYesNo(args[2])
				if err != nil {
					return err
				}
				if err := e.Questions.RecordAnswer(cmd.Context(), u, args[1], answer); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s answered %q: %s\n", u.Name, args[1], yesNo(answer))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&skip, "skip", false, "skip the question instead of answering")
	return cmd
}

// =============================================================================
// SEARCH / MATCH
// =============================================================================

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var filters []string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List users whose answers equal every filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseFilters(filters)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), opts, func(e *service.Engine) error {
				names := e.Matches.Search(parsed)
				if opts.json {
					return printJSON(cmd.OutOrStdout(), map[string]any{"users": names})
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, `filter as "question=yes|no" (repeatable)`)
	return cmd
}

func newMatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match <user>",
		Short: "Show the best match for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *service.Engine) error {
				m, ok, err := e.Matches.BestMatch(args[0])
				if err != nil {
					return err
				}
				if opts.json {
					if !ok {
						return printJSON(cmd.OutOrStdout(), map[string]any{"match": nil, "score": nil})
					}
					return printJSON(cmd.OutOrStdout(), m)
				}
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "No match for %s.\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (score %.2f)\n", m.Name, m.Score)
				return nil
			})
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// parseFilters splits each "question=answer" on its last '=' so questions
// may contain '=' themselves.
func parseFilters(raw []string) (map[string]bool, error) {
	out := make(map[string]bool, len(raw))
	for _, f := range raw {
		i := strings.LastIndex(f, "=")
		if i <= 0 {
			return nil, apperror.ValidationFailed("filter", fmt.Sprintf("filter %q must look like question=yes", f))
		}
		answer, err := parseYesNo(f[i+1:])
		if err != nil {
			return nil, err
		}
		out[strings.TrimSpace(f[:i])] = answer
	}
	return out, nil
}

func parseYesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true":
		return true, nil
	case "no", "n", "false":
		return false, nil
	}
	return false, apperror.ValidationFailed("answer", fmt.Sprintf("%q is not yes or no", s))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
