package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"chunker/internal/explain"

	"github.com/spf13/cobra"
)

func newExplainCmd(a *app) *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Query archived explanations of learned rules",
		Long: `Reads the explanation archive written by "chunker run". Every query is
scoped to one agent, named after its scenario.`,
	}
	cmd.PersistentFlags().StringVar(&agent, "agent", "", "Agent (scenario name) the chunk belongs to")

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived chunks and justifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withArchive(func(archive *explain.Archive) error {
				return listArchive(cmd.Context(), cmd.OutOrStdout(), archive, agent)
			})
		},
	}

	trace := &cobra.Command{
		Use:   "trace <chunk>",
		Short: "Print every backtrace step of a chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRecorder(cmd.Context(), agent, func(rec *explain.Recorder) error {
				return rec.Trace(cmd.OutOrStdout(), args[0])
			})
		},
	}

	why := &cobra.Command{
		Use:   "why <chunk> <condition>",
		Short: "Explain why the numbered condition was included",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("condition must be a number: %w", err)
			}
			return a.withRecorder(cmd.Context(), agent, func(rec *explain.Recorder) error {
				return rec.Explain(cmd.OutOrStdout(), args[0], n)
			})
		},
	}

	conds := &cobra.Command{
		Use:   "conds <chunk>",
		Short: "Print a chunk's numbered conditions with their grounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRecorder(cmd.Context(), agent, func(rec *explain.Recorder) error {
				return rec.CondList(cmd.OutOrStdout(), args[0])
			})
		},
	}

	cmd.AddCommand(list, trace, why, conds)
	return cmd
}

func (a *app) withArchive(fn func(*explain.Archive) error) error {
	if a.cfg.Explain.ArchivePath == "" {
		return fmt.Errorf("no explanation archive configured (set explain.archive_path or CHUNKER_ARCHIVE)")
	}
	archive, err := explain.OpenArchive(a.cfg.Explain.ArchivePath)
	if err != nil {
		return err
	}
	defer archive.Close()
	return fn(archive)
}

// withRecorder restores an agent's archived chunks into a fresh recorder.
func (a *app) withRecorder(ctx context.Context, agent string, fn func(*explain.Recorder) error) error {
	if agent == "" {
		return fmt.Errorf("--agent is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return a.withArchive(func(archive *explain.Archive) error {
		chunks, err := archive.LoadAll(ctx, agent)
		if err != nil {
			return err
		}
		rec := explain.NewRecorder(explain.WithAgent(agent))
		rec.Restore(chunks...)
		return fn(rec)
	})
}

func listArchive(ctx context.Context, w io.Writer, archive *explain.Archive, agent string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	entries, err := archive.List(ctx, agent)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No chunks/justifications built yet!")
		return nil
	}
	fmt.Fprintln(w, "List of all explained chunks/justifications:")
	for _, e := range entries {
		fmt.Fprintf(w, "  %-16s %-24s %s\n", e.Agent, e.Name, e.Created.Format("2006-01-02 15:04:05"))
	}
	return nil
}
