package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"chunker/internal/chunk"
	"chunker/internal/explain"
	"chunker/internal/scenario"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type runOptions struct {
	check    bool
	showWhy  bool
	parallel int
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Chunk the seed firings of each scenario",
		Long: `Loads every scenario into its own agent and chunks its seed firings in one
decision cycle. Scenarios run in parallel; each agent is chunked by a
single goroutine.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.check, "check", false, "Fail when outcomes differ from each scenario's expect section")
	cmd.Flags().BoolVar(&opts.showWhy, "why", false, "Print which firing tested each ground of the learned rules")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 0, "Scenarios to run at once (default from config)")
	return cmd
}

// agentRun is the outcome of one scenario.
type agentRun struct {
	agent   *scenario.Agent
	reports []chunk.BuildReport
	facts   *explain.Facts
}

func (a *app) run(ctx context.Context, w io.Writer, paths []string, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var archive *explain.Archive
	if a.cfg.Explain.Enabled && a.cfg.Explain.ArchivePath != "" {
		var err error
		if archive, err = explain.OpenArchive(a.cfg.Explain.ArchivePath); err != nil {
			return err
		}
		defer archive.Close()
	}

	parallel := opts.parallel
	if parallel < 1 {
		parallel = a.cfg.Scenario.Parallelism
	}

	runs := make([]*agentRun, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := a.runScenario(path, archive)
			if err != nil {
				return err
			}
			runs[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed []string
	for _, r := range runs {
		a.print(w, r, opts)
		if opts.check {
			if err := r.agent.Check(r.reports); err != nil {
				failed = append(failed, err.Error())
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("unexpected outcomes:\n  %s", strings.Join(failed, "\n  "))
	}
	return nil
}

func (a *app) runScenario(path string, archive *explain.Archive) (*agentRun, error) {
	s, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}

	r := &agentRun{}
	var opts []chunk.Option
	if a.cfg.Explain.Enabled {
		recOpts := []explain.Option{explain.WithAgent(s.Name)}
		if archive != nil {
			recOpts = append(recOpts, explain.WithArchive(archive))
		}
		if a.cfg.Explain.Facts {
			if r.facts, err = explain.NewFacts(); err != nil {
				return nil, err
			}
			recOpts = append(recOpts, explain.WithFacts(r.facts))
		}
		opts = append(opts, chunk.WithRecorder(explain.NewRecorder(recOpts...)))
	}

	if r.agent, err = s.Build(a.cfg.Learning, opts...); err != nil {
		return nil, err
	}
	r.reports = r.agent.Run()
	a.logger.Info("scenario finished",
		zap.String("scenario", s.Name),
		zap.String("agent", r.agent.ID.String()),
		zap.Int("builds", len(r.reports)),
		zap.Uint64("chunks", r.agent.Learner.ChunkCount()),
		zap.Uint64("justifications", r.agent.Learner.JustificationCount()))
	return r, nil
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

func outcomeColor(o chunk.Outcome) *color.Color {
	switch o {
	case chunk.Accepted:
		return okColor
	case chunk.Duplicate, chunk.RefractedMismatch, chunk.MaxChunks:
		return warnColor
	case chunk.NoResults:
		return dimColor
	}
	return failColor
}

func (a *app) print(w io.Writer, r *agentRun, opts *runOptions) {
	fmt.Fprintf(w, "%s\n", color.New(color.Bold).Sprint(r.agent.Name))
	for _, rep := range r.reports {
		fmt.Fprintf(w, "  %s: %s", rep.Source, outcomeColor(rep.Outcome).Sprint(rep.Outcome))
		if rep.Name != "" {
			fmt.Fprintf(w, " (%s)", rep.Name)
		}
		if rep.Err != nil && rep.Outcome != chunk.Accepted {
			fmt.Fprintf(w, ": %v", rep.Err)
		}
		fmt.Fprintln(w)

		if rep.Outcome != chunk.Accepted {
			continue
		}
		if a.cfg.Scenario.PrintRules && rep.Production != nil {
			fmt.Fprintf(w, "%s\n", indent(rep.Production.String(), "    "))
		}
		if opts.showWhy && r.facts != nil {
			why, err := r.facts.WhyIncluded(rep.Name)
			if err != nil {
				fmt.Fprintf(w, "    %s\n", failColor.Sprint(err))
				continue
			}
			for _, inc := range why {
				fmt.Fprintf(w, "    %s <- %s\n", inc.Cond, inc.Rule)
			}
		}
	}
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
