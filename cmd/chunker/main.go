package main

import (
	"fmt"
	"os"

	"chunker/internal/config"
	"chunker/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by every command of one invocation.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "chunker",
		Short: "Learn rules from recorded subgoal problem solving",
		Long: `chunker replays a recorded goal stack and rule firings, backtraces from
each subgoal result to the superstate conditions it depended on, and builds
a chunk (or justification) that produces the result directly.

Explanations of every learned rule can be archived and queried later.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "chunker.yaml", "Configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging for every category")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newExplainCmd(a))
	return root
}

// init loads the configuration and builds the logger.
func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.DebugMode = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Initialize(logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSON(),
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logging.Root()
	a.logger.Debug("configuration loaded", zap.String("path", a.configPath), zap.String("learning", string(cfg.Learning.Mode)))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
