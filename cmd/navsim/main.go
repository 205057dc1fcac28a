package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/scenario"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath string
	logLevel   string
	ticks      int
	watch      bool
	out        string

	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "navsim",
		Short: "Run autopilot scenarios against the motion planner",
		Long: `navsim builds a scenario world from YAML, gives every agent its own
pathfinder and steps the world at a fixed tick until the agents arrive or
the tick budget runs out.

A scenario argument is a file path, or the name of a bundled scenario.`,
		SilenceUsage: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file overlaid on the defaults")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario and print the result as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, opts, args[0])
		},
	}
	runCmd.Flags().IntVar(&opts.ticks, "ticks", 0, "tick budget (default: the scenario's)")
	runCmd.Flags().BoolVar(&opts.watch, "watch", false, "reload planner settings when the config file changes")
	runCmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the result to a file instead of stdout")

	validateCmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Check scenarios and their scripts without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateScenarios(cmd, opts, args)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the bundled scenarios",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range scenario.Embedded() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}

	root.AddCommand(runCmd, validateCmd, configCmd, listCmd)
	return root
}

func loadConfig(opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, cfg.Validate()
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("navsim: log level: %w", err)
		}
		zc.Level = level
	}
	// results go to stdout
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// loadScenario prefers a file on disk and falls back to a bundled scenario.
func loadScenario(arg string) (*scenario.Scenario, error) {
	if _, err := os.Stat(arg); err == nil {
		return scenario.Load(arg)
	}
	sc, err := scenario.LoadEmbedded(arg)
	if err != nil {
		return nil, fmt.Errorf("navsim: %s is neither a file nor a bundled scenario", arg)
	}
	return sc, nil
}

func validateScenarios(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	var errs []error
	for _, arg := range args {
		sc, err := loadScenario(arg)
		if err == nil {
			err = sc.Validate(cfg)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: invalid\n%v\n", arg, err)
			errs = append(errs, fmt.Errorf("%s: %w", arg, err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", arg)
	}
	return errors.Join(errs...)
}

func runScenario(cmd *cobra.Command, opts *options, arg string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	opts.logger = log

	sc, err := loadScenario(arg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	sim, err := scenario.New(ctx, sc, cfg, log)
	if err != nil {
		return err
	}

	var res scenario.Result
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		var err error
		res, err = sim.Run(gctx, opts.ticks)
		return err
	})
	if opts.watch {
		if opts.configPath == "" {
			log.Warn("--watch needs --config; settings will not reload")
		} else {
			g.Go(func() error {
				return watchConfig(gctx, done, opts.configPath, sc, sim, log)
			})
		}
	}
	runErr := g.Wait()
	if err := sim.Close(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if runErr != nil && len(res.Agents) == 0 {
		return runErr
	}

	data, err := res.Marshal()
	if err != nil {
		return errors.Join(runErr, err)
	}
	if opts.out != "" {
		err = os.WriteFile(opts.out, data, 0o644)
	} else {
		_, err = cmd.OutOrStdout().Write(data)
	}
	return errors.Join(runErr, err)
}

// watchConfig pushes new planner settings into the running simulation each
// time the config file is saved. Invalid edits are logged and ignored.
func watchConfig(ctx context.Context, done <-chan struct{}, path string, sc *scenario.Scenario, sim *scenario.Simulator, log *zap.Logger) error {
	r, err := config.Watch(path)
	if err != nil {
		return fmt.Errorf("navsim: %w", err)
	}
	defer r.Close()
	log.Info("watching config", zap.String("path", r.Path()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case err, ok := <-r.Errors:
			if !ok {
				return nil
			}
			log.Warn("config reload rejected", zap.Error(err))
		case base, ok := <-r.Updates:
			if !ok {
				return nil
			}
			cfg, err := sc.Effective(base)
			if err != nil {
				log.Warn("config reload rejected", zap.Error(err))
				continue
			}
			sim.SetSettings(cfg.Planner)
			log.Info("planner settings reloaded", zap.String("path", r.Path()))
		}
	}
}
