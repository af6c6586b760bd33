package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/changewatch/internal/config"
	"github.com/ppiankov/changewatch/internal/feeder"
	"github.com/ppiankov/changewatch/internal/fetch"
	"github.com/ppiankov/changewatch/internal/lock"
	"github.com/ppiankov/changewatch/internal/logger"
	"github.com/ppiankov/changewatch/internal/runner"
	"github.com/ppiankov/changewatch/internal/sink"
	"github.com/ppiankov/changewatch/internal/source"
	"github.com/ppiankov/changewatch/internal/store"
)

var (
	runDisable []string
	runEnable  []string
	runExclude []string
	runInclude []string
	runDryRun  bool
	runStdout  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check every configured feed once and send what changed",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runDisable, "disable", "d", nil, "disable a feeder by name (repeatable)")
	runCmd.Flags().StringArrayVarP(&runEnable, "enable", "e", nil, "only run the named feeders (repeatable)")
	runCmd.Flags().StringArrayVarP(&runExclude, "exclude", "x", nil, "exclude a feed by name (repeatable)")
	runCmd.Flags().StringArrayVarP(&runInclude, "include", "i", nil, "only include the named feeds (repeatable)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print changes to stdout and do not save state")
	runCmd.Flags().BoolVar(&runStdout, "stdout", false, "print changes to stdout instead of mailing them")
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(logger.String("run_id", uuid.NewString()))

	lk, err := lockState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	out, err := buildSink(cfg, cmd.OutOrStdout(), runStdout || runDryRun)
	if err != nil {
		return err
	}

	deps, err := buildDeps(cfg)
	if err != nil {
		return err
	}

	r, err := runner.New(db, out, runner.FeederFactory(deps), log, runner.Options{
		Disable: runDisable,
		Enable:  runEnable,
		Exclude: runExclude,
		Include: runInclude,
		DryRun:  runDryRun,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := r.Run(ctx, cfg.Feeds)
	log.Info("run finished",
		logger.Int("feeders", res.Feeders),
		logger.Int("events", res.Events),
		logger.Int("sent", res.Sent),
		logger.Int("filtered", res.Filtered),
		logger.Int("dropped", res.Dropped),
		logger.Int("errors", res.Errors),
		logger.Bool("degraded", res.Degraded),
		logger.Bool("dry_run", runDryRun),
		logger.Duration("took", res.Duration),
	)
	return err
}

// buildSink picks the writer sink when stdout output was asked for on the
// command line or in config, and the SMTP sink otherwise.
func buildSink(cfg *config.Config, stdout io.Writer, forceStdout bool) (sink.Sink, error) {
	if forceStdout || cfg.Sink.Type == config.SinkStdout {
		w, err := sink.NewWriter(stdout, cfg.Sink.Stdout.Format)
		if err != nil {
			return nil, fmt.Errorf("create stdout sink: %w", err)
		}
		return w, nil
	}

	s := cfg.Sink.SMTP
	smtp, err := sink.NewSMTP(sink.SMTPConfig{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		From:     s.From,
		To:       s.To,
		TLS:      s.TLS,
		Timeout:  s.Timeout.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("create smtp sink: %w", err)
	}
	return smtp, nil
}

func buildDeps(cfg *config.Config) (feeder.Deps, error) {
	opts := []fetch.Option{fetch.WithTimeout(cfg.Fetch.Timeout.Duration)}
	if cfg.Fetch.UserAgent != "" {
		opts = append(opts, fetch.WithUserAgent(cfg.Fetch.UserAgent))
	}
	client := fetch.New(opts...)

	parser, err := source.NewParser(client)
	if err != nil {
		return feeder.Deps{}, fmt.Errorf("create feed parser: %w", err)
	}
	return feeder.Deps{Downloader: client, Parser: parser}, nil
}

// lockState takes the run lock so state is never changed under a running pass.
func lockState(cfg *config.Config) (*lock.Lock, error) {
	lk, err := lock.Acquire(cfg.LockPath())
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return lk, nil
}
