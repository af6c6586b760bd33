package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/changewatch/internal/config"
	"github.com/ppiankov/changewatch/internal/feeder"
	"github.com/ppiankov/changewatch/internal/filter"
	"github.com/ppiankov/changewatch/internal/lock"
	"github.com/ppiankov/changewatch/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, state and lock",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true
	dir := config.ExpandHome(configDir)

	// Config dir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", dir)
		ok = false
	} else {
		printCheck(true, "config directory %s", dir)
	}

	// Config file
	cfg, err := config.Load(dir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return errors.New("some checks failed")
	}
	printCheck(true, "config.yaml (%d feeds)", len(cfg.Feeds))

	// Feeds
	if !checkFeeds(cfg) {
		ok = false
	}

	// Sink
	if !checkSink(cfg) {
		ok = false
	}

	// Database
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(false, "database: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		infos, err := db.ListResources(ctx)
		if err != nil {
			printCheck(false, "database %s: %v", cfg.Storage.Path, err)
			ok = false
		} else {
			printCheck(true, "database %s (%d feeders with state)", cfg.Storage.Path, len(infos))
		}
	}

	// Lock
	lk, err := lock.Acquire(cfg.LockPath())
	if err != nil {
		printCheck(false, "lock %s: %v", cfg.LockPath(), err)
		ok = false
	} else {
		_ = lk.Release()
		printCheck(true, "lock %s", cfg.LockPath())
	}

	if !ok {
		return errors.New("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkFeeds(cfg *config.Config) bool {
	ok := true
	for _, f := range cfg.Feeds {
		if !feeder.Known(f.Feeder) {
			printCheck(false, "feed %s: unknown feeder %q (known: %v)", f.Name, f.Feeder, feeder.Variants())
			ok = false
			continue
		}
		if err := filter.NewBlacklist(f.Blacklist).Err(); err != nil {
			printCheck(false, "feed %s: %v", f.Name, err)
			ok = false
		}
	}
	if ok {
		printCheck(true, "feeds (%d known feeders in use)", countFeeders(cfg))
	}
	return ok
}

func checkSink(cfg *config.Config) bool {
	if cfg.Sink.Type == config.SinkStdout {
		printCheck(true, "sink stdout (%s)", cfg.Sink.Stdout.Format)
		return true
	}

	s := cfg.Sink.SMTP
	ok := true
	if s.UsernameEnv != "" && s.Username == "" {
		printCheck(false, "smtp username: $%s is not set", s.UsernameEnv)
		ok = false
	}
	if s.PasswordEnv != "" && s.Password == "" {
		printCheck(false, "smtp password: $%s is not set", s.PasswordEnv)
		ok = false
	}
	if ok {
		printCheck(true, "sink smtp %s:%d (tls %s, %d recipients)", s.Host, s.Port, s.TLS, len(s.To))
	}
	return ok
}

func countFeeders(cfg *config.Config) int {
	seen := make(map[string]bool)
	for _, f := range cfg.Feeds {
		seen[f.Feeder] = true
	}
	return len(seen)
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
