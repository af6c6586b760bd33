package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/changewatch/internal/config"
	"github.com/ppiankov/changewatch/internal/resource"
	"github.com/ppiankov/changewatch/internal/store"
)

var stateFormat string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset saved feeder state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show saved state per feeder",
	Args:  cobra.NoArgs,
	RunE:  stateListAction,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <feeder>",
	Short: "Show the tracked URLs of one feeder",
	Args:  cobra.ExactArgs(1),
	RunE:  stateShowAction,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <feeder>",
	Short: "Forget a feeder's state so everything is reported again",
	Args:  cobra.ExactArgs(1),
	RunE:  stateResetAction,
}

func init() {
	stateListCmd.Flags().StringVar(&stateFormat, "format", "terminal", "output format: terminal, json")
	stateCmd.AddCommand(stateListCmd, stateShowCmd, stateResetCmd)
	rootCmd.AddCommand(stateCmd)
}

type feederState struct {
	Feeder    string
	Size      int64
	UpdatedAt time.Time
	URLs      int
	Feeds     int
}

func openStateStore(cmd *cobra.Command) (*config.Config, *store.Store, context.Context, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return cfg, db, ctx, nil
}

func stateListAction(cmd *cobra.Command, _ []string) error {
	cfg, db, ctx, err := openStateStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	infos, err := db.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("list state: %w", err)
	}

	feedsPer := make(map[string]int)
	for _, f := range cfg.Feeds {
		feedsPer[f.Feeder]++
	}

	states := make([]feederState, 0, len(infos))
	for _, info := range infos {
		st := feederState{
			Feeder:    info.Feeder,
			Size:      info.Size,
			UpdatedAt: info.UpdatedAt,
			Feeds:     feedsPer[info.Feeder],
			URLs:      -1,
		}
		if res, _, err := db.LoadResource(ctx, info.Feeder); err == nil {
			st.URLs = res.Len()
		}
		states = append(states, st)
	}

	switch stateFormat {
	case "json":
		return printStateJSON(os.Stdout, states)
	case "terminal", "":
		printState(os.Stdout, states, time.Now())
		for _, name := range unsavedFeeders(feedsPer, states) {
			printInfo("%s: no saved state yet", name)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", stateFormat)
	}
}

// unsavedFeeders lists configured feeders without a stored row.
func unsavedFeeders(feedsPer map[string]int, states []feederState) []string {
	saved := make(map[string]bool, len(states))
	for _, st := range states {
		saved[st.Feeder] = true
	}
	var out []string
	for name := range feedsPer {
		if !saved[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func printState(w io.Writer, states []feederState, now time.Time) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No saved state. Run 'changewatch run' first.")
		return
	}

	fmt.Fprintf(w, "  %-12s  %5s  %4s  %9s  %s\n", "Feeder", "Feeds", "URLs", "Size", "Updated")
	for _, st := range states {
		urls := "?"
		if st.URLs >= 0 {
			urls = fmt.Sprintf("%d", st.URLs)
		}
		fmt.Fprintf(w, "  %-12s  %5d  %4s  %9s  %s\n",
			st.Feeder, st.Feeds, urls, humanize.Bytes(uint64(st.Size)), humanize.RelTime(st.UpdatedAt, now, "ago", "from now"))
	}
}

type jsonFeederState struct {
	Feeder    string `json:"feeder"`
	Feeds     int    `json:"feeds"`
	URLs      int    `json:"urls"`
	Size      int64  `json:"size_bytes"`
	UpdatedAt string `json:"updated_at"`
}

func printStateJSON(w io.Writer, states []feederState) error {
	out := make([]jsonFeederState, 0, len(states))
	for _, st := range states {
		out = append(out, jsonFeederState{
			Feeder:    st.Feeder,
			Feeds:     st.Feeds,
			URLs:      st.URLs,
			Size:      st.Size,
			UpdatedAt: st.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func stateShowAction(cmd *cobra.Command, args []string) error {
	_, db, ctx, err := openStateStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	res, found, err := db.LoadResource(ctx, args[0])
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("No saved state for %s.\n", args[0])
		return nil
	}
	printResource(os.Stdout, res)
	return nil
}

func printResource(w io.Writer, res *resource.Resource) {
	for _, url := range res.URLs() {
		snap, _ := res.Get(url)
		switch snap.Kind {
		case resource.KindSeen:
			fmt.Fprintf(w, "  %s  %d entries seen\n", url, snap.Seen.Len())
		default:
			fmt.Fprintf(w, "  %s  %s of text\n", url, humanize.Bytes(uint64(len(snap.Text))))
		}
	}
}

func stateResetAction(cmd *cobra.Command, args []string) error {
	cfg, db, ctx, err := openStateStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	lk, err := lockState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release() }()

	deleted, err := db.DeleteResource(ctx, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Printf("No saved state for %s.\n", args[0])
		return nil
	}
	fmt.Printf("Reset state of %s.\n", args[0])
	return nil
}
