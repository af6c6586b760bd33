package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/changewatch/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	dir := config.ExpandHome(configDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(dir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if !wrote {
		fmt.Printf("Config directory %s already initialized.\n", dir)
	} else {
		fmt.Printf("Initialized %s. Edit %s, then run 'changewatch doctor'.\n", dir, config.DefaultConfigFile)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# changewatch configuration

# storage:
#   path: ~/.changewatch/state.db

log:
  level: info
  development: false

fetch:
  timeout: 60s

sink:
  type: smtp
  smtp:
    host: smtp.example.com
    port: 587
    username_env: CHANGEWATCH_SMTP_USER
    password_env: CHANGEWATCH_SMTP_PASSWORD
    from: watcher@example.com
    to: me@example.com
    tls: opportunistic
  stdout:
    format: text

feeds:
  # One email per new entry.
  - name: lwn
    feeder: rss
    url: https://lwn.net/headlines/rss
    blacklist:
      - "(?i)sponsored"

  # One email per run with every new entry.
  - name: go-blog
    feeder: rsssummary
    url: https://go.dev/blog/feed.atom
    description: false
    strip_images: true
    strip_empty_links: true
    dedupe_brs: true

  # Unified diff of the visible text of a page.
  - name: go-releases
    feeder: htmldiff
    url: https://go.dev/doc/devel/release
    ignore_white_space: true

  # Unified diff of a plain-text document.
  - name: rfc-index
    feeder: diff
    url: https://www.rfc-editor.org/rfc-index.txt
`
