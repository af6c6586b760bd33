package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/changewatch/internal/logger"
)

const (
	DefaultConfigDir    = ".changewatch"
	DefaultConfigFile   = "config.yaml"
	DefaultStorageFile  = "state.db"
	DefaultLockFile     = "changewatch.lock"
	DefaultSinkType     = SinkSMTP
	DefaultSMTPPort     = 587
	DefaultSMTPTimeout  = 60 * time.Second
	DefaultSMTPTLS      = "opportunistic"
	DefaultFormat       = "text"
	DefaultFetchTimeout = 60 * time.Second
)

// Sink types.
const (
	SinkSMTP   = "smtp"
	SinkStdout = "stdout"
)

// ErrNoFeeds is returned when the config lists no feeds at all.
var ErrNoFeeds = errors.New("feeds: at least one feed must be configured")

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Recipients accepts either a single address or a list of addresses.
type Recipients []string

func (r *Recipients) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*r = Recipients{s}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*r = list
	return nil
}

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Sink    SinkConfig    `yaml:"sink"`
	Feeds   []FeedConfig  `yaml:"feeds"`

	// Dir is the directory config.yaml was read from.
	Dir string `yaml:"-"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type FetchConfig struct {
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

type SinkConfig struct {
	Type   string       `yaml:"type"`
	SMTP   SMTPConfig   `yaml:"smtp"`
	Stdout StdoutConfig `yaml:"stdout"`
}

type SMTPConfig struct {
	Host        string     `yaml:"host"`
	Port        int        `yaml:"port"`
	UsernameEnv string     `yaml:"username_env"`
	PasswordEnv string     `yaml:"password_env"`
	From        string     `yaml:"from"`
	To          Recipients `yaml:"to"`
	TLS         string     `yaml:"tls"`
	Timeout     Duration   `yaml:"timeout"`

	// Resolved from env vars at load time.
	Username string `yaml:"-"`
	Password string `yaml:"-"`
}

type StdoutConfig struct {
	Format string `yaml:"format"`
}

// FeedConfig is one watched source.
type FeedConfig struct {
	Name             string   `yaml:"name"`
	Feeder           string   `yaml:"feeder"`
	URL              string   `yaml:"url"`
	IgnoreWhiteSpace *bool    `yaml:"ignore_white_space"`
	Description      bool     `yaml:"description"`
	StripImages      bool     `yaml:"strip_images"`
	StripEmptyLinks  bool     `yaml:"strip_empty_links"`
	DedupeBRs        bool     `yaml:"dedupe_brs"`
	Blacklist        []string `yaml:"blacklist"`
}

// IgnoresWhiteSpace reports the ignore_white_space option, which defaults to on.
func (f FeedConfig) IgnoresWhiteSpace() bool {
	return f.IgnoreWhiteSpace == nil || *f.IgnoreWhiteSpace
}

// DefaultDir returns ~/.changewatch, or .changewatch if the home directory
// cannot be determined.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigDir
	}
	return filepath.Join(home, DefaultConfigDir)
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}
	dir = ExpandHome(dir)

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Dir = dir

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LockPath is the advisory lock file, kept next to the state database.
func (c *Config) LockPath() string {
	return filepath.Join(filepath.Dir(c.Storage.Path), DefaultLockFile)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(cfg.Dir, DefaultStorageFile)
	}
	cfg.Storage.Path = ExpandHome(cfg.Storage.Path)
	if cfg.Log.Level == "" {
		cfg.Log.Level = logger.DefaultLevel
	}
	if cfg.Fetch.Timeout.Duration == 0 {
		cfg.Fetch.Timeout.Duration = DefaultFetchTimeout
	}
	if cfg.Sink.Type == "" {
		cfg.Sink.Type = DefaultSinkType
	}
	if cfg.Sink.SMTP.Port == 0 {
		cfg.Sink.SMTP.Port = DefaultSMTPPort
	}
	if cfg.Sink.SMTP.TLS == "" {
		cfg.Sink.SMTP.TLS = DefaultSMTPTLS
	}
	if cfg.Sink.SMTP.Timeout.Duration == 0 {
		cfg.Sink.SMTP.Timeout.Duration = DefaultSMTPTimeout
	}
	if cfg.Sink.Stdout.Format == "" {
		cfg.Sink.Stdout.Format = DefaultFormat
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Sink.SMTP.UsernameEnv != "" {
		cfg.Sink.SMTP.Username = os.Getenv(cfg.Sink.SMTP.UsernameEnv)
	}
	if cfg.Sink.SMTP.PasswordEnv != "" {
		cfg.Sink.SMTP.Password = os.Getenv(cfg.Sink.SMTP.PasswordEnv)
	}
}

// validate checks structure only. Feeder selectors are not checked here: a
// selector nobody implements is a warning at run time, not a config error.
func validate(cfg *Config) error {
	if len(cfg.Feeds) == 0 {
		return ErrNoFeeds
	}

	seen := make(map[string]bool, len(cfg.Feeds))
	for i, f := range cfg.Feeds {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("feeds[%d]: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("feeds[%d]: duplicate name %q", i, f.Name)
		}
		seen[f.Name] = true
		if strings.TrimSpace(f.Feeder) == "" {
			return fmt.Errorf("feeds.%s: feeder is required", f.Name)
		}
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("feeds.%s: url is required", f.Name)
		}
	}

	if !logger.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}

	switch cfg.Sink.Type {
	case SinkSMTP:
		if err := validateSMTP(cfg.Sink.SMTP); err != nil {
			return err
		}
	case SinkStdout:
		// valid
	default:
		return fmt.Errorf("sink.type: unknown type %q (want smtp or stdout)", cfg.Sink.Type)
	}

	switch cfg.Sink.Stdout.Format {
	case "text", "json":
		// valid
	default:
		return fmt.Errorf("sink.stdout.format: unknown format %q (want text or json)", cfg.Sink.Stdout.Format)
	}

	return nil
}

func validateSMTP(s SMTPConfig) error {
	if strings.TrimSpace(s.Host) == "" {
		return errors.New("sink.smtp.host: required when sink.type is smtp")
	}
	if strings.TrimSpace(s.From) == "" {
		return errors.New("sink.smtp.from: required when sink.type is smtp")
	}
	if len(s.To) == 0 {
		return errors.New("sink.smtp.to: at least one recipient is required")
	}
	switch s.TLS {
	case "mandatory", "opportunistic", "none":
		// valid
	default:
		return fmt.Errorf("sink.smtp.tls: unknown policy %q (want mandatory, opportunistic or none)", s.TLS)
	}
	return nil
}
