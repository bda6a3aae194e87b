package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults, reported with SourceDefault.
const (
	DefaultDriver      = "sqlite"
	DefaultDBPath      = "~/.papertopics/topics.db"
	DefaultMaxAttempts = "5"
	DefaultBackoff     = "10ms"
	DefaultMembership  = "occurrence"
	DefaultCacheTTL    = "5m"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultLogSource   = "false"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath    string
	CLIDBPath     string
	CLIDriver     string
	CLIDSN        string
	CLIMembership string
	CLILogLevel   string
	CLILogFormat  string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBDriver ResolvedValue `json:"db_driver"`
	DBPath   ResolvedValue `json:"db_path"`
	DBDSN    ResolvedValue `json:"db_dsn"`

	MaxAttempts ResolvedValue `json:"max_attempts"`
	Backoff     ResolvedValue `json:"backoff"`
	Membership  ResolvedValue `json:"membership"`

	CacheTTL ResolvedValue `json:"cache_ttl"`

	LogLevel  ResolvedValue `json:"log_level"`
	LogFormat ResolvedValue `json:"log_format"`
	LogSource ResolvedValue `json:"log_add_source"`
}

type fileConfig struct {
	DB struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
	} `yaml:"db"`
	Aggregate struct {
		MaxAttempts string `yaml:"max_attempts"`
		Backoff     string `yaml:"backoff"`
		Membership  string `yaml:"membership"`
	} `yaml:"aggregate"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Logging struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		AddSource string `yaml:"add_source"`
	} `yaml:"logging"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".papertopics", "config.yaml")
}

// ResolveConfig layers built-in defaults, the config file, environment and
// CLI flags, later layers winning. A missing config file is not an error.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		if v := strings.TrimSpace(os.Getenv("PAPERTOPICS_CONFIG")); v != "" {
			path = expandUserPath(v)
		} else {
			path = DefaultConfigPath()
		}
	}

	out := ResolvedConfig{ConfigPath: path}
	applyDefault(&out.DBDriver, DefaultDriver)
	applyDefault(&out.DBPath, DefaultDBPath)
	applyDefault(&out.MaxAttempts, DefaultMaxAttempts)
	applyDefault(&out.Backoff, DefaultBackoff)
	applyDefault(&out.Membership, DefaultMembership)
	applyDefault(&out.CacheTTL, DefaultCacheTTL)
	applyDefault(&out.LogLevel, DefaultLogLevel)
	applyDefault(&out.LogFormat, DefaultLogFormat)
	applyDefault(&out.LogSource, DefaultLogSource)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBDriver, cfg.DB.Driver, SourceConfig, path)
		apply(&out.DBPath, cfg.DB.Path, SourceConfig, path)
		apply(&out.DBDSN, cfg.DB.DSN, SourceConfig, path)
		apply(&out.MaxAttempts, cfg.Aggregate.MaxAttempts, SourceConfig, path)
		apply(&out.Backoff, cfg.Aggregate.Backoff, SourceConfig, path)
		apply(&out.Membership, cfg.Aggregate.Membership, SourceConfig, path)
		apply(&out.CacheTTL, cfg.Cache.TTL, SourceConfig, path)
		apply(&out.LogLevel, cfg.Logging.Level, SourceConfig, path)
		apply(&out.LogFormat, cfg.Logging.Format, SourceConfig, path)
		apply(&out.LogSource, cfg.Logging.AddSource, SourceConfig, path)
	}

	applyEnv(&out.DBDriver, "PAPERTOPICS_DB_DRIVER")
	applyEnv(&out.DBPath, "PAPERTOPICS_DB")
	applyEnv(&out.DBPath, "PAPERTOPICS_DB_PATH")
	applyEnv(&out.DBDSN, "PAPERTOPICS_DB_DSN")
	applyEnv(&out.MaxAttempts, "PAPERTOPICS_MAX_ATTEMPTS")
	applyEnv(&out.Backoff, "PAPERTOPICS_BACKOFF")
	applyEnv(&out.Membership, "PAPERTOPICS_MEMBERSHIP")
	applyEnv(&out.CacheTTL, "PAPERTOPICS_CACHE_TTL")
	applyEnv(&out.LogLevel, "PAPERTOPICS_LOG_LEVEL")
	applyEnv(&out.LogFormat, "PAPERTOPICS_LOG_FORMAT")
	applyEnv(&out.LogSource, "PAPERTOPICS_LOG_ADD_SOURCE")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.DBDriver, opts.CLIDriver, SourceCLI, "--driver")
	apply(&out.DBDSN, opts.CLIDSN, SourceCLI, "--dsn")
	apply(&out.Membership, opts.CLIMembership, SourceCLI, "--membership")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.LogFormat, opts.CLILogFormat, SourceCLI, "--log-format")

	if out.DBPath.Value != "" && out.DBPath.Value != ":memory:" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

// MaxAttemptsValue parses aggregate.max_attempts.
func (r ResolvedConfig) MaxAttemptsValue() (int, error) {
	n, err := strconv.Atoi(r.MaxAttempts.Value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("max_attempts %q (from %s): must be a positive integer", r.MaxAttempts.Value, describe(r.MaxAttempts))
	}
	return n, nil
}

// BackoffValue parses aggregate.backoff. "0" retries immediately.
func (r ResolvedConfig) BackoffValue() (time.Duration, error) {
	return parseDuration("backoff", r.Backoff)
}

// CacheTTLValue parses cache.ttl. "0" disables the cache.
func (r ResolvedConfig) CacheTTLValue() (time.Duration, error) {
	return parseDuration("cache_ttl", r.CacheTTL)
}

// LogSourceValue parses logging.add_source. Unset means false.
func (r ResolvedConfig) LogSourceValue() (bool, error) {
	s := strings.TrimSpace(r.LogSource.Value)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("add_source %q (from %s): must be true or false", s, describe(r.LogSource))
	}
	return b, nil
}

// Redacted hides the DSN, which may carry credentials.
func (r ResolvedConfig) Redacted() ResolvedConfig {
	if r.DBDSN.Value != "" {
		r.DBDSN.Value = "(set)"
	}
	return r
}

func parseDuration(name string, v ResolvedValue) (time.Duration, error) {
	s := strings.TrimSpace(v.Value)
	if s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s %q (from %s): must be a non-negative duration like 10ms or 5m", name, s, describe(v))
	}
	return d, nil
}

func describe(v ResolvedValue) string {
	if v.From == "" {
		return string(v.Source)
	}
	return fmt.Sprintf("%s %s", v.Source, v.From)
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyDefault(dst *ResolvedValue, v string) {
	*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
