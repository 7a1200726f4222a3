package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agora-dev/agora/internal/errors"
)

const (
	// ConfigFileName is the JSON configuration file.
	ConfigFileName = "agora.json"

	// YAMLConfigFileName is the YAML configuration file. It is read when no
	// agora.json exists.
	YAMLConfigFileName = "agora.yaml"

	// DefaultTimeout is the per-request timeout of the remote client.
	DefaultTimeout = "10s"

	// DefaultStaleTime is how long fetched query data stays fresh.
	DefaultStaleTime = "30s"

	// DefaultPageSize is the list page size.
	DefaultPageSize = 20

	// DefaultNamespace is the Prometheus namespace.
	DefaultNamespace = "agora"

	// DefaultMockAddr is the listen address of the development backend.
	DefaultMockAddr = "localhost:8787"
)

// Environment variables that override file values.
const (
	EnvBaseURL   = "AGORA_BASE_URL"
	EnvTimeout   = "AGORA_TIMEOUT"
	EnvRateLimit = "AGORA_RATE_LIMIT"
	EnvLogLevel  = "AGORA_LOG_LEVEL"
)

// Config is the client configuration.
type Config struct {
	// BaseURL is the backend's absolute base URL.
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the per-request timeout (e.g. "10s").
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	RateLimit  RateLimitConfig  `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	Pagination PaginationConfig `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	Query      QueryConfig      `json:"query,omitempty" yaml:"query,omitempty"`
	Metrics    MetricsConfig    `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Log        LogConfig        `json:"log,omitempty" yaml:"log,omitempty"`
	Mock       MockConfig       `json:"mock,omitempty" yaml:"mock,omitempty"`

	configPath string
}

// RateLimitConfig paces outgoing requests. RPS 0 disables pacing.
type RateLimitConfig struct {
	RPS   float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
	Burst int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// PaginationConfig holds the wire page bases. The likes endpoint counts
// pages from 1, the post lists from 0.
type PaginationConfig struct {
	LikesBase *int `json:"likesBase,omitempty" yaml:"likesBase,omitempty"`
	PostsBase *int `json:"postsBase,omitempty" yaml:"postsBase,omitempty"`
	PageSize  int  `json:"pageSize,omitempty" yaml:"pageSize,omitempty"`
}

// QueryConfig configures the query store.
type QueryConfig struct {
	// StaleTime is how long fetched data stays fresh (e.g. "30s").
	StaleTime string `json:"staleTime,omitempty" yaml:"staleTime,omitempty"`
}

// MetricsConfig configures Prometheus collectors.
type MetricsConfig struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// MockConfig configures the development backend.
type MockConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads configuration from dir. It prefers agora.json and falls back
// to agora.yaml.
func Load(dir string) (*Config, error) {
	for _, name := range []string{ConfigFileName, YAMLConfigFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("A182").
		WithDetail("No agora.json or agora.yaml found in " + dir).
		WithSuggestion("Create agora.json or set " + EnvBaseURL)
}

// LoadFile reads configuration from path. The format follows the file
// extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("A182").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("A181").Wrap(err)
	}

	cfg := &Config{}
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("A181").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check the file's syntax")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault loads dir's configuration, or returns the defaults when
// there is no file. Environment overrides are applied and the result is
// validated.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		cfg = New()
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isNotFound(err error) bool {
	var e *errors.Error
	return stderrors.As(err, &e) && e.Code == "A182"
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.KindConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("A181").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("A181").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// ApplyEnv overrides file values with AGORA_* variables read through
// getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := getenv(EnvTimeout); v != "" {
		c.Timeout = v
	}
	if v := getenv(EnvRateLimit); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.New("A183").
				WithDetail(EnvRateLimit + " must be a number of requests per second").
				Wrap(err)
		}
		c.RateLimit.RPS = rps
		if c.RateLimit.Burst == 0 {
			c.RateLimit.Burst = 1
		}
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout
	}

	// Rate limit
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}

	// Pagination
	if c.Pagination.LikesBase == nil {
		c.Pagination.LikesBase = intPtr(1)
	}
	if c.Pagination.PostsBase == nil {
		c.Pagination.PostsBase = intPtr(0)
	}
	if c.Pagination.PageSize == 0 {
		c.Pagination.PageSize = DefaultPageSize
	}

	if c.Query.StaleTime == "" {
		c.Query.StaleTime = DefaultStaleTime
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Mock.Addr == "" {
		c.Mock.Addr = DefaultMockAddr
	}
}

func intPtr(n int) *int { return &n }

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return invalid("baseUrl must be an absolute URL, got %q", c.BaseURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return invalid("baseUrl must use http or https, got %q", u.Scheme)
		}
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil || d <= 0 {
		return invalid("timeout must be a positive duration, got %q", c.Timeout)
	}
	if c.RateLimit.RPS < 0 {
		return invalid("rateLimit.rps must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return invalid("rateLimit.burst must be at least 1")
	}
	for name, base := range map[string]*int{
		"pagination.likesBase": c.Pagination.LikesBase,
		"pagination.postsBase": c.Pagination.PostsBase,
	} {
		if base != nil && *base != 0 && *base != 1 {
			return invalid("%s must be 0 or 1, got %d", name, *base)
		}
	}
	if c.Pagination.PageSize < 1 || c.Pagination.PageSize > 100 {
		return invalid("pagination.pageSize must be between 1 and 100")
	}
	if d, err := time.ParseDuration(c.Query.StaleTime); err != nil || d < 0 {
		return invalid("query.staleTime must be a duration, got %q", c.Query.StaleTime)
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		return invalid("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

func invalid(format string, args ...any) error {
	e := errors.New("A183")
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// RequireBaseURL returns an error when no backend is configured.
func (c *Config) RequireBaseURL() error {
	if c.BaseURL == "" {
		return errors.New("A183").
			WithDetail("No backend configured").
			WithSuggestion("Set baseUrl in agora.json or " + EnvBaseURL)
	}
	return nil
}

// TimeoutDuration returns Timeout parsed, or the default.
func (c *Config) TimeoutDuration() time.Duration {
	return parseOr(c.Timeout, DefaultTimeout)
}

// StaleTimeDuration returns Query.StaleTime parsed, or the default.
func (c *Config) StaleTimeDuration() time.Duration {
	return parseOr(c.Query.StaleTime, DefaultStaleTime)
}

func parseOr(s, fallback string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// LikesBase returns the wire page base of the likes endpoint.
func (c *Config) LikesBase() int {
	if c.Pagination.LikesBase == nil {
		return 1
	}
	return *c.Pagination.LikesBase
}

// PostsBase returns the wire page base of the post list endpoints.
func (c *Config) PostsBase() int {
	if c.Pagination.PostsBase == nil {
		return 0
	}
	return *c.Pagination.PostsBase
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	if l, ok := levels[strings.ToLower(c.Log.Level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// Exists reports whether dir holds a configuration file.
func Exists(dir string) bool {
	for _, name := range []string{ConfigFileName, YAMLConfigFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up from startDir to the first directory holding a
// configuration file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("A182").
				WithDetail("No agora.json found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}
