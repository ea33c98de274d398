package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the search/answer service
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	Search       SearchConfig       `mapstructure:"search"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
}

// MaxSearchResults is the hard cap on results used per query.
const MaxSearchResults = 5

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider   string        `mapstructure:"provider"` // serper, brave
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Normalize clamps the result count to MaxSearchResults.
func (s SearchConfig) Normalize() SearchConfig {
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	if s.Provider == "" {
		s.Provider = "serper"
	}
	s.APIKey = strings.TrimSpace(s.APIKey)
	if s.MaxResults <= 0 || s.MaxResults > MaxSearchResults {
		s.MaxResults = MaxSearchResults
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	return s
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "serper", "brave":
	default:
		return &ConfigurationError{Key: "search.provider", Msg: fmt.Sprintf("unsupported provider %q", s.Provider)}
	}
	if s.APIKey == "" {
		return MissingKey("search.api_key", "search provider API key is not configured")
	}
	return nil
}

// FetchConfig controls how result pages are retrieved and reduced to text
type FetchConfig struct {
	Fetcher      string        `mapstructure:"fetcher"`   // http, chromedp
	Extractor    string        `mapstructure:"extractor"` // elements, readability
	Parallelism  int           `mapstructure:"parallelism"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxChars     int           `mapstructure:"max_chars"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	UserAgent    string        `mapstructure:"user_agent"`

	Policy CrawlPolicyConfig `mapstructure:"policy"`
}

func (f FetchConfig) Normalize() FetchConfig {
	f.Fetcher = strings.ToLower(strings.TrimSpace(f.Fetcher))
	if f.Fetcher == "" {
		f.Fetcher = "http"
	}
	f.Extractor = strings.ToLower(strings.TrimSpace(f.Extractor))
	if f.Extractor == "" {
		f.Extractor = "elements"
	}
	if f.Parallelism <= 0 {
		f.Parallelism = MaxSearchResults
	}
	if f.Timeout <= 0 {
		f.Timeout = 15 * time.Second
	}
	if f.MaxChars <= 0 {
		f.MaxChars = 20000
	}
	if f.MaxBodyBytes <= 0 {
		f.MaxBodyBytes = 5 << 20
	}
	if strings.TrimSpace(f.UserAgent) == "" {
		f.UserAgent = "searchrag/1.0 (+https://github.com/mohammad-safakhou/searchrag)"
	}
	f.Policy = f.Policy.Normalize()
	return f
}

func (f FetchConfig) Validate() error {
	switch f.Fetcher {
	case "http", "chromedp":
	default:
		return &ConfigurationError{Key: "fetch.fetcher", Msg: fmt.Sprintf("unsupported fetcher %q", f.Fetcher)}
	}
	switch f.Extractor {
	case "elements", "readability":
	default:
		return &ConfigurationError{Key: "fetch.extractor", Msg: fmt.Sprintf("unsupported extractor %q", f.Extractor)}
	}
	return f.Policy.Validate()
}

// LLMConfig contains the answer model settings
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"` // anthropic, openai
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
	HistoryTurns int           `mapstructure:"history_turns"` // 0 renders the whole conversation
}

func (l LLMConfig) Normalize() LLMConfig {
	l.Provider = strings.ToLower(strings.TrimSpace(l.Provider))
	if l.Provider == "" {
		l.Provider = "anthropic"
	}
	l.APIKey = strings.TrimSpace(l.APIKey)
	if strings.TrimSpace(l.Model) == "" {
		switch l.Provider {
		case "openai":
			l.Model = "gpt-4o-mini"
		default:
			l.Model = "claude-3-5-sonnet-20240620"
		}
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = 1000
	}
	if l.Temperature < 0 {
		l.Temperature = 0
	}
	if l.Timeout <= 0 {
		l.Timeout = 60 * time.Second
	}
	if l.HistoryTurns < 0 {
		l.HistoryTurns = 0
	}
	return l
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "anthropic", "openai":
	default:
		return &ConfigurationError{Key: "llm.provider", Msg: fmt.Sprintf("unsupported provider %q", l.Provider)}
	}
	if l.Temperature > 2 {
		return &ConfigurationError{Key: "llm.temperature", Msg: "must be between 0 and 2"}
	}
	if l.APIKey == "" {
		return MissingKey("llm.api_key", "LLM provider API key is not configured")
	}
	return nil
}

// ConversationConfig selects where conversation turns live
type ConversationConfig struct {
	Store      string        `mapstructure:"store"` // inmemory, redis, postgres
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

func (c ConversationConfig) Normalize() ConversationConfig {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = "inmemory"
	}
	if c.SessionTTL < 0 {
		c.SessionTTL = 0
	}
	return c
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return &ConfigurationError{Key: "storage.redis.host", Msg: "required"}
	}
	if strings.TrimSpace(r.Port) == "" {
		return &ConfigurationError{Key: "storage.redis.port", Msg: "required"}
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return &ConfigurationError{Key: "storage.postgres.host", Msg: "required when url is not provided"}
	}
	if strings.TrimSpace(p.DBName) == "" {
		return &ConfigurationError{Key: "storage.postgres.dbname", Msg: "required when url is not provided"}
	}
	return nil
}

// DSN builds a postgres connection string, preferring URL when set.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	Tracing string `mapstructure:"tracing"` // none, stdout
}

func (t TelemetryConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(t.Tracing)) {
	case "", "none", "stdout":
		return nil
	default:
		return &ConfigurationError{Key: "telemetry.tracing", Msg: fmt.Sprintf("unsupported exporter %q", t.Tracing)}
	}
}

// Normalize applies defaults to every section.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Server.Address) == "" {
		c.Server.Address = ":5001"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 2 * time.Minute
	}
	c.Search = c.Search.Normalize()
	c.Fetch = c.Fetch.Normalize()
	c.LLM = c.LLM.Normalize()
	c.Conversation = c.Conversation.Normalize()
}

// Validate checks every section and returns the first ConfigurationError.
func (c *Config) Validate() error {
	checks := []func() error{
		c.Search.Validate,
		c.Fetch.Validate,
		c.LLM.Validate,
		c.Telemetry.Validate,
	}
	switch c.Conversation.Store {
	case "inmemory":
	case "redis":
		checks = append(checks, c.Storage.Redis.Validate)
	case "postgres":
		checks = append(checks, c.Storage.Postgres.Validate)
	default:
		return &ConfigurationError{Key: "conversation.store", Msg: fmt.Sprintf("unsupported store %q", c.Conversation.Store)}
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// legacy environment names accepted next to SEARCHRAG_* variables
var envAliases = map[string][]string{
	"search.api_key":       {"SEARCHRAG_SEARCH_API_KEY", "SERPER_API_KEY", "BRAVE_API_KEY"},
	"llm.api_key":          {"SEARCHRAG_LLM_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"},
	"storage.postgres.url": {"SEARCHRAG_STORAGE_POSTGRES_URL", "DATABASE_URL"},
}

// LoadConfig loads config from file and environment. The file is optional.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name

	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":5001")
	v.SetDefault("server.request_timeout", 2*time.Minute)
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("search.provider", "serper")
	v.SetDefault("search.max_results", MaxSearchResults)
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("fetch.fetcher", "http")
	v.SetDefault("fetch.extractor", "elements")
	v.SetDefault("fetch.parallelism", MaxSearchResults)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_chars", 20000)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("conversation.store", "inmemory")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("telemetry.tracing", "none")
	// zero defaults make these keys visible to AutomaticEnv during Unmarshal
	for key, zero := range map[string]any{
		"general.debug":             false,
		"search.endpoint":           "",
		"fetch.user_agent":          "",
		"fetch.max_body_bytes":      0,
		"fetch.policy.allow":        []string{},
		"fetch.policy.disallow":     []string{},
		"llm.base_url":              "",
		"llm.model":                 "",
		"llm.history_turns":         0,
		"conversation.session_ttl":  time.Duration(0),
		"storage.redis.host":        "",
		"storage.redis.password":    "",
		"storage.redis.db":          0,
		"storage.postgres.host":     "",
		"storage.postgres.port":     "",
		"storage.postgres.user":     "",
		"storage.postgres.password": "",
		"storage.postgres.dbname":   "",
		"storage.postgres.sslmode":  "",
	} {
		v.SetDefault(key, zero)
	}

	if path == "" {
		v.AddConfigPath("./config") // path to look for the config file in
		v.AddConfigPath(".")        // optionally look for config in the working directory
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)                                // bin/
			v.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SEARCHRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (SEARCHRAG_*)
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}
