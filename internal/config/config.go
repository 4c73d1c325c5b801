package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rohankatakam/kgraph/internal/errors"
)

// Config holds all configuration settings
type Config struct {
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Spool   SpoolConfig   `mapstructure:"spool" yaml:"spool"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
)

type StoreConfig struct {
	Backend            string        `mapstructure:"backend" yaml:"backend"` // "sqlite", "neo4j"
	SQLitePath         string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	Neo4jURI           string        `mapstructure:"neo4j_uri" yaml:"neo4j_uri"`
	Neo4jUser          string        `mapstructure:"neo4j_user" yaml:"neo4j_user"`
	Neo4jPassword      string        `mapstructure:"neo4j_password" yaml:"neo4j_password"`
	Neo4jDatabase      string        `mapstructure:"neo4j_database" yaml:"neo4j_database"`
	MaxPoolSize        int           `mapstructure:"max_pool_size" yaml:"max_pool_size"`
	AcquisitionTimeout time.Duration `mapstructure:"acquisition_timeout" yaml:"acquisition_timeout"`
}

// LLM providers
const (
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderCompatible = "compatible" // any OpenAI-compatible endpoint (Ollama, vLLM)
	ProviderNone       = "none"
)

type LLMConfig struct {
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	Model             string  `mapstructure:"model" yaml:"model"`
	OpenAIKey         string  `mapstructure:"openai_key" yaml:"openai_key"`
	GeminiKey         string  `mapstructure:"gemini_key" yaml:"gemini_key"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	UseKeychain       bool    `mapstructure:"use_keychain" yaml:"use_keychain"`
}

type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type SpoolConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // "text", "json"
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // empty disables the endpoint
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:            BackendSQLite,
			SQLitePath:         filepath.Join(homeDir(), ".kgraph", "graph.db"),
			Neo4jURI:           "bolt://localhost:7687",
			Neo4jUser:          "neo4j",
			Neo4jDatabase:      "neo4j",
			MaxPoolSize:        50,
			AcquisitionTimeout: 60 * time.Second,
		},
		LLM: LLMConfig{
			Provider:          ProviderNone,
			RequestsPerMinute: 60,
			Temperature:       0.3,
			UseKeychain:       true,
		},
		Cache: CacheConfig{
			RedisAddr: "localhost:6379",
			TTL:       15 * time.Minute,
		},
		Spool: SpoolConfig{
			Enabled: true,
			Path:    filepath.Join(homeDir(), ".kgraph", "spool.db"),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads configuration from path, or from the standard locations when
// path is empty. Precedence, highest first: explicit environment variables,
// KGRAPH_* variables, the config file, defaults.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	v.SetEnvPrefix("KGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".kgraph")
		v.AddConfigPath(filepath.Join(homeDir(), ".kgraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ConfigErrorf("failed to read config: %v", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ConfigErrorf("failed to unmarshal config: %v", err)
	}

	applyEnvOverrides(cfg)
	cfg.Store.SQLitePath = expandPath(cfg.Store.SQLitePath)
	cfg.Spool.Path = expandPath(cfg.Spool.Path)
	cfg.Log.File = expandPath(cfg.Log.File)

	return cfg, nil
}

// setDefaults registers every leaf key so KGRAPH_* variables bind to it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.neo4j_uri", d.Store.Neo4jURI)
	v.SetDefault("store.neo4j_user", d.Store.Neo4jUser)
	v.SetDefault("store.neo4j_password", d.Store.Neo4jPassword)
	v.SetDefault("store.neo4j_database", d.Store.Neo4jDatabase)
	v.SetDefault("store.max_pool_size", d.Store.MaxPoolSize)
	v.SetDefault("store.acquisition_timeout", d.Store.AcquisitionTimeout)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.openai_key", d.LLM.OpenAIKey)
	v.SetDefault("llm.gemini_key", d.LLM.GeminiKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.requests_per_minute", d.LLM.RequestsPerMinute)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.use_keychain", d.LLM.UseKeychain)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("spool.enabled", d.Spool.Enabled)
	v.SetDefault("spool.path", d.Spool.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides variables that are already set, so earlier files win.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
		filepath.Join(homeDir(), ".kgraph", ".env"),
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}
}

// applyEnvOverrides applies the conventional, unprefixed variables
func applyEnvOverrides(cfg *Config) {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Store.Neo4jURI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Store.Neo4jUser = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Store.Neo4jPassword = password
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Store.Neo4jDatabase = db
	}

	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		cfg.LLM.Provider = provider
	}
	if url := os.Getenv("LLM_BASE_URL"); url != "" {
		cfg.LLM.BaseURL = url
	}
	if rpm := os.Getenv("LLM_REQUESTS_PER_MINUTE"); rpm != "" {
		if n, err := strconv.Atoi(rpm); err == nil {
			cfg.LLM.RequestsPerMinute = n
		}
	}

	// API keys. Precedence: 1. env var 2. keychain 3. config file
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	} else if cfg.LLM.UseKeychain {
		if key := keychainValue(KeyringOpenAIItem); key != "" {
			cfg.LLM.OpenAIKey = key
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLM.GeminiKey = key
	} else if cfg.LLM.UseKeychain {
		if key := keychainValue(KeyringGeminiItem); key != "" {
			cfg.LLM.GeminiKey = key
		}
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
		cfg.Cache.Enabled = true
	}
}

func keychainValue(item string) string {
	km := NewKeyringManager()
	if !km.IsAvailable() {
		return ""
	}
	value, err := km.Get(item)
	if err != nil {
		return ""
	}
	return value
}

// Validate checks option values that would otherwise fail later and less
// clearly
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.ConfigErrorf("store.sqlite_path is required for the sqlite backend")
		}
	case BackendNeo4j:
		if c.Store.Neo4jURI == "" {
			return errors.ConfigErrorf("store.neo4j_uri is required for the neo4j backend")
		}
	default:
		return errors.ConfigErrorf("unknown store backend %q (want sqlite or neo4j)", c.Store.Backend)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderCompatible, ProviderNone, "":
	default:
		return errors.ConfigErrorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider == ProviderCompatible && c.LLM.BaseURL == "" {
		return errors.ConfigErrorf("llm.base_url is required for the compatible provider")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return errors.ConfigErrorf("llm.requests_per_minute must not be negative")
	}

	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return errors.ConfigErrorf("cache.redis_addr is required when the cache is enabled")
	}
	if c.Spool.Enabled && c.Spool.Path == "" {
		return errors.ConfigErrorf("spool.path is required when the spool is enabled")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return errors.ConfigErrorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// Save writes the configuration as YAML. API keys are never written; they
// belong in the keychain or the environment.
func (c *Config) Save(path string) error {
	return c.save(path, false)
}

// SaveWithSecrets also writes API keys, for hosts without a keychain. The
// file is made readable by the owner only.
func (c *Config) SaveWithSecrets(path string) error {
	if err := c.save(path, true); err != nil {
		return err
	}
	return os.Chmod(path, 0600)
}

func (c *Config) save(path string, keepKeys bool) error {
	v := viper.New()
	v.SetConfigType("yaml")

	redacted := *c
	if !keepKeys {
		redacted.LLM.OpenAIKey = ""
		redacted.LLM.GeminiKey = ""
	}
	redacted.Store.Neo4jPassword = ""
	setDefaults(v, &redacted)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultPath is where configure writes the user config
func DefaultPath() string {
	return filepath.Join(homeDir(), ".kgraph", "config.yaml")
}

func homeDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return dir
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		return filepath.Join(homeDir(), path[1:])
	}
	return path
}
