// Package config loads go-prefs settings from defaults, an optional YAML file
// and PREFS_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix scopes the environment overrides. Nested keys use a double
// underscore: PREFS_LEDGER__BACKEND=sqlite sets ledger.backend.
const EnvPrefix = "PREFS_"

// PathEnvVar overrides the config file location.
const PathEnvVar = "PREFS_CONFIG"

// DefaultPaths are searched when no explicit path is given.
var DefaultPaths = []string{"prefs.yaml", "prefs.yml", "/etc/prefs/prefs.yaml"}

type Config struct {
	Log        LogConfig        `koanf:"log"`
	Ledger     LedgerConfig     `koanf:"ledger"`
	Index      IndexConfig      `koanf:"index"`
	Embed      EmbedConfig      `koanf:"embed"`
	Recommend  RecommendConfig  `koanf:"recommend"`
	Summarizer SummarizerConfig `koanf:"summarizer"`
	Timeouts   TimeoutConfig    `koanf:"timeouts"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled off"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// LedgerConfig selects the activity ledger backend.
type LedgerConfig struct {
	Backend string      `koanf:"backend" validate:"required,oneof=memory sqlite postgres neo4j"`
	DSN     string      `koanf:"dsn" validate:"required_if=Backend sqlite,required_if=Backend postgres"`
	Neo4j   Neo4jConfig `koanf:"neo4j"`
}

type Neo4jConfig struct {
	URI      string `koanf:"uri"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

// IndexConfig selects the vector index backend and the index names.
type IndexConfig struct {
	Backend         string        `koanf:"backend" validate:"required,oneof=memory qdrant pgvector mongodb"`
	URL             string        `koanf:"url" validate:"required_if=Backend qdrant,required_if=Backend mongodb"`
	APIKey          string        `koanf:"api_key"`
	DSN             string        `koanf:"dsn" validate:"required_if=Backend pgvector"`
	Database        string        `koanf:"database"`
	VectorIndex     string        `koanf:"vector_index"`
	PreferenceIndex string        `koanf:"preference_index" validate:"required"`
	Domains         DomainIndexes `koanf:"domains"`
}

type DomainIndexes struct {
	Movie   string `koanf:"movie" validate:"required"`
	Music   string `koanf:"music" validate:"required"`
	Product string `koanf:"product" validate:"required"`
}

type EmbedConfig struct {
	Provider      string `koanf:"provider" validate:"required,oneof=dummy fastembed openai ollama vertex gemini google"`
	Model         string `koanf:"model"`
	CacheDir      string `koanf:"cache_dir"`
	MaxInputRunes int    `koanf:"max_input_runes" validate:"gte=1"`
	CacheSize     int    `koanf:"cache_size" validate:"gte=0"`
}

// RecommendConfig carries the mixing ratios of the blender.
type RecommendConfig struct {
	BaseDomain      int `koanf:"base_domain" validate:"gte=0"`
	BaseCollective  int `koanf:"base_collective" validate:"gte=0"`
	OtherDomain     int `koanf:"other_domain" validate:"gte=0"`
	OtherCollective int `koanf:"other_collective" validate:"gte=0"`
	Concurrency     int `koanf:"concurrency" validate:"gte=1,lte=3"`
}

type SummarizerConfig struct {
	Provider  string        `koanf:"provider" validate:"required,oneof=heuristic anthropic"`
	Model     string        `koanf:"model"`
	MaxTokens int           `koanf:"max_tokens" validate:"gte=0"`
	CacheSize int           `koanf:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

type TimeoutConfig struct {
	External time.Duration `koanf:"external" validate:"gt=0"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the in-process configuration: memory backends, the dummy
// embedder and the 3/2 and 2/3 mixing ratios.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Ledger: LedgerConfig{
			Backend: "memory",
			Neo4j:   Neo4jConfig{URI: "neo4j://localhost:7687", User: "neo4j", Database: "neo4j"},
		},
		Index: IndexConfig{
			Backend:         "memory",
			Database:        "prefs",
			VectorIndex:     "vector_index",
			PreferenceIndex: "user-preference-vector",
			Domains: DomainIndexes{
				Movie:   "movies-list",
				Music:   "music-list",
				Product: "products-list",
			},
		},
		Embed: EmbedConfig{
			Provider:      "dummy",
			CacheDir:      ".fastembed",
			MaxInputRunes: 2048,
			CacheSize:     1024,
		},
		Recommend: RecommendConfig{
			BaseDomain:      3,
			BaseCollective:  2,
			OtherDomain:     2,
			OtherCollective: 3,
			Concurrency:     3,
		},
		Summarizer: SummarizerConfig{Provider: "heuristic", MaxTokens: 1024, CacheSize: 256, CacheTTL: time.Hour},
		Timeouts:   TimeoutConfig{External: 10 * time.Second},
	}
}

// Load layers defaults, the config file (explicit path, PREFS_CONFIG, or the
// first of DefaultPaths that exists) and the environment, then validates.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field constraint and reports them together.
func (c Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Domain returns the index name configured for a domain key.
func (d DomainIndexes) Domain(name string) string {
	switch name {
	case "movie":
		return d.Movie
	case "music":
		return d.Music
	case "product":
		return d.Product
	}
	return ""
}

func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
