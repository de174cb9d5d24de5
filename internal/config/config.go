package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the folio server.
type Config struct {
	Server    ServerConfig
	Corpus    CorpusConfig
	Index     IndexConfig
	Providers ProvidersConfig
	Session   SessionConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port      int
	PublicDir string
}

type CorpusConfig struct {
	DocsDir         string
	MediaDir        string
	ReindexInterval time.Duration
}

// IndexConfig selects and configures the vector index backend.
// Backend "pinecone" talks to a hosted index over HTTP; "sqlite" keeps a
// local brute-force index under DataDir (small corpora and development).
type IndexConfig struct {
	Backend        string
	PineconeHost   string
	PineconeAPIKey string
	DataDir        string
}

type ProvidersConfig struct {
	OpenAIAPIKey  string
	NovelAIAPIKey string
	Default       string
}

type SessionConfig struct {
	MaxIdle       time.Duration
	SweepInterval time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:      3000,
			PublicDir: "public",
		},
		Corpus: CorpusConfig{
			DocsDir:         "docs",
			MediaDir:        "public/static/media",
			ReindexInterval: 6 * time.Hour,
		},
		Index: IndexConfig{
			Backend: "pinecone",
			DataDir: "data",
		},
		Providers: ProvidersConfig{
			Default: "openai",
		},
		Session: SessionConfig{
			MaxIdle:       time.Hour,
			SweepInterval: time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional .env file and the environment.
// Environment variables always win over .env values, which is godotenv's
// default behaviour.
//
// Provider credentials keep the original variable names (OPENAI_API_KEY,
// NOVELAI_API_KEY, PINECONE_API_KEY, PINECONE_HOST) so an existing deployment
// .env keeps working; everything else is FOLIO_*.
func Load() (Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.PublicDir, "FOLIO_PUBLIC_DIR")
	setInt(&cfg.Server.Port, "FOLIO_PORT")
	// The original deployment used PORT; honour it when FOLIO_PORT is unset.
	if os.Getenv("FOLIO_PORT") == "" {
		setInt(&cfg.Server.Port, "PORT")
	}

	setString(&cfg.Corpus.DocsDir, "FOLIO_DOCS_DIR")
	setString(&cfg.Corpus.MediaDir, "FOLIO_MEDIA_DIR")
	setDuration(&cfg.Corpus.ReindexInterval, "FOLIO_REINDEX_INTERVAL")

	setString(&cfg.Index.Backend, "FOLIO_INDEX_BACKEND")
	setString(&cfg.Index.PineconeHost, "PINECONE_HOST")
	setString(&cfg.Index.PineconeAPIKey, "PINECONE_API_KEY")
	setString(&cfg.Index.DataDir, "FOLIO_DATA_DIR")

	setString(&cfg.Providers.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.NovelAIAPIKey, "NOVELAI_API_KEY")
	setString(&cfg.Providers.Default, "FOLIO_DEFAULT_PROVIDER")

	setDuration(&cfg.Session.MaxIdle, "FOLIO_SESSION_MAX_IDLE")
	setDuration(&cfg.Session.SweepInterval, "FOLIO_SESSION_SWEEP_INTERVAL")

	setString(&cfg.Log.Level, "FOLIO_LOG_LEVEL")
}

// validate enforces the startup invariants: the process must not serve
// traffic without the credentials its configured backends require.
func validate(cfg Config) error {
	if cfg.Providers.OpenAIAPIKey == "" {
		return fmt.Errorf("missing required config: OpenAI API key. " +
			"Set it via environment variable OPENAI_API_KEY (embeddings and the openai provider depend on it)")
	}

	switch cfg.Providers.Default {
	case "openai":
	case "novelai":
		if cfg.Providers.NovelAIAPIKey == "" {
			return fmt.Errorf("missing required config: NOVELAI_API_KEY is required when FOLIO_DEFAULT_PROVIDER=novelai")
		}
	default:
		return fmt.Errorf("invalid FOLIO_DEFAULT_PROVIDER %q: must be openai or novelai", cfg.Providers.Default)
	}

	switch cfg.Index.Backend {
	case "pinecone":
		if cfg.Index.PineconeHost == "" || cfg.Index.PineconeAPIKey == "" {
			return fmt.Errorf("missing required config: PINECONE_HOST and PINECONE_API_KEY are required when FOLIO_INDEX_BACKEND=pinecone")
		}
	case "sqlite":
		if cfg.Index.DataDir == "" {
			return fmt.Errorf("missing required config: FOLIO_DATA_DIR is required when FOLIO_INDEX_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("invalid FOLIO_INDEX_BACKEND %q: must be pinecone or sqlite", cfg.Index.Backend)
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
