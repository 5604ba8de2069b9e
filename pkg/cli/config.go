package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/engram/pkg/adapter"
	"github.com/m-mizutani/engram/pkg/store"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	// Store
	storePath      string
	backend        string
	dedupThreshold float64

	// Firestore backend
	project  string
	database string

	// Embedders
	geminiProject  string
	geminiLocation string
	embeddingModel string
	hashDimensions int64
	cacheEntries   int64
}

// storeFlags returns store-related flags with destination config
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store-path",
			Aliases:     []string{"s"},
			Usage:       "Path to the memory store log file",
			Sources:     cli.EnvVars("ENGRAM_STORE_PATH"),
			Destination: &cfg.storePath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Store backend (local or firestore)",
			Value:       "local",
			Sources:     cli.EnvVars("ENGRAM_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.FloatFlag{
			Name:        "dedup-threshold",
			Usage:       "Cosine similarity above which new entries are rejected as duplicates",
			Value:       store.DefaultDedupThreshold,
			Sources:     cli.EnvVars("ENGRAM_DEDUP_THRESHOLD"),
			Destination: &cfg.dedupThreshold,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID (firestore backend)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// modelFlags returns flags for embedder configuration with destination config
func modelFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini embeddings",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Gemini embedding model ID",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("ENGRAM_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "hash-dimensions",
			Usage:       "Vector size of the offline hash embedder",
			Value:       384,
			Sources:     cli.EnvVars("ENGRAM_HASH_DIMENSIONS"),
			Destination: &cfg.hashDimensions,
		},
		&cli.IntFlag{
			Name:        "cache-entries",
			Usage:       "Maximum cached embeddings",
			Value:       4096,
			Sources:     cli.EnvVars("ENGRAM_CACHE_ENTRIES"),
			Destination: &cfg.cacheEntries,
		},
	}
}

// newStore opens the configured store backend
func (cfg *config) newStore(ctx context.Context) (store.Store, error) {
	switch cfg.backend {
	case "", "local":
		if cfg.storePath == "" {
			return nil, goerr.New("store-path is required")
		}
		return store.Open(ctx, cfg.storePath, store.WithDedupThreshold(cfg.dedupThreshold))

	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required for the firestore backend")
		}
		return store.OpenFirestore(ctx, cfg.project, cfg.database,
			store.WithFirestoreDedupThreshold(cfg.dedupThreshold))

	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

// newRegistry builds the embedder registry. Gemini (behind a cache) becomes
// the default when configured; the offline hash embedder is always available
// under the "hash" model ID.
func (cfg *config) newRegistry(ctx context.Context) (*adapter.Registry, error) {
	registry := adapter.NewRegistry()

	if cfg.geminiProject != "" {
		gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
			adapter.WithEmbeddingModel(cfg.embeddingModel))
		if err != nil {
			return nil, err
		}

		cached, err := adapter.NewCachedEmbedder(gemini, cfg.cacheEntries)
		if err != nil {
			return nil, err
		}
		registry.Register(cfg.embeddingModel, cached)
	}

	registry.Register("hash", adapter.NewHashEmbedder(int(cfg.hashDimensions)))
	return registry, nil
}

// newStorage creates a new Cloud Storage adapter instance
func (cfg *config) newStorage(ctx context.Context, bucketName string) (adapter.Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, bucketName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// fileConfig is the optional YAML config file for serve-time defaults.
type fileConfig struct {
	Store struct {
		Path           string  `yaml:"path"`
		Backend        string  `yaml:"backend"`
		DedupThreshold float64 `yaml:"dedupThreshold"`
	} `yaml:"store"`
	Model struct {
		GeminiProject  string `yaml:"geminiProject"`
		GeminiLocation string `yaml:"geminiLocation"`
		EmbeddingModel string `yaml:"embeddingModel"`
		HashDimensions int64  `yaml:"hashDimensions"`
	} `yaml:"model"`
}

// applyConfigFile loads the YAML file and fills config fields the flags left
// at their zero value, so flags and env vars win over the file.
func (cfg *config) applyConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	if cfg.storePath == "" {
		cfg.storePath = fc.Store.Path
	}
	if fc.Store.Backend != "" && cfg.backend == "local" {
		cfg.backend = fc.Store.Backend
	}
	if fc.Store.DedupThreshold > 0 && cfg.dedupThreshold == store.DefaultDedupThreshold {
		cfg.dedupThreshold = fc.Store.DedupThreshold
	}
	if cfg.geminiProject == "" {
		cfg.geminiProject = fc.Model.GeminiProject
	}
	if fc.Model.GeminiLocation != "" && cfg.geminiLocation == "us-central1" {
		cfg.geminiLocation = fc.Model.GeminiLocation
	}
	if fc.Model.EmbeddingModel != "" && cfg.embeddingModel == "gemini-embedding-001" {
		cfg.embeddingModel = fc.Model.EmbeddingModel
	}
	if fc.Model.HashDimensions > 0 && cfg.hashDimensions == 384 {
		cfg.hashDimensions = fc.Model.HashDimensions
	}
	return nil
}
