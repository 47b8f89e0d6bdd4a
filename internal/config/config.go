// Package config loads kgforge settings from the environment, an optional
// .env file and an optional YAML or TOML config file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/kgforge/internal/parser"
)

// APIPrefix is the route prefix of the knowledge graph API.
const APIPrefix = "/api/v2/serve/knowledge_graph"

// Config holds all configuration values.
type Config struct {
	// Server
	Port      int
	UploadDir string
	Workers   int
	ServerURL string // used by the CLI

	// Metadata store: "sqlite" or "surreal"
	StoreDriver string
	SQLitePath  string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Graph store (bolt). Empty URI means no connector.
	GraphURI      string
	GraphUser     string
	GraphPassword string
	DefaultSpace  string

	// Vector store
	VectorType       string
	VectorPersistDir string
	VectorCompress   bool

	// LLM
	LLMProvider string
	LLMModel    string
	LLMHost     string
	LLMAPIKey   string
	AWSRegion   string
	CharLimit   int

	// Embedding
	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingHost      string
	EmbeddingDimension int

	// Chunking
	ChunkSeparator string
	ChunkSize      int
	ChunkOverlap   int

	// Logging
	LogFile   string
	LogLevel  slog.Level
	LogFormat string
}

// fileConfig mirrors Config as it appears in a YAML or TOML file.
type fileConfig struct {
	Server struct {
		Port      int    `yaml:"port" toml:"port"`
		UploadDir string `yaml:"upload_dir" toml:"upload_dir"`
		Workers   int    `yaml:"workers" toml:"workers"`
		URL       string `yaml:"url" toml:"url"`
	} `yaml:"server" toml:"server"`
	Store struct {
		Driver     string `yaml:"driver" toml:"driver"`
		SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path"`
	} `yaml:"store" toml:"store"`
	SurrealDB struct {
		URL       string `yaml:"url" toml:"url"`
		Namespace string `yaml:"namespace" toml:"namespace"`
		Database  string `yaml:"database" toml:"database"`
		User      string `yaml:"user" toml:"user"`
		Pass      string `yaml:"pass" toml:"pass"`
		AuthLevel string `yaml:"auth_level" toml:"auth_level"`
	} `yaml:"surrealdb" toml:"surrealdb"`
	Graph struct {
		URI          string `yaml:"uri" toml:"uri"`
		User         string `yaml:"user" toml:"user"`
		Password     string `yaml:"password" toml:"password"`
		DefaultSpace string `yaml:"default_space" toml:"default_space"`
	} `yaml:"graph" toml:"graph"`
	Vector struct {
		DefaultType string `yaml:"default_type" toml:"default_type"`
		PersistDir  string `yaml:"persist_dir" toml:"persist_dir"`
		Compress    bool   `yaml:"compress" toml:"compress"`
	} `yaml:"vector" toml:"vector"`
	LLM struct {
		Provider  string `yaml:"provider" toml:"provider"`
		Model     string `yaml:"model" toml:"model"`
		Host      string `yaml:"host" toml:"host"`
		APIKey    string `yaml:"api_key" toml:"api_key"`
		Region    string `yaml:"region" toml:"region"`
		CharLimit int    `yaml:"char_limit" toml:"char_limit"`
	} `yaml:"llm" toml:"llm"`
	Embedding struct {
		Provider  string `yaml:"provider" toml:"provider"`
		Model     string `yaml:"model" toml:"model"`
		Host      string `yaml:"host" toml:"host"`
		Dimension int    `yaml:"dimension" toml:"dimension"`
	} `yaml:"embedding" toml:"embedding"`
	Chunking struct {
		Separator string `yaml:"separator" toml:"separator"`
		Size      int    `yaml:"size" toml:"size"`
		Overlap   int    `yaml:"overlap" toml:"overlap"`
	} `yaml:"chunking" toml:"chunking"`
	Log struct {
		File   string `yaml:"file" toml:"file"`
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`
}

// Load reads configuration. Precedence: environment, then the file named by
// KGFORGE_CONFIG, then built-in defaults. A .env file in the working
// directory is loaded into the environment first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var fc fileConfig
	if path := os.Getenv("KGFORGE_CONFIG"); path != "" {
		var err error
		if fc, err = readFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Port:      getEnvInt("KGFORGE_PORT", or(fc.Server.Port, 8484)),
		UploadDir: getEnv("KGFORGE_UPLOAD_DIR", or(fc.Server.UploadDir, "./data/uploads")),
		Workers:   getEnvInt("KGFORGE_WORKERS", or(fc.Server.Workers, 4)),
		ServerURL: getEnv("KGFORGE_URL", or(fc.Server.URL, "http://localhost:8484")),

		StoreDriver: getEnv("KGFORGE_STORE", or(fc.Store.Driver, "sqlite")),
		SQLitePath:  getEnv("KGFORGE_SQLITE_PATH", or(fc.Store.SQLitePath, "./data/kgforge.db")),

		SurrealDBURL:       getEnv("SURREALDB_URL", or(fc.SurrealDB.URL, "ws://localhost:8000/rpc")),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", or(fc.SurrealDB.Namespace, "kgforge")),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", or(fc.SurrealDB.Database, "pipeline")),
		SurrealDBUser:      getEnv("SURREALDB_USER", or(fc.SurrealDB.User, "root")),
		SurrealDBPass:      getEnv("SURREALDB_PASS", or(fc.SurrealDB.Pass, "root")),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", or(fc.SurrealDB.AuthLevel, "root")),

		GraphURI:      getEnv("KGFORGE_GRAPH_URI", fc.Graph.URI),
		GraphUser:     getEnv("KGFORGE_GRAPH_USER", or(fc.Graph.User, "neo4j")),
		GraphPassword: getEnv("KGFORGE_GRAPH_PASSWORD", fc.Graph.Password),
		DefaultSpace:  getEnv("KGFORGE_DEFAULT_SPACE", or(fc.Graph.DefaultSpace, "default")),

		VectorType:       getEnv("KGFORGE_VECTOR_TYPE", or(fc.Vector.DefaultType, "chroma")),
		VectorPersistDir: getEnv("KGFORGE_VECTOR_DIR", fc.Vector.PersistDir),
		VectorCompress:   getEnvBool("KGFORGE_VECTOR_COMPRESS", fc.Vector.Compress),

		LLMProvider: getEnv("KGFORGE_LLM_PROVIDER", or(fc.LLM.Provider, "ollama")),
		LLMModel:    getEnv("KGFORGE_LLM_MODEL", or(fc.LLM.Model, "qwen-max")),
		LLMHost:     getEnv("KGFORGE_LLM_HOST", or(fc.LLM.Host, "http://localhost:11434")),
		LLMAPIKey:   getEnv("KGFORGE_LLM_API_KEY", fc.LLM.APIKey),
		AWSRegion:   getEnv("AWS_REGION", or(fc.LLM.Region, "us-east-1")),
		CharLimit:   getEnvInt("KGFORGE_LLM_CHAR_LIMIT", or(fc.LLM.CharLimit, 10000)),

		EmbeddingProvider:  getEnv("KGFORGE_EMBEDDING_PROVIDER", or(fc.Embedding.Provider, "ollama")),
		EmbeddingModel:     getEnv("KGFORGE_EMBEDDING_MODEL", or(fc.Embedding.Model, "all-minilm:l6-v2")),
		EmbeddingHost:      getEnv("OLLAMA_HOST", or(fc.Embedding.Host, "http://localhost:11434")),
		EmbeddingDimension: getEnvInt("KGFORGE_EMBEDDING_DIMENSION", or(fc.Embedding.Dimension, 384)),

		ChunkSeparator: getEnv("KGFORGE_CHUNK_SEPARATOR", or(fc.Chunking.Separator, "\n\n")),
		ChunkSize:      getEnvInt("KGFORGE_CHUNK_SIZE", or(fc.Chunking.Size, 512)),
		ChunkOverlap:   getEnvInt("KGFORGE_CHUNK_OVERLAP", or(fc.Chunking.Overlap, 50)),

		LogFile:   getEnv("KGFORGE_LOG_FILE", or(fc.Log.File, filepath.Join(os.TempDir(), "kgforge.log"))),
		LogLevel:  parseLogLevel(getEnv("KGFORGE_LOG_LEVEL", or(fc.Log.Level, "INFO"))),
		LogFormat: getEnv("LOG_FORMAT", or(fc.Log.Format, "text")),
	}
	return cfg, nil
}

// Chunking returns the text splitter settings.
func (c Config) Chunking() parser.ChunkConfig {
	return parser.ChunkConfig{
		Separator: c.ChunkSeparator,
		ChunkSize: c.ChunkSize,
		Overlap:   c.ChunkOverlap,
	}
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return fc, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

func or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
