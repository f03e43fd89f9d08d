package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment" yaml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server" yaml:"server"`
	Storage     StorageConfig    `toml:"storage" yaml:"storage"`
	Jobs        JobsConfig       `toml:"jobs" yaml:"jobs"`
	Indexing    IndexingConfig   `toml:"indexing" yaml:"indexing"`
	Embeddings  EmbeddingsConfig `toml:"embeddings" yaml:"embeddings"`
	Logging     LoggingConfig    `toml:"logging" yaml:"logging"`
	Sources     SourcesConfig    `toml:"sources" yaml:"sources"`
	Upload      UploadConfig     `toml:"upload" yaml:"upload"`
	Scheduler   SchedulerConfig  `toml:"scheduler" yaml:"scheduler"`
}

type ServerConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger" yaml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" yaml:"path"`                         // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup" yaml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// JobsConfig controls the job queue and its worker pool
type JobsConfig struct {
	MaxWorkers    int `toml:"max_workers" yaml:"max_workers"`         // Number of concurrent job step workers
	StepBatchSize int `toml:"step_batch_size" yaml:"step_batch_size"` // Pending steps submitted per poll
}

// IndexingConfig controls chunking and the document index
type IndexingConfig struct {
	IndexName    string `toml:"index_name" yaml:"index_name"`
	ChunkSize    int    `toml:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int    `toml:"chunk_overlap" yaml:"chunk_overlap"`
	ChunkPrefix  string `toml:"chunk_prefix" yaml:"chunk_prefix"` // Prefix applied to every chunk prior to embedding
}

type EmbeddingsConfig struct {
	URL     string `toml:"url" yaml:"url"`         // Embedding server endpoint
	Model   string `toml:"model" yaml:"model"`     // Model name passed to the server
	Timeout string `toml:"timeout" yaml:"timeout"` // e.g. "30s"
}

type LoggingConfig struct {
	Level      string   `toml:"level" yaml:"level"`             // "debug", "info", "warn", "error"
	Output     []string `toml:"output" yaml:"output"`           // "stdout", "file"
	TimeFormat string   `toml:"time_format" yaml:"time_format"` // Time format for logs (default: "15:04:05")
}

// SourcesConfig carries per-datasource settings for the built-in features
type SourcesConfig struct {
	Kbase    KbaseConfig    `toml:"kbase" yaml:"kbase"`
	Wiki     WikiConfig     `toml:"wiki" yaml:"wiki"`
	Docshare DocshareConfig `toml:"docshare" yaml:"docshare"`
	LocalFS  LocalFSConfig  `toml:"localfs" yaml:"localfs"`
}

type KbaseConfig struct {
	URL      string `toml:"url" yaml:"url"`
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
	PageSize int    `toml:"page_size" yaml:"page_size"`
}

type WikiConfig struct {
	URL      string `toml:"url" yaml:"url"`
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
	RootPage string `toml:"root_page" yaml:"root_page"` // Page whose tree is crawled when the connection defines none
}

type DocshareConfig struct {
	URL          string `toml:"url" yaml:"url"`
	TokenURL     string `toml:"token_url" yaml:"token_url"`
	ClientID     string `toml:"client_id" yaml:"client_id"`
	ClientSecret string `toml:"client_secret" yaml:"client_secret"`
	DriveID      string `toml:"drive_id" yaml:"drive_id"`
}

type LocalFSConfig struct {
	Dir      string   `toml:"dir" yaml:"dir"`           // Root directory the filesystem crawler searches under
	Patterns []string `toml:"patterns" yaml:"patterns"` // Case-sensitive filename suffixes, e.g. ".pdf"
}

type UploadConfig struct {
	MaxFileSize int64 `toml:"max_file_size" yaml:"max_file_size"` // Bytes; 0 means the default
}

// SchedulerConfig enables periodic re-ingestion of configured sources
type SchedulerConfig struct {
	Enabled bool            `toml:"enabled" yaml:"enabled"`
	Entries []ScheduleEntry `toml:"entries" yaml:"entries"`
}

type ScheduleEntry struct {
	Schedule     string `toml:"schedule" yaml:"schedule"` // Cron expression
	Datasource   string `toml:"datasource" yaml:"datasource"`
	ConnectionID string `toml:"connection_id" yaml:"connection_id"`
}

// DefaultConfig returns the built-in defaults applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/colligo"},
		},
		Jobs: JobsConfig{
			MaxWorkers:    4,
			StepBatchSize: 100,
		},
		Indexing: IndexingConfig{
			IndexName:    "colligo-index",
			ChunkSize:    500,
			ChunkOverlap: 100,
			ChunkPrefix:  "passage: ",
		},
		Embeddings: EmbeddingsConfig{
			URL:     "http://localhost:8090/embed",
			Model:   "multilingual-e5-base",
			Timeout: "30s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Sources: SourcesConfig{
			Kbase:   KbaseConfig{PageSize: 100},
			LocalFS: LocalFSConfig{Dir: "data", Patterns: []string{".pdf", ".txt", ".md"}},
		},
		Upload: UploadConfig{
			MaxFileSize: 32 << 20,
		},
	}
}

// LoadFromFiles loads configuration from the given files in order, later
// files overriding earlier ones, then applies environment overrides.
// TOML and YAML files are supported, selected by extension.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		default:
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// The job engine variables keep their historical unprefixed names.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MAX_JOB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Jobs.MaxWorkers = n
		}
	}
	if v := os.Getenv("JOB_STEP_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Jobs.StepBatchSize = n
		}
	}
	if v, ok := os.LookupEnv("CHUNK_PREFIX"); ok {
		config.Indexing.ChunkPrefix = v
	}
	if v := os.Getenv("COLLIGO_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("COLLIGO_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Server.Port = n
		}
	}
	if v := os.Getenv("COLLIGO_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("COLLIGO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("COLLIGO_EMBEDDINGS_URL"); v != "" {
		config.Embeddings.URL = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
