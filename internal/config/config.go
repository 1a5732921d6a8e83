package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the service configuration file.
const ConfigPath = "config.yaml"

// Storage backend selectors.
const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

// Summarizer provider selectors.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// DatabaseURL selects the Postgres repository. When empty the service
	// runs with the in-memory repository, which is only useful for local
	// development.
	DatabaseURL string `yaml:"databaseURL"`

	StorageBackend string `yaml:"storageBackend"`
	StoragePath    string `yaml:"storagePath"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	SummarizerProvider       string `yaml:"summarizerProvider"`
	SummarizerBaseURL        string `yaml:"summarizerBaseURL"`
	SummarizerAPIKey         string `yaml:"summarizerAPIKey"`
	SummarizerModel          string `yaml:"summarizerModel"`
	SummarizerMaxTokens      int    `yaml:"summarizerMaxTokens"`
	SummarizerMaxInputRunes  int    `yaml:"summarizerMaxInputRunes"`
	SummarizerTimeoutSeconds int    `yaml:"summarizerTimeoutSeconds"`

	// AuthSecret enables bearer-token auth on document routes when set.
	AuthSecret   string `yaml:"authSecret"`
	AuthIssuer   string `yaml:"authIssuer"`
	AuthAudience string `yaml:"authAudience"`

	// RedisAddr enables the upload rate limiter when set.
	RedisAddr               string `yaml:"redisAddr"`
	RedisPassword           string `yaml:"redisPassword"`
	UploadRateLimit         int    `yaml:"uploadRateLimit"`
	UploadRateWindowSeconds int    `yaml:"uploadRateWindowSeconds"`
	TrustForwardedHeaders   bool   `yaml:"trustForwardedHeaders"`

	MaxUploadBytes      int64    `yaml:"maxUploadBytes"`
	AllowedContentTypes []string `yaml:"allowedContentTypes"`

	// ProcessOnUpload triggers pipeline processing synchronously after each
	// upload. When false, callers trigger it via the process endpoint.
	ProcessOnUpload    bool `yaml:"processOnUpload"`
	ProcessConcurrency int  `yaml:"processConcurrency"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides for deploy-time secrets.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *FileConfig) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("SUMMARIZER_API_KEY"); v != "" {
		cfg.SummarizerAPIKey = v
	}
	if v := os.Getenv("SUMMARIZER_BASE_URL"); v != "" {
		cfg.SummarizerBaseURL = v
	}
	if v := os.Getenv("SUMMARIZER_MODEL"); v != "" {
		cfg.SummarizerModel = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("ALLOWED_CONTENT_TYPES"); v != "" {
		cfg.AllowedContentTypes = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendLocal
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = "data/blobs"
	}
	if cfg.SummarizerProvider == "" {
		cfg.SummarizerProvider = ProviderOpenAI
	}
	if cfg.SummarizerTimeoutSeconds <= 0 {
		cfg.SummarizerTimeoutSeconds = 30
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/pdf", "text/plain", "text/html"}
	}
	if cfg.UploadRateLimit <= 0 {
		cfg.UploadRateLimit = 30
	}
	if cfg.UploadRateWindowSeconds <= 0 {
		cfg.UploadRateWindowSeconds = 60
	}
	if cfg.ProcessConcurrency <= 0 {
		cfg.ProcessConcurrency = 4
	}
}

// SummarizerTimeout returns the per-call summarization timeout.
func (c FileConfig) SummarizerTimeout() time.Duration {
	return time.Duration(c.SummarizerTimeoutSeconds) * time.Second
}

// UploadRateWindow returns the upload rate-limit window.
func (c FileConfig) UploadRateWindow() time.Duration {
	return time.Duration(c.UploadRateWindowSeconds) * time.Second
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StorageBackend {
	case BackendLocal:
		if cfg.StoragePath == "" {
			return errors.New("config: storagePath is required for the local backend")
		}
	case BackendMinio:
		if cfg.MinioEndpoint == "" {
			return errors.New("config: minioEndpoint is required for the minio backend")
		}
		if cfg.MinioAccessKey == "" {
			return errors.New("config: minioAccessKey is required for the minio backend")
		}
		if cfg.MinioSecretKey == "" {
			return errors.New("config: minioSecretKey is required for the minio backend")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required for the minio backend")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q", cfg.StorageBackend)
	}
	switch cfg.SummarizerProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("config: unknown summarizerProvider %q", cfg.SummarizerProvider)
	}
	if cfg.SummarizerBaseURL == "" {
		return errors.New("config: summarizerBaseURL is required")
	}
	if cfg.SummarizerModel == "" {
		return errors.New("config: summarizerModel is required")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
