// Package config centralizes how attachvault reads its settings and exposes
// them as typed values. Environment variables win over the optional YAML file
// named by ATTACHVAULT_CONFIG, which wins over the built-in defaults.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the CLI, the document service
// and the extraction worker.
type Config struct {
	// Client side.
	DocServiceURL   string
	PrimaryStoreURL string
	AuthToken       string
	HTTPTimeout     time.Duration
	DownloadDir     string

	LogFile  string
	LogLevel slog.Level

	// Document service.
	Address           string
	PublicURL         string
	MaxFileSize       int64
	AllowedTypes      []string
	SigningSecret     []byte
	SignedURLTTL      time.Duration
	RequireSignedURLs bool
	ProcessingPool    int

	DatabaseURL string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
	Bucket      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

const envPrefix = "ATTACHVAULT_"

const (
	defaultDocServiceURL = "http://localhost:8080"
	defaultPrimaryURL    = "http://localhost:3000/api"
	defaultHTTPTimeout   = 2 * time.Minute
	defaultAddress       = ":8080"
	defaultMaxFileSize   = 25 << 20 // 25 MiB
	defaultAllowedTypes  = "application/pdf,image/png,image/jpeg,image/gif,text/plain," +
		"application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document," +
		"application/vnd.ms-excel,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultSignedTTL   = 15 * time.Minute
	defaultWorkerCount = 2
	defaultBucket      = "attachvault-documents"
	defaultLogFile     = "/tmp/attachvault.log"
)

// Load reads configuration from the environment and the optional YAML file,
// falling back to defaults.
func Load() (*Config, error) {
	src, err := newSource(os.Getenv(envPrefix + "CONFIG"))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		DocServiceURL:   strings.TrimRight(src.str("DOC_SERVICE_URL", defaultDocServiceURL), "/"),
		PrimaryStoreURL: strings.TrimRight(src.str("PRIMARY_STORE_URL", defaultPrimaryURL), "/"),
		AuthToken:       src.str("AUTH_TOKEN", ""),
		HTTPTimeout:     src.duration("HTTP_TIMEOUT", defaultHTTPTimeout),
		DownloadDir:     src.str("DOWNLOAD_DIR", "."),
		LogFile:         src.str("LOG_FILE", defaultLogFile),
		LogLevel:        ParseLogLevel(src.str("LOG_LEVEL", "INFO")),

		Address:           src.str("ADDRESS", defaultAddress),
		PublicURL:         strings.TrimRight(src.str("PUBLIC_URL", ""), "/"),
		MaxFileSize:       src.integer("MAX_FILE_BYTES", defaultMaxFileSize),
		AllowedTypes:      src.list("ALLOWED_TYPES", defaultAllowedTypes),
		SigningSecret:     src.secret("SIGNING_SECRET"),
		SignedURLTTL:      src.duration("SIGNED_TTL", defaultSignedTTL),
		RequireSignedURLs: src.boolean("REQUIRE_SIGNED_URLS", false),
		ProcessingPool:    int(src.integer("WORKERS", defaultWorkerCount)),

		DatabaseURL: src.str("DATABASE_URL", ""),

		S3Endpoint:  src.str("S3_ENDPOINT", ""),
		S3AccessKey: src.str("S3_ACCESS_KEY", ""),
		S3SecretKey: src.str("S3_SECRET_KEY", ""),
		S3Region:    src.str("S3_REGION", "us-east-1"),
		S3UseSSL:    src.boolean("S3_USE_SSL", false),
		Bucket:      src.str("S3_BUCKET", defaultBucket),

		RedisAddr:     src.str("REDIS_ADDR", ""),
		RedisPassword: src.str("REDIS_PASSWORD", ""),
		RedisDB:       int(src.integer("REDIS_DB", 0)),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.ProcessingPool <= 0 {
		cfg.ProcessingPool = defaultWorkerCount
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	return cfg, nil
}

// UsesPostgres reports whether the service should index into PostgreSQL
// rather than memory.
func (c *Config) UsesPostgres() bool { return c.DatabaseURL != "" }

// UsesS3 reports whether blobs go to S3/MinIO rather than memory.
func (c *Config) UsesS3() bool { return c.S3Endpoint != "" }

// UsesRedis reports whether extraction jobs go through asynq.
func (c *Config) UsesRedis() bool { return c.RedisAddr != "" }

// source resolves a key from the environment first, then the YAML file.
type source struct {
	file map[string]string
}

func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for k, v := range raw {
		// doc_service_url in YAML maps to ATTACHVAULT_DOC_SERVICE_URL.
		key := strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		switch tv := v.(type) {
		case []any:
			parts := make([]string, 0, len(tv))
			for _, p := range tv {
				parts = append(parts, fmt.Sprint(p))
			}
			s.file[key] = strings.Join(parts, ",")
		case nil:
		default:
			s.file[key] = fmt.Sprint(tv)
		}
	}
	return s, nil
}

func (s *source) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v, true
	}
	if v, ok := s.file[key]; ok && v != "" {
		return v, true
	}
	return "", false
}

func (s *source) str(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s *source) list(key, def string) []string {
	out := strings.Split(s.str(key, def), ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func (s *source) integer(key string, def int64) int64 {
	if v, ok := s.lookup(key); ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func (s *source) boolean(key string, def bool) bool {
	if v, ok := s.lookup(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func (s *source) duration(key string, def time.Duration) time.Duration {
	if v, ok := s.lookup(key); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func (s *source) secret(key string) []byte {
	if v, ok := s.lookup(key); ok {
		return []byte(v)
	}
	return nil
}

// ParseLogLevel maps DEBUG/INFO/WARN/ERROR to slog levels, defaulting to INFO.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
