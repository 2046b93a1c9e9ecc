package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config centralizes runtime settings for the API and workers.
type Config struct {
	Port string

	LogLevel  string
	LogFormat string

	AuthToken string
	JWTSecret string

	CORSAllowedOrigins []string

	DatabaseURL string

	GeminiAPIKey            string
	GeminiBaseURL           string
	GeminiModel             string
	GeminiQuizModel         string
	GeminiChatModel         string
	GeminiTimeoutMS         int
	GeminiMaxRetries        int
	GeminiStreamIncremental bool

	AssemblyAIAPIKey       string
	AssemblyAIBaseURL      string
	AssemblyAIPollInterval time.Duration
	AssemblyAIMaxPolls     int

	TranscriptAPIKey     string
	TranscriptAPIBaseURL string

	PDFMaxPages    int
	PDFConcurrency int

	ResultCacheTTLSeconds int
	ResultCacheMaxEntries int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	MinioURLExpiry time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	MaxUploadBytes int64

	WorkerEnabled bool
}

// source resolves a key from the process environment first and then from
// the optional YAML file named by CONFIG_FILE.
type source struct {
	file map[string]string
}

// Load reads the configuration. Values set in the environment win over the
// YAML file, which wins over defaults.
func Load() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		values, err := readYAMLFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = values
	}
	return src.build(), nil
}

func (s source) build() Config {
	return Config{
		Port: s.getEnv("PORT", "8080"),

		LogLevel:  s.getEnv("LOG_LEVEL", "info"),
		LogFormat: s.getEnv("LOG_FORMAT", "json"),

		AuthToken: s.getEnv("API_AUTH_TOKEN", ""),
		JWTSecret: s.getEnv("JWT_SECRET", ""),

		CORSAllowedOrigins: s.getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		DatabaseURL: s.getEnv("DATABASE_URL", ""),

		GeminiAPIKey:            s.getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:           s.getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:             s.getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		GeminiQuizModel:         s.getEnv("GEMINI_MODEL_QUIZ", ""),
		GeminiChatModel:         s.getEnv("GEMINI_MODEL_CHAT", ""),
		GeminiTimeoutMS:         s.getEnvInt("GEMINI_TIMEOUT_MS", 60000),
		GeminiMaxRetries:        s.getEnvInt("GEMINI_MAX_RETRIES", 3),
		GeminiStreamIncremental: s.getEnvBool("GEMINI_STREAM_INCREMENTAL", false),

		AssemblyAIAPIKey:       s.getEnv("ASSEMBLYAI_API_KEY", ""),
		AssemblyAIBaseURL:      s.getEnv("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com"),
		AssemblyAIPollInterval: time.Duration(s.getEnvInt("ASSEMBLYAI_POLL_INTERVAL_MS", 5000)) * time.Millisecond,
		AssemblyAIMaxPolls:     s.getEnvInt("ASSEMBLYAI_MAX_POLLS", 60),

		TranscriptAPIKey:     s.getEnv("TRANSCRIPT_API_KEY", ""),
		TranscriptAPIBaseURL: s.getEnv("TRANSCRIPT_API_BASE_URL", "https://transcriptapi.com/api"),

		PDFMaxPages:    s.getEnvInt("PDF_MAX_PAGES", 500),
		PDFConcurrency: s.getEnvInt("PDF_CONCURRENCY", 4),

		ResultCacheTTLSeconds: s.getEnvInt("CACHE_TTL_SECONDS", 900),
		ResultCacheMaxEntries: s.getEnvInt("CACHE_MAX_ENTRIES", 2000),

		RedisAddr:     s.getEnv("REDIS_ADDR", ""),
		RedisPassword: s.getEnv("REDIS_PASSWORD", ""),
		RedisDB:       s.getEnvInt("REDIS_DB", 0),
		RedisStream:   s.getEnv("REDIS_STREAM", "studyhub_jobs"),
		RedisDLQ:      s.getEnv("REDIS_DLQ_STREAM", "studyhub_jobs_dlq"),
		RedisGroup:    s.getEnv("REDIS_GROUP", "studyhub_workers"),
		RedisConsumer: s.getEnv("REDIS_CONSUMER", "api-1"),

		MinioEndpoint:  s.getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: s.getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: s.getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    s.getEnv("MINIO_BUCKET_NAME", "studyhub-uploads"),
		MinioRegion:    s.getEnv("MINIO_REGION", ""),
		MinioUseSSL:    s.getEnvBool("MINIO_USE_SSL", false),
		MinioURLExpiry: time.Duration(s.getEnvInt("MINIO_URL_EXPIRY_SECONDS", 3600)) * time.Second,

		RateLimitRPS:   s.getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: s.getEnvInt("RATE_LIMIT_BURST", 40),

		MaxUploadBytes: int64(s.getEnvInt("MAX_UPLOAD_BYTES", 50<<20)),

		WorkerEnabled: s.getEnvBool("WORKER_ENABLED", true),
	}
}

// readYAMLFile accepts a flat mapping of the same keys used in the
// environment, e.g. `GEMINI_MODEL: gemini-2.5-flash`.
func readYAMLFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var decoded map[string]any
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	values := make(map[string]string, len(decoded))
	for key, value := range decoded {
		if value == nil {
			continue
		}
		switch typed := value.(type) {
		case []any:
			items := make([]string, 0, len(typed))
			for _, item := range typed {
				items = append(items, fmt.Sprint(item))
			}
			values[strings.ToUpper(key)] = strings.Join(items, ",")
		default:
			values[strings.ToUpper(key)] = fmt.Sprint(typed)
		}
	}
	return values, nil
}

func (s source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s source) getEnv(key, fallback string) string {
	value := s.lookup(key)
	if value == "" {
		return fallback
	}
	return value
}

func (s source) getEnvInt(key string, fallback int) int {
	value := s.lookup(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) getEnvFloat(key string, fallback float64) float64 {
	value := s.lookup(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) getEnvBool(key string, fallback bool) bool {
	value := s.lookup(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) getEnvList(key string, fallback []string) []string {
	value := s.lookup(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
