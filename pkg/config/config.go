package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Rate limit backends supported by the chat support intake.
const (
	RateLimitBackendPostgres = "postgres"
	RateLimitBackendRedis    = "redis"
	RateLimitBackendMemory   = "memory"
)

// Rate limit key strategies.
const (
	RateLimitKeySchoolID      = "school_id"
	RateLimitKeyEmail         = "email"
	RateLimitKeySchoolIDEmail = "school_id_email"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Kafka       KafkaConfig
	Metrics     MetricsConfig
	Swagger     SwaggerConfig
	ChatSupport ChatSupportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig only carries verification material; tokens are issued elsewhere.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// KafkaConfig configures the support request event producer. Empty brokers disable publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// SwaggerConfig toggles the API docs route outside production.
type SwaggerConfig struct {
	Enabled bool
}

// ChatSupportConfig governs the voter support request workflow.
type ChatSupportConfig struct {
	Cooldown          time.Duration
	RateLimitKey      string
	RateLimitBackend  string
	StoreTimeout      time.Duration
	ExportTimeout     time.Duration
	StrictTransitions bool
	BulkMaxItems      int
	StatsCacheTTL     time.Duration
	FAQFile           string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Kafka = KafkaConfig{
		Brokers: splitAndTrim(v.GetString("KAFKA_BROKERS")),
		Topic:   v.GetString("KAFKA_TOPIC"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}
	cfg.Swagger = SwaggerConfig{Enabled: v.GetBool("ENABLE_SWAGGER")}

	bulkMax := v.GetInt("CHAT_SUPPORT_BULK_MAX")
	if bulkMax <= 0 {
		bulkMax = 500
	}
	cfg.ChatSupport = ChatSupportConfig{
		Cooldown:          parseDuration(v.GetString("CHAT_SUPPORT_COOLDOWN"), 5*time.Minute),
		RateLimitKey:      normalizeChoice(v.GetString("CHAT_SUPPORT_RATE_LIMIT_KEY"), RateLimitKeySchoolID, RateLimitKeySchoolID, RateLimitKeyEmail, RateLimitKeySchoolIDEmail),
		RateLimitBackend:  normalizeChoice(v.GetString("CHAT_SUPPORT_RATE_LIMIT_BACKEND"), RateLimitBackendPostgres, RateLimitBackendPostgres, RateLimitBackendRedis, RateLimitBackendMemory),
		StoreTimeout:      parseDuration(v.GetString("CHAT_SUPPORT_STORE_TIMEOUT"), 5*time.Second),
		ExportTimeout:     parseDuration(v.GetString("CHAT_SUPPORT_EXPORT_TIMEOUT"), 2*time.Minute),
		StrictTransitions: v.GetBool("CHAT_SUPPORT_STRICT_TRANSITIONS"),
		BulkMaxItems:      bulkMax,
		StatsCacheTTL:     parseDuration(v.GetString("CHAT_SUPPORT_STATS_CACHE_TTL"), time.Minute),
		FAQFile:           v.GetString("CHAT_SUPPORT_FAQ_FILE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "voter_support")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "chat-support.events")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("ENABLE_SWAGGER", true)

	v.SetDefault("CHAT_SUPPORT_COOLDOWN", "5m")
	v.SetDefault("CHAT_SUPPORT_RATE_LIMIT_KEY", RateLimitKeySchoolID)
	v.SetDefault("CHAT_SUPPORT_RATE_LIMIT_BACKEND", RateLimitBackendPostgres)
	v.SetDefault("CHAT_SUPPORT_STORE_TIMEOUT", "5s")
	v.SetDefault("CHAT_SUPPORT_EXPORT_TIMEOUT", "2m")
	v.SetDefault("CHAT_SUPPORT_STRICT_TRANSITIONS", false)
	v.SetDefault("CHAT_SUPPORT_BULK_MAX", 500)
	v.SetDefault("CHAT_SUPPORT_STATS_CACHE_TTL", "1m")
	v.SetDefault("CHAT_SUPPORT_FAQ_FILE", "./config/faqs.yaml")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// normalizeChoice lower-cases raw and returns it when it is one of allowed, otherwise fallback.
func normalizeChoice(raw, fallback string, allowed ...string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allowed {
		if value == candidate {
			return value
		}
	}
	return fallback
}
