package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Sync      SyncConfig
	Presence  PresenceConfig
	Realtime  RealtimeConfig
	MinIO     MinIOConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig picks the backend of each store. Documents: memory, mongo or
// sqlite. Checkpoints and presence: memory or redis.
type StorageConfig struct {
	Documents   string
	Checkpoints string
	Presence    string
}

type MongoDBConfig struct {
	URI         string
	Database    string
	Collection  string
	Timeout     time.Duration
	MaxAttempts int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
}

// Addr is empty when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

// Issuer is the realm issuer URL, or URL itself when no realm is set.
func (k KeycloakConfig) Issuer() string {
	if k.Realm == "" {
		return k.URL
	}
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
	// AllowInsecure accepts unsigned tokens. Integration environments only.
	AllowInsecure bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type SyncConfig struct {
	// MaxStepsPerBatch bounds a single submitSteps payload.
	MaxStepsPerBatch int
	// MaxContentBytes bounds a submitted snapshot.
	MaxContentBytes int
	ArchiveSnapshots bool
}

type PresenceConfig struct {
	Interval time.Duration
	TTL      time.Duration
}

type RealtimeConfig struct {
	// MaxConnectionsPerUser caps websocket connections per caller; 0 is unlimited.
	MaxConnectionsPerUser int
	// AllowedOrigins for websocket upgrades; empty accepts any origin.
	AllowedOrigins []string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether an endpoint was configured.
func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

// LoadConfig loads configuration from environment variables and an optional
// .env file. Every setting has a default so the service starts with memory
// stores and no external dependencies.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DOCUMENT_STORE", BackendMemory)
	v.SetDefault("CHECKPOINT_STORE", BackendMemory)
	v.SetDefault("PRESENCE_STORE", BackendMemory)
	v.SetDefault("MONGODB_DATABASE", "collabdocs")
	v.SetDefault("MONGODB_COLLECTION", "documents")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_MAX_ATTEMPTS", 5)
	v.SetDefault("SQLITE_PATH", "collabdocs.db")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "collabdocs:")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("SYNC_MAX_STEPS_PER_BATCH", 500)
	v.SetDefault("SYNC_MAX_CONTENT_BYTES", 4<<20)
	v.SetDefault("SYNC_ARCHIVE_SNAPSHOTS", true)
	v.SetDefault("PRESENCE_INTERVAL_SECONDS", 10)
	v.SetDefault("PRESENCE_TTL_SECONDS", 25)
	v.SetDefault("REALTIME_MAX_CONNECTIONS_PER_USER", 16)
	v.SetDefault("MINIO_BUCKET", "collabdocs")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  time.Duration(v.GetInt("SERVER_READ_TIMEOUT")) * time.Second,
			WriteTimeout: time.Duration(v.GetInt("SERVER_WRITE_TIMEOUT")) * time.Second,
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Storage: StorageConfig{
			Documents:   strings.ToLower(v.GetString("DOCUMENT_STORE")),
			Checkpoints: strings.ToLower(v.GetString("CHECKPOINT_STORE")),
			Presence:    strings.ToLower(v.GetString("PRESENCE_STORE")),
		},
		MongoDB: MongoDBConfig{
			URI:         v.GetString("MONGODB_URI"),
			Database:    v.GetString("MONGODB_DATABASE"),
			Collection:  v.GetString("MONGODB_COLLECTION"),
			Timeout:     time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			MaxAttempts: v.GetInt("MONGODB_MAX_ATTEMPTS"),
		},
		SQLite: SQLiteConfig{
			Path: v.GetString("SQLITE_PATH"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Prefix:   v.GetString("REDIS_PREFIX"),
		},
		Keycloak: KeycloakConfig{
			URL:          v.GetString("KEYCLOAK_URL"),
			Realm:        v.GetString("KEYCLOAK_REALM"),
			ClientID:     v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: v.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			AllowInsecure:  v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Sync: SyncConfig{
			MaxStepsPerBatch: v.GetInt("SYNC_MAX_STEPS_PER_BATCH"),
			MaxContentBytes:  v.GetInt("SYNC_MAX_CONTENT_BYTES"),
			ArchiveSnapshots: v.GetBool("SYNC_ARCHIVE_SNAPSHOTS"),
		},
		Presence: PresenceConfig{
			Interval: time.Duration(v.GetInt("PRESENCE_INTERVAL_SECONDS")) * time.Second,
			TTL:      time.Duration(v.GetInt("PRESENCE_TTL_SECONDS")) * time.Second,
		},
		Realtime: RealtimeConfig{
			MaxConnectionsPerUser: v.GetInt("REALTIME_MAX_CONNECTIONS_PER_USER"),
			AllowedOrigins:        splitList(v.GetString("REALTIME_ALLOWED_ORIGINS")),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that every selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Storage.Documents {
	case BackendMemory, BackendSQLite:
	case BackendMongo:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("DOCUMENT_STORE=mongo requires MONGODB_URI")
		}
	default:
		return fmt.Errorf("unknown DOCUMENT_STORE %q", c.Storage.Documents)
	}
	for name, backend := range map[string]string{"CHECKPOINT_STORE": c.Storage.Checkpoints, "PRESENCE_STORE": c.Storage.Presence} {
		switch backend {
		case BackendMemory:
		case BackendRedis:
			if c.Redis.Addr() == "" {
				return fmt.Errorf("%s=redis requires REDIS_HOST", name)
			}
		default:
			return fmt.Errorf("unknown %s %q", name, backend)
		}
	}
	if c.Presence.TTL <= c.Presence.Interval {
		return fmt.Errorf("PRESENCE_TTL_SECONDS must exceed PRESENCE_INTERVAL_SECONDS")
	}
	if c.Sync.MaxStepsPerBatch <= 0 {
		return fmt.Errorf("SYNC_MAX_STEPS_PER_BATCH must be positive")
	}
	return nil
}
