package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	WebSocket WebSocketConfig
	Sync      SyncConfig
	Indexer   IndexerConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// DSN returns the CouchDB server URL.
func (c DatabaseConfig) DSN() string {
	if c.User == "" {
		return fmt.Sprintf("http://%s:%s", c.Host, c.Port)
	}
	return fmt.Sprintf("http://%s:%s@%s:%s", c.User, c.Password, c.Host, c.Port)
}

type AuthConfig struct {
	Password      string
	JWTSecret     string
	JWTExpiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	MaxMessageSize   int64
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	MaxConnPerDevice int
	SendBuffer       int
	MaxMissedPushes  int
}

type SyncConfig struct {
	BatchTimeout  time.Duration
	MaxOperations int
	// CommitSkew bounds how long a stamped write may take to become visible
	// to change queries.
	CommitSkew time.Duration
}

type IndexerConfig struct {
	URL          string
	QueueSize    int
	Timeout      time.Duration
	ChunkSize    int
	ChunkOverlap int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	Enabled           bool
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", 168*time.Hour)
	if err != nil {
		return nil, err
	}
	writeWait, err := getEnvAsDuration("WS_WRITE_WAIT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	pongWait, err := getEnvAsDuration("WS_PONG_WAIT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	batchTimeout, err := getEnvAsDuration("SYNC_BATCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	commitSkew, err := getEnvAsDuration("SYNC_COMMIT_SKEW", 2*time.Second)
	if err != nil {
		return nil, err
	}
	if commitSkew < 0 {
		return nil, fmt.Errorf("invalid SYNC_COMMIT_SKEW %s: must not be negative", commitSkew)
	}
	indexerTimeout, err := getEnvAsDuration("INDEXER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	driver := getEnv("DB_DRIVER", "couchdb")
	if driver != "couchdb" && driver != "memory" {
		return nil, fmt.Errorf("invalid DB_DRIVER %q: want couchdb or memory", driver)
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8000"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:   driver,
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "hexanote"),
		},
		Auth: AuthConfig{
			Password:      getEnv("AUTH_PASSWORD", "hexanote"),
			JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			JWTExpiration: jwtExp,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize:  getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:   int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 10485760)),
			WriteWait:        writeWait,
			PongWait:         pongWait,
			PingPeriod:       pongWait * 9 / 10,
			MaxConnPerDevice: getEnvAsInt("WS_MAX_CONN_PER_DEVICE", 5),
			SendBuffer:       getEnvAsInt("WS_SEND_BUFFER", 256),
			MaxMissedPushes:  getEnvAsInt("WS_MAX_MISSED_PUSHES", 3),
		},
		Sync: SyncConfig{
			BatchTimeout:  batchTimeout,
			MaxOperations: getEnvAsInt("SYNC_MAX_OPERATIONS", 500),
			CommitSkew:    commitSkew,
		},
		Indexer: IndexerConfig{
			URL:          getEnv("INDEXER_URL", ""),
			QueueSize:    getEnvAsInt("INDEXER_QUEUE_SIZE", 1024),
			Timeout:      indexerTimeout,
			ChunkSize:    getEnvAsInt("INDEXER_CHUNK_SIZE", 1500),
			ChunkOverlap: getEnvAsInt("INDEXER_CHUNK_OVERLAP", 200),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 30),
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-Device-ID"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
