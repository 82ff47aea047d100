package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	AWS       AWSConfig       `yaml:"aws"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	APNs      APNsConfig      `yaml:"apns"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Assets    AssetsConfig    `yaml:"assets"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// AWSConfig holds object storage configuration
type AWSConfig struct {
	Region     string        `yaml:"region"`
	S3Bucket   string        `yaml:"s3_bucket"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	Endpoint   string        `yaml:"endpoint"` // S3-compatible endpoint (MinIO, Beget)
	PathStyle  bool          `yaml:"path_style"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	Expiry time.Duration `yaml:"expiry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RedisConfig configures the cross-instance event relay
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// APNsConfig configures the push fallback for offline users
type APNsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// RateLimitConfig holds per-user limits for mutating routes
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// DefaultPhoto is a stock photo given to every new account
type DefaultPhoto struct {
	Filename     string `yaml:"filename"`
	OriginalName string `yaml:"original_name"`
	Description  string `yaml:"description"`
}

// AssetsConfig holds upload limits and seed photos
type AssetsConfig struct {
	MaxUploadBytes int64          `yaml:"max_upload_bytes"`
	WatermarkBrand string         `yaml:"watermark_brand"`
	DefaultPhotos  []DefaultPhoto `yaml:"default_photos"`
}

// WebSocketConfig holds websocket session timings
type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	PongWait     time.Duration `yaml:"pong_wait"`
	SendBuffer   int           `yaml:"send_buffer"`
}

// Load reads configuration from a YAML file, then applies .env and environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env is optional; real environment variables win over it
	_ = godotenv.Load()
	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when a field is not set anywhere else
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
			MaxConns: 10,
		},
		AWS: AWSConfig{
			Region:     "us-east-1",
			PresignTTL: 15 * time.Minute,
		},
		JWT: JWTConfig{
			Issuer: "photo-trade",
			Expiry: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "photo-trade:events",
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		Assets: AssetsConfig{
			MaxUploadBytes: 10 << 20,
			WatermarkBrand: "PhotoTrade",
			DefaultPhotos: []DefaultPhoto{
				{
					Filename:     "IMG_6367.JPG",
					OriginalName: "Default Image 1",
					Description:  "Welcome to PhotoTrade! This is your first default image.",
				},
				{
					Filename:     "IMG_6368.JPG",
					OriginalName: "Default Image 2",
					Description:  "Welcome to PhotoTrade! This is your second default image.",
				},
			},
		},
		WebSocket: WebSocketConfig{
			PingInterval: 54 * time.Second,
			PongWait:     60 * time.Second,
			SendBuffer:   64,
		},
	}
}

// Validate checks the fields the server cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return errors.New("websocket.ping_interval must be shorter than websocket.pong_wait")
	}
	if c.APNs.Enabled && (c.APNs.KeyFile == "" || c.APNs.KeyID == "" || c.APNs.TeamID == "" || c.APNs.Topic == "") {
		return errors.New("apns requires key_file, key_id, team_id and topic")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	if c.MaxConns > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", c.MaxConns)
	}
	return dsn
}

func overrideWithEnv(cfg *Config) {
	if v := getEnvInt("SERVER_PORT"); v > 0 {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := getEnvInt("DB_PORT"); v > 0 {
		cfg.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}

	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.AWS.S3Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.AWS.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.AWS.SecretKey = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.AWS.Endpoint = v
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := getEnvDuration("JWT_EXPIRY"); v > 0 {
		cfg.JWT.Expiry = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}

	if v, ok := getEnvBool("REDIS_ENABLED"); ok {
		cfg.Redis.Enabled = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v, ok := getEnvBool("APNS_ENABLED"); ok {
		cfg.APNs.Enabled = v
	}
	if v := os.Getenv("APNS_KEY_FILE"); v != "" {
		cfg.APNs.KeyFile = v
	}
}

func getEnvInt(key string) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return 0
}

func getEnvBool(key string) (bool, bool) {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDuration(key string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return 0
}
