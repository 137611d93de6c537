package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Batch    BatchConfig    `yaml:"batch"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver" validate:"oneof=postgres sqlite"`
	DSN              string        `yaml:"dsn" validate:"required"`
	MaxConns         int32         `yaml:"max_conns" validate:"gte=1"`
	MinConns         int32         `yaml:"min_conns" validate:"gte=0"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr      string `yaml:"http_addr" validate:"required"`
	GRPCAddr      string `yaml:"grpc_addr"`
	MaxUploadMB   int    `yaml:"max_upload_mb" validate:"gte=1"`
	SessionCookie string `yaml:"session_cookie" validate:"required"`
}

// GeminiConfig holds configuration for the external extraction model
type GeminiConfig struct {
	APIKey               string        `yaml:"api_key" validate:"required"`
	Model                string        `yaml:"model" validate:"required"`
	ExtractTemperature   float32       `yaml:"extract_temperature" validate:"gte=0,lte=2"`
	StructureTemperature float32       `yaml:"structure_temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens      int32         `yaml:"max_output_tokens" validate:"gte=1"`
	Timeout              time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerMinute    int           `yaml:"requests_per_minute" validate:"gte=0"`
}

// BatchConfig holds grading batch configuration
type BatchConfig struct {
	Workers           int           `yaml:"workers" validate:"gte=1,lte=32"`
	ImageTimeout      time.Duration `yaml:"image_timeout"`
	TempDir           string        `yaml:"temp_dir"`
	MaxImageDimension int           `yaml:"max_image_dimension" validate:"gte=0"`
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:      getEnv("GRPC_ADDR", ":9090"),
			MaxUploadMB:   getEnvAsInt("MAX_UPLOAD_MB", 64),
			SessionCookie: getEnv("SESSION_COOKIE", "session_id"),
		},
		Gemini: GeminiConfig{
			APIKey:               getEnv("GEMINI_API_KEY", ""),
			Model:                getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			ExtractTemperature:   getEnvAsFloat32("GEMINI_EXTRACT_TEMPERATURE", 0),
			StructureTemperature: getEnvAsFloat32("GEMINI_STRUCTURE_TEMPERATURE", 1),
			MaxOutputTokens:      getEnvAsInt32("GEMINI_MAX_OUTPUT_TOKENS", 2048),
			Timeout:              getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
			RequestsPerMinute:    getEnvAsInt("GEMINI_RPM", 30),
		},
		Batch: BatchConfig{
			Workers:           getEnvAsInt("BATCH_WORKERS", 1),
			ImageTimeout:      getEnvAsDuration("BATCH_IMAGE_TIMEOUT", 3*time.Minute),
			TempDir:           getEnv("BATCH_TEMP_DIR", ""),
			MaxImageDimension: getEnvAsInt("BATCH_MAX_IMAGE_DIM", 2048),
		},
	}
}

// LoadConfigFile loads configuration from the environment and then overlays the
// YAML file at path. Keys missing from the file keep their environment value.
func LoadConfigFile(path string) (*Config, error) {
	cfg := LoadConfig()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid configuration", err)
	}
	return nil
}
