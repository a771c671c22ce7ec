package config

import (
	"os"
	"strconv"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	RabbitMQ   RabbitMQConfig
	Storage    StorageConfig
	JWT        JWTConfig
	ContentGen ContentGenConfig
	Policy     PolicyConfig
	AntiCheat  AntiCheatConfig
}

type ServerConfig struct {
	HTTPPort string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	Host     string
	Port     string
	User     string
	Password string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret string
}

type ContentGenConfig struct {
	BaseURL string
	APIKey  string
}

type PolicyConfig struct {
	BaseURL string
}

type AntiCheatConfig struct {
	// FocusLossThresholdMs is how long a participant may stay unfocused
	// before a violation is recorded.
	FocusLossThresholdMs int
	ReportQueue          string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: getEnv("HTTP_PORT", "8080"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "quizroom"),
			Password: getEnv("DB_PASSWORD", "quizroom_password"),
			DBName:   getEnv("DB_NAME", "quizroom"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "redis"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			Host:     getEnv("RABBITMQ_HOST", "rabbitmq"),
			Port:     getEnv("RABBITMQ_PORT", "5672"),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("STORAGE_ENDPOINT", "minio:9000"),
			AccessKey: getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("STORAGE_BUCKET", "study-materials"),
			UseSSL:    getEnvAsBool("STORAGE_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		},
		ContentGen: ContentGenConfig{
			BaseURL: getEnv("CONTENTGEN_URL", "http://contentgen:8090"),
			APIKey:  getEnv("CONTENTGEN_API_KEY", ""),
		},
		Policy: PolicyConfig{
			BaseURL: getEnv("POLICY_URL", "http://policy:8091"),
		},
		AntiCheat: AntiCheatConfig{
			FocusLossThresholdMs: getEnvAsInt("ANTICHEAT_THRESHOLD_MS", 2500),
			ReportQueue:          getEnv("ANTICHEAT_REPORT_QUEUE", "cheat_reports"),
		},
	}
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
