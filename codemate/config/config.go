package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	LogDir        string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	PromptFile    string
	JWTSecret     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateLimitQPS  int
	DBUser        string
	DBPassword    string
	DBHost        string
	DBPort        string
	DBName        string
	RelayURL      string
	RelayToken    string
}

// LoadConfig reads the environment, after merging a .env file if one exists.
// Variables already set in the environment win over the file.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Port:          getEnv("PORT", "8000"),
		LogDir:        getEnv("LOG_DIR", "./logs"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1/chat/completions"),
		PromptFile:    getEnv("PROMPT_FILE", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RateLimitQPS:  getEnvInt("RATE_LIMIT_QPS", 5),
		DBUser:        getEnv("DB_USER", ""),
		DBPassword:    getEnv("DB_PASSWORD", ""),
		DBHost:        getEnv("DB_HOST", ""),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBName:        getEnv("DB_NAME", ""),
		RelayURL:      getEnv("RELAY_URL", "http://localhost:8000/ai-chat"),
		RelayToken:    getEnv("RELAY_TOKEN", ""),
	}
}

// JournalEnabled reports whether a Postgres journal is configured.
func (c Config) JournalEnabled() bool {
	return c.DBHost != "" && c.DBName != ""
}

func (c Config) RateLimitEnabled() bool {
	return c.RedisAddr != "" && c.RateLimitQPS > 0
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
