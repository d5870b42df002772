package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type LearningRates struct {
	Like     float64
	Unlike   float64
	Repost   float64
	Unrepost float64
	View     float64
}

type Config struct {
	Port                    string
	Env                     string
	FirebaseCredentialsPath string
	PostgresUrl             string
	MongoURI                string
	MongoDatabase           string
	MetricsPort             string

	AuthMode  string
	JWTSecret string

	RedisAddr    string
	RedisChannel string

	GeminiAPIKey   string
	EmbeddingModel string

	FeedRanking  string
	FeedPageSize int

	LogLevel  string
	LogFormat string

	RateLimit      float64
	LearningRates  LearningRates
	FollowCooldown time.Duration
}

// Load reads the configuration from the environment, after merging a .env
// file when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		PostgresUrl:             getEnv("POSTGRES_URL", "postgres://localhost:5432/threadline?sslmode=disable"),
		MongoURI:                getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:           getEnv("MONGO_DATABASE", "threadline"),
		MetricsPort:             getEnv("METRICS_PORT", "9090"),

		AuthMode:  getEnv("AUTH_MODE", "jwt"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "threadline:live"),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),

		FeedRanking:  getEnv("FEED_RANKING", "recency"),
		FeedPageSize: getEnvInt("FEED_PAGE_SIZE", 5),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		RateLimit: getEnvFloat("RATE_LIMIT", 20),
		LearningRates: LearningRates{
			Like:     getEnvFloat("LEARNING_RATE_LIKE", 0.1),
			Unlike:   getEnvFloat("LEARNING_RATE_UNLIKE", -0.1),
			Repost:   getEnvFloat("LEARNING_RATE_REPOST", 0.2),
			Unrepost: getEnvFloat("LEARNING_RATE_UNREPOST", -0.2),
			View:     getEnvFloat("LEARNING_RATE_VIEW", 0.05),
		},
		FollowCooldown: getEnvDuration("FOLLOW_COOLDOWN", 2*time.Hour),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
