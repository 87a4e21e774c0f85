package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Weights are the SeverityEngine's per-dimension component weights. They
// must sum to 1.0 within Tolerance.
type Weights struct {
	Behavioral float64
	Content    float64
	Temporal   float64
	Repository float64
}

// DefaultWeights returns the spec's default component weights.
func DefaultWeights() Weights {
	return Weights{Behavioral: 0.25, Content: 0.35, Temporal: 0.20, Repository: 0.20}
}

// WeightTolerance is the allowed slack around a sum of 1.0.
const WeightTolerance = 0.01

// Validate rejects a weight set that does not sum to 1.0 within tolerance.
// Configuration errors must be caught at load time, never at scoring time.
func (w Weights) Validate() error {
	sum := w.Behavioral + w.Content + w.Temporal + w.Repository
	if sum < 1.0-WeightTolerance || sum > 1.0+WeightTolerance {
		return fmt.Errorf("config: detection weights sum to %.4f, want 1.0 ± %.2f", sum, WeightTolerance)
	}
	return nil
}

// QueueCapacities holds the per-band PriorityQueue capacity.
type QueueCapacities struct {
	Critical, High, Medium, Low, Info int
}

// DefaultQueueCapacities returns the spec's per-band sizes.
func DefaultQueueCapacities() QueueCapacities {
	return QueueCapacities{Critical: 1000, High: 2000, Medium: 5000, Low: 10000, Info: 20000}
}

// Config holds all engine configuration values.
type Config struct {
	Env             string
	GracefulTimeout time.Duration

	// Redis backing the KV store, priority queue, pub/sub, and caches.
	RedisURL string

	// Optional local warm-restart snapshot cache (bbolt). Empty disables it.
	LocalCachePath string

	// GitHub REST access.
	GitHubToken     string
	GitHubUserAgent string
	GitHubAPIBase   string

	// Rate-limit coordination (§5).
	GitHubSemaphoreSlots int
	GitHubSafetyMargin   int
	CircuitBreakerFloor  int
	CircuitBreakerReopen int
	CircuitBreakerWindow time.Duration

	// Detection.
	Weights Weights

	// Batch orchestration.
	BatchSize      int
	BatchDeadline  time.Duration
	DequeueBands   []string

	// Profile update rate limits (§4.5).
	UserUpdateInterval time.Duration
	RepoUpdateInterval time.Duration

	// Queue capacities (§4.7).
	QueueCapacities QueueCapacities

	LogLevel string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                  getEnv("ENV", "development"),
		GracefulTimeout:      time.Duration(getEnvInt("ENGINE_GRACEFUL_TIMEOUT_SEC", 15)) * time.Second,
		RedisURL:             getEnv("REDIS_URL", "redis://redis:6379"),
		LocalCachePath:       getEnv("ENGINE_LOCAL_CACHE_PATH", ""),
		GitHubToken:          getEnv("GITHUB_TOKEN", ""),
		GitHubUserAgent:      getEnv("GITHUB_USER_AGENT", "ghanomaly-engine/1.0"),
		GitHubAPIBase:        getEnv("GITHUB_API_BASE", "https://api.github.com"),
		GitHubSemaphoreSlots: getEnvInt("GITHUB_SEMAPHORE_SLOTS", 3),
		GitHubSafetyMargin:   getEnvInt("GITHUB_SAFETY_MARGIN", 500),
		CircuitBreakerFloor:  getEnvInt("GITHUB_CIRCUIT_FLOOR", 50),
		CircuitBreakerReopen: getEnvInt("GITHUB_CIRCUIT_REOPEN", 1000),
		CircuitBreakerWindow: time.Duration(getEnvInt("GITHUB_CIRCUIT_WINDOW_SEC", 1800)) * time.Second,
		Weights:              DefaultWeights(),
		BatchSize:            getEnvInt("ENGINE_BATCH_SIZE", 50),
		BatchDeadline:        time.Duration(getEnvInt("ENGINE_BATCH_DEADLINE_MS", 2000)) * time.Millisecond,
		DequeueBands:         []string{"critical", "high", "medium", "low", "info"},
		UserUpdateInterval:   time.Duration(getEnvInt("ENGINE_USER_UPDATE_INTERVAL_SEC", 3600)) * time.Second,
		RepoUpdateInterval:   time.Duration(getEnvInt("ENGINE_REPO_UPDATE_INTERVAL_SEC", 1800)) * time.Second,
		QueueCapacities:      DefaultQueueCapacities(),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
