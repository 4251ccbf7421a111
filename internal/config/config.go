package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by VERITY_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("VERITY_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "none": the verification core is deterministic unless
// embeddings are explicitly enabled.
// Valid values: openai, mock, none
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "none"
	}
	return p
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "openai":
		return OpenAIAPIKey()
	default:
		return ""
	}
}

// SemanticProvider returns the configured semantic matcher.
// Defaults to "lexical".
// Valid values: lexical, embedding, mock
func SemanticProvider() string {
	p := os.Getenv("SEMANTIC_PROVIDER")
	if p == "" {
		return "lexical"
	}
	return p
}

// ClassifierProvider returns the configured contradiction classifier.
// Defaults to "heuristic".
// Valid values: heuristic, anthropic, mock
func ClassifierProvider() string {
	p := os.Getenv("CLASSIFIER_PROVIDER")
	if p == "" {
		return "heuristic"
	}
	return p
}

// ClassifierAPIKey returns the API key for the configured classifier.
func ClassifierAPIKey() string {
	switch ClassifierProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	default:
		return ""
	}
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// NoiseGapThreshold returns the trust gap at which a conflict no longer
// requires disclosure. Defaults to 0.5.
func NoiseGapThreshold() float32 {
	return envFloat32("NOISE_GAP_THRESHOLD", 0.5)
}

// SemanticMatchThreshold returns the minimum similarity score for a
// semantic-tier grounding match. Defaults to 0.85.
func SemanticMatchThreshold() float32 {
	return envFloat32("SEMANTIC_MATCH_THRESHOLD", 0.85)
}

// TierWeightExact returns the confidence multiplier for exact-tier matches.
// Defaults to 1.0.
func TierWeightExact() float32 {
	return envFloat32("TIER_WEIGHT_EXACT", 1.0)
}

// TierWeightSemantic returns the confidence multiplier for semantic-tier
// matches. Defaults to 0.8.
func TierWeightSemantic() float32 {
	return envFloat32("TIER_WEIGHT_SEMANTIC", 0.8)
}

// MaxMemoriesPerVerify bounds how many memories one verification consults.
// Defaults to 64.
func MaxMemoriesPerVerify() int {
	n, err := strconv.Atoi(os.Getenv("MAX_MEMORIES_PER_VERIFY"))
	if err != nil || n <= 0 {
		return 64
	}
	return n
}

// LedgerTimeout bounds each ledger read or write. Defaults to 2s.
func LedgerTimeout() time.Duration {
	return envDuration("LEDGER_TIMEOUT", 2*time.Second)
}

// SweepInterval is how often the background sweeper scans recently updated
// threads. Defaults to 5m.
func SweepInterval() time.Duration {
	return envDuration("SWEEP_INTERVAL", 5*time.Minute)
}

// SweepLookback is how far back a thread's last write may be for the sweeper
// to pick it up. Defaults to 10m.
func SweepLookback() time.Duration {
	return envDuration("SWEEP_LOOKBACK", 10*time.Minute)
}

func envFloat32(key string, def float32) float32 {
	v, err := strconv.ParseFloat(os.Getenv(key), 32)
	if err != nil || v < 0 {
		return def
	}
	return float32(v)
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
