package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig defines the HTTP listener and request gate.
type ServerConfig struct {
	Port            string
	AuthToken       string
	AuthDisabled    bool
	RateLimit       int
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
}

// RenderConfig defines rasterization output and concurrency.
type RenderConfig struct {
	Scale     float64
	Format    string
	Quality   int
	ColorMode string
	PadOdd    bool
	PadWidth  int
	PadHeight int
	Policy    string // "abort"|"skip"
	Workers   int
	Slots     int
}

// IntakeConfig defines what uploads are accepted.
type IntakeConfig struct {
	MaxBytes     int64
	MaxPages     int
	MaxLogoBytes int64
	AllowLocal   bool
	AllowPrivate bool
	FetchTimeout time.Duration
}

// ViewerConfig defines pagination and session behavior.
type ViewerConfig struct {
	Step       int
	Cover      bool
	Settle     time.Duration
	SessionTTL time.Duration
}

// RedisConfig points at the optional load status store.
type RedisConfig struct {
	URL       string
	StatusTTL time.Duration
}

// S3Config holds credentials for s3:// sources. Empty keys use the
// default AWS credential chain.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	HealthBucket string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Server  ServerConfig
	Render  RenderConfig
	Intake  IntakeConfig
	Viewer  ViewerConfig
	Redis   RedisConfig
	S3      S3Config
}

// Load reads a .env file when present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/flipbook.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_flipbook",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		AuthToken:       getEnv("AUTH_TOKEN", ""),
		AuthDisabled:    parseBool(getEnv("AUTH_DISABLED", "false")),
		RateLimit:       parseInt(getEnv("RATE_LIMIT", "120"), 120),
		RateWindow:      parseDuration(getEnv("RATE_WINDOW", "1m"), time.Minute),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "15s"), 15*time.Second),
	}

	cfg.Render = RenderConfig{
		Scale:     parseFloat(getEnv("RENDER_SCALE", "1.5"), 1.5),
		Format:    getEnv("RENDER_FORMAT", "png"),
		Quality:   parseInt(getEnv("RENDER_QUALITY", "90"), 90),
		ColorMode: getEnv("RENDER_COLOR", "rgb"),
		PadOdd:    parseBool(getEnv("RENDER_PAD_ODD", "true")),
		PadWidth:  parseInt(getEnv("RENDER_PAD_WIDTH", "800"), 800),
		PadHeight: parseInt(getEnv("RENDER_PAD_HEIGHT", "1200"), 1200),
		Policy:    getEnv("RENDER_POLICY", "abort"),
		Workers:   parseInt(getEnv("RENDER_WORKERS", "1"), 1),
		Slots:     parseInt(getEnv("RENDER_SLOTS", "2"), 2),
	}

	cfg.Intake = IntakeConfig{
		MaxBytes:     parseInt64(getEnv("INTAKE_MAX_BYTES", "104857600"), 100<<20),
		MaxPages:     parseInt(getEnv("INTAKE_MAX_PAGES", "500"), 500),
		MaxLogoBytes: parseInt64(getEnv("INTAKE_MAX_LOGO_BYTES", "5242880"), 5<<20),
		AllowLocal:   parseBool(getEnv("INTAKE_ALLOW_LOCAL", "false")),
		AllowPrivate: parseBool(getEnv("INTAKE_ALLOW_PRIVATE", "false")),
		FetchTimeout: parseDuration(getEnv("INTAKE_FETCH_TIMEOUT", "60s"), 60*time.Second),
	}

	cfg.Viewer = ViewerConfig{
		Step:       parseInt(getEnv("VIEWER_STEP", "1"), 1),
		Cover:      parseBool(getEnv("VIEWER_COVER", "false")),
		Settle:     parseDuration(getEnv("VIEWER_SETTLE", "600ms"), 600*time.Millisecond),
		SessionTTL: parseDuration(getEnv("SESSION_TTL", "2h"), 2*time.Hour),
	}

	cfg.Redis = RedisConfig{
		URL:       getEnv("REDIS_URL", ""),
		StatusTTL: parseDuration(getEnv("STATUS_TTL", "24h"), 24*time.Hour),
	}

	cfg.S3 = S3Config{
		Region:       getEnv("AWS_REGION", "us-east-1"),
		AccessKey:    getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		HealthBucket: getEnv("S3_HEALTH_BUCKET", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
