package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGemini = "gemini"
	BackendKIE    = "kie"

	LedgerFile  = "file"
	LedgerMySQL = "mysql"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr      string
	AdminListenAddr string
	AccessPassword  string
	AdminUsername   string
	AdminPassword   string

	DataDir       string
	UsageFile     string
	LedgerBackend string
	MySQLDSN      string
	DailyLimit    int
	RetentionDays int
	Location      *time.Location
	PruneSchedule string

	ImageBackend            string
	GeminiAPIKey            string
	ImageModel              string
	AnalysisModel           string
	KIEAPIKey               string
	KIEBaseURL              string
	KIEModel                string
	RequestTimeout          time.Duration
	MaxAttempts             int
	RetryInitialInterval    time.Duration
	GenerationRatePerMinute int
	MaxUploadBytes          int64

	SessionTTL time.Duration
	RunTTL     time.Duration
	RulesFile  string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string

	TelegramBotToken     string
	TelegramAdminChatIDs []int64

	LogLevel string
	Debug    bool
}

// StorageEnabled reports whether S3 settings are complete.
func (c Config) StorageEnabled() bool {
	return c.S3Bucket != "" && c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3PublicBaseURL != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultKIEBaseURL = "https://api.kie.ai"

	cfg := Config{
		ListenAddr:              getEnv("LISTEN_ADDR", ":8080"),
		AdminListenAddr:         getEnv("ADMIN_LISTEN_ADDR", ":8081"),
		AccessPassword:          os.Getenv("ACCESS_PASSWORD"),
		AdminUsername:           getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:           os.Getenv("ADMIN_PASSWORD"),
		DataDir:                 getEnv("DATA_DIR", "/data"),
		LedgerBackend:           strings.ToLower(getEnv("LEDGER_BACKEND", LedgerFile)),
		MySQLDSN:                os.Getenv("MYSQL_DSN"),
		DailyLimit:              getInt("DAILY_LIMIT", 50),
		RetentionDays:           getInt("RETENTION_DAYS", 7),
		PruneSchedule:           getEnv("PRUNE_SCHEDULE", "@daily"),
		ImageBackend:            strings.ToLower(getEnv("IMAGE_BACKEND", BackendGemini)),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		ImageModel:              getEnv("IMAGE_MODEL", "gemini-2.0-flash-exp"),
		AnalysisModel:           getEnv("ANALYSIS_MODEL", "gemini-2.0-flash-exp"),
		KIEAPIKey:               os.Getenv("KIE_API_KEY"),
		KIEBaseURL:              normalizeKIEBaseURL(getEnv("KIE_BASE_URL", defaultKIEBaseURL), defaultKIEBaseURL),
		KIEModel:                getEnv("KIE_MODEL", "nano-banana-pro"),
		RequestTimeout:          time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		MaxAttempts:             getInt("GENERATION_MAX_ATTEMPTS", 3),
		RetryInitialInterval:    time.Millisecond * time.Duration(getInt("GENERATION_RETRY_INITIAL_MS", 1000)),
		GenerationRatePerMinute: getInt("GENERATION_RATE_PER_MINUTE", 30),
		MaxUploadBytes:          getInt64("MAX_UPLOAD_BYTES", 20<<20),
		SessionTTL:              time.Hour * time.Duration(getInt("SESSION_TTL_HOURS", 12)),
		RunTTL:                  time.Minute * time.Duration(getInt("RUN_TTL_MINUTES", 30)),
		RulesFile:               os.Getenv("RULES_FILE"),
		S3Endpoint:              getEnv("S3_ENDPOINT", ""),
		S3Region:                os.Getenv("S3_REGION"),
		S3AccessKey:             os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:             os.Getenv("S3_SECRET_KEY"),
		S3Bucket:                os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:         os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:          getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:                getEnv("S3_PREFIX", "productshot"),
		TelegramBotToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Debug:                   getBool("DEBUG", false),
	}

	loc, err := loadLocation(os.Getenv("TIMEZONE"))
	if err != nil {
		return Config{}, err
	}
	cfg.Location = loc

	ids, err := parseChatIDs(os.Getenv("TELEGRAM_ADMIN_CHAT_IDS"))
	if err != nil {
		return Config{}, err
	}
	cfg.TelegramAdminChatIDs = ids

	var missing []string
	if cfg.AccessPassword == "" {
		missing = append(missing, "ACCESS_PASSWORD")
	}
	if cfg.AdminPassword == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}
	switch cfg.ImageBackend {
	case BackendGemini:
		if cfg.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case BackendKIE:
		if cfg.KIEAPIKey == "" {
			missing = append(missing, "KIE_API_KEY")
		}
		if !cfg.StorageEnabled() {
			missing = append(missing, "S3_BUCKET/S3_REGION/S3_ACCESS_KEY/S3_SECRET_KEY/S3_PUBLIC_BASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("unsupported IMAGE_BACKEND %q", cfg.ImageBackend)
	}
	switch cfg.LedgerBackend {
	case LedgerFile:
	case LedgerMySQL:
		if cfg.MySQLDSN == "" {
			missing = append(missing, "MYSQL_DSN")
		}
	default:
		return Config{}, fmt.Errorf("unsupported LEDGER_BACKEND %q", cfg.LedgerBackend)
	}
	if len(cfg.TelegramAdminChatIDs) > 0 && cfg.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.DailyLimit <= 0 {
		return Config{}, fmt.Errorf("DAILY_LIMIT must be positive, got %d", cfg.DailyLimit)
	}

	return cfg, nil
}

// EnsureDataDir creates the data directory, falling back to ./data when the
// configured one cannot be created, and sets UsageFile.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		if !errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("create data dir %s: %w", c.DataDir, err)
		}
		c.DataDir = "data"
		if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir %s: %w", c.DataDir, err)
		}
	}
	c.UsageFile = filepath.Join(c.DataDir, "usage.json")
	return nil
}

// normalizeKIEBaseURL ensures we always hit the documented API host. Some docs and UI pages
// use the root kie.ai domain, which returns HTML instead of JSON.
func normalizeKIEBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	if parsed.Host == "kie.ai" {
		parsed.Host = "api.kie.ai"
	}

	return parsed.String()
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func parseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse TELEGRAM_ADMIN_CHAT_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile loads the first .env candidate found. Running without one is fine.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
