package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken        string
	AdminChatID     int64
	DailyLimit      int
	GenAPIKey       string
	GenBaseURL      string
	GenEditPath     string
	SourceProvider  string
	SourceAPIURL    string
	SourceAPIKey    string
	PublicBaseURL   string
	DataDir         string
	RequestTimeout  time.Duration
	ListenAddr      string
	AdminUsername   string
	AdminPassword   string
	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
// Missing required variables are collected and reported in one error; the
// process must not start without them.
func Load() (Config, error) {
	loadEnvFile()

	cfg := Config{
		DailyLimit:      getInt("DAILY_LIMIT", 27),
		GenBaseURL:      getEnv("GEN_BASE_URL", "https://api.kie.ai"),
		GenEditPath:     getEnv("GEN_EDIT_PATH", "/api/v1/playground/edit"),
		SourceProvider:  getEnv("SOURCE_PROVIDER", "instagram"),
		SourceAPIURL:    getEnv("SOURCE_API_URL", "https://api.scrapecreators.com"),
		PublicBaseURL:   getEnv("PUBLIC_BASE_URL", ""),
		DataDir:         getEnv("DATA_DIR", "data"),
		RequestTimeout:  time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		AdminUsername:   getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        os.Getenv("S3_REGION"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:  getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:        getEnv("S3_PREFIX", "photos"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.GenAPIKey = os.Getenv("GEN_API_KEY")
	cfg.SourceAPIKey = os.Getenv("SOURCE_API_KEY")
	cfg.AdminChatID = getInt64("ADMIN_CHAT_ID", 0)

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.GenAPIKey == "" {
		missing = append(missing, "GEN_API_KEY")
	}
	if cfg.AdminChatID == 0 {
		missing = append(missing, "ADMIN_CHAT_ID")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = 27
	}

	return cfg, nil
}

// S3Enabled reports whether the optional S3 re-hosting is fully configured.
func (c Config) S3Enabled() bool {
	return c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" &&
		c.S3Bucket != "" && c.S3PublicBaseURL != ""
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

// loadEnvFile loads the first .env file found; a missing file is fine, the
// environment may be set by the process manager.
func loadEnvFile() {
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
			continue
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err == nil {
			return
		}
	}
}
