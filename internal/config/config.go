package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr       string
	BackendURL       string
	ImageOrigin      string
	DBPath           string
	StagingPath      string
	DefaultAgentID   int64
	MaxImages        int
	UploadAttempts   int
	UploadRetryDelay time.Duration
	VerifyAfterSave  bool
	HTTPTimeout      time.Duration
	CORSOrigins      []string
	LogLevel         string
	LogFile          string
	LogFormat        string
}

// Load reads configuration from the environment. A .env file in the working
// directory (or the paths given) is applied first when present; variables that
// are already set win over the file.
func Load(envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "files", envFiles, "error", err)
	}

	backendURL := strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8081"), "/")

	return &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		BackendURL:       backendURL,
		ImageOrigin:      strings.TrimRight(getEnv("IMAGE_ORIGIN", backendURL), "/"),
		DBPath:           getEnv("DB_PATH", "/data/proplist.db"),
		StagingPath:      getEnv("STAGING_PATH", "/data/staging"),
		DefaultAgentID:   int64(getEnvInt("DEFAULT_AGENT_ID", 1)),
		MaxImages:        getEnvInt("MAX_IMAGES", 5),
		UploadAttempts:   getEnvInt("UPLOAD_ATTEMPTS", 3),
		UploadRetryDelay: getEnvDuration("UPLOAD_RETRY_DELAY", 2*time.Second),
		VerifyAfterSave:  getEnvBool("VERIFY_AFTER_SAVE", false),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          getEnv("LOG_FILE", ""),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", val)
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
