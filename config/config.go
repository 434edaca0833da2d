// Package config loads process-wide settings from the environment into
// a single Config struct, built once at startup and threaded explicitly
// into every component that needs it (catalog path, songs directory,
// bind address, CORS origins).
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-overridable setting for the process.
type Config struct {
	DBPath         string   // sqlite catalog file
	SongsDir       string   // directory audio files are ingested from
	BindHost       string
	BindPort       string
	AllowedOrigins []string // CORS allowlist for the HTTP/WS transport

	IdleTimeoutSec    int // session torn down after this many seconds without samples
	AttemptTimeoutSec int // a single analysis attempt is canceled after this long
}

// Load reads a .env file if present (ignored if missing) and builds a
// Config from the environment, falling back to sane defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBPath:            getEnv("DB_PATH", "musica.db"),
		SongsDir:          getEnv("SONGS_DIR", "songs"),
		BindHost:          getEnv("BIND_HOST", ""),
		BindPort:          getEnv("BIND_PORT", "5000"),
		AllowedOrigins:    splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
		IdleTimeoutSec:    getEnvInt("IDLE_TIMEOUT_SEC", 10),
		AttemptTimeoutSec: getEnvInt("ATTEMPT_TIMEOUT_SEC", 5),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Addr returns the host:port the HTTP/WS server should bind to.
func (c *Config) Addr() string {
	return c.BindHost + ":" + c.BindPort
}

// AllowsOrigin reports whether origin is permitted by AllowedOrigins.
func (c *Config) AllowsOrigin(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
