package config

import (
	"os"
	"strconv"
	"time"
)

// Version is served verbatim by GET /version.
const Version = "0.8.0"

// Engine names accepted by SERVER_ENGINE.
const (
	EngineHertz = "hertz"
	EngineEcho  = "echo"
)

type Config struct {
	Addr   string
	Engine string

	// Admin endpoints are registered only when both credentials are set.
	AdminUsername string
	AdminPassword string

	SendBuffer   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		Addr:          getEnv("SERVER_ADDR", ":8080"),
		Engine:        getEnv("SERVER_ENGINE", EngineHertz),
		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		SendBuffer:    getEnvInt("SEND_BUFFER", 256),
		ReadTimeout:   60 * time.Second,
		WriteTimeout:  10 * time.Second,
		PingInterval:  54 * time.Second,
	}
	if cfg.Engine != EngineEcho {
		cfg.Engine = EngineHertz
	}
	return cfg
}

// AdminEnabled reports whether the admin surface should be registered.
func (c *Config) AdminEnabled() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
