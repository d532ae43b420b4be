package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/annotation-sync/internal/types"
)

// Config represents the application configuration sourced from the environment.
type Config struct {
	AppName            string
	ServerURL          string
	Tracks             []types.TrackID
	PollTimeout        time.Duration
	EditTimeout        time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisChannelPrefix string
	BridgeListenAddr   string
	MetricsAddr        string
	MetadataCacheSize  int
	ShutdownTimeout    time.Duration
	HealthcheckProbe   time.Duration
	OTLPEndpoint       string
	OTELSampleRatio    float64
}

// RedisEnabled reports whether notifications are relayed through redis.
func (c Config) RedisEnabled() bool { return c.RedisAddr != "" }

// Load reads configuration from the environment while applying sensible defaults
// for local development.
func Load() (Config, error) {
	cfg := Config{
		AppName:            getEnv("APP_NAME", "annotation-sync"),
		ServerURL:          getEnv("SERVER_URL", "http://localhost:8080/apollo"),
		PollTimeout:        getDuration("POLL_TIMEOUT", 5*time.Minute),
		EditTimeout:        getDuration("EDIT_TIMEOUT", 1000*time.Second),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		RedisChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "annotations:"),
		BridgeListenAddr:   getEnv("BRIDGE_LISTEN_ADDR", ":8090"),
		MetricsAddr:        getEnv("METRICS_LISTEN_ADDR", ":9090"),
		MetadataCacheSize:  getInt("METADATA_CACHE_SIZE", 256),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HealthcheckProbe:   getDuration("HEALTHCHECK_INTERVAL", 30*time.Second),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELSampleRatio:    getFloat("OTEL_SAMPLE_RATIO", 0),
	}
	for _, name := range getList("TRACKS") {
		cfg.Tracks = append(cfg.Tracks, types.TrackID(name))
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("server url %q must be an absolute http(s) url", cfg.ServerURL)
	}
	if cfg.PollTimeout <= 0 || cfg.EditTimeout <= 0 {
		return Config{}, fmt.Errorf("poll and edit timeouts must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// getList splits a comma separated variable, dropping empty entries.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
