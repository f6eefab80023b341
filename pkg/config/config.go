// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
	"github.com/labstack/gommon/log"
)

// Config holds process-level settings for the HTTP server.
type Config struct {
	// Host is the listen address. Default: 0.0.0.0
	Host string
	// Port is the listen port. Default: 8000
	Port int

	// AllowedOrigins lists CORS origins. A "*" entry allows any origin and
	// disables credentials. Default: *
	AllowedOrigins []string

	// DeepgramAPIKey enables transcription when set.
	DeepgramAPIKey string
	// ModelPath points at classification assets. Detected but unused.
	ModelPath string
	// APIKey, when set, is required in X-API-Key on every route but /health.
	APIKey string
	// TempoCommand is an external beat tracker; empty selects the built-in estimator.
	TempoCommand string

	// SampleRate uploads are decoded at. Default: 44100
	SampleRate int
	// MaxUpload is the request body limit, e.g. "100M". Default: 100M
	MaxUpload string
	// LogLevel is one of debug, info, warn, error, off. Default: info
	LogLevel string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8000,
		AllowedOrigins: []string{"*"},
		SampleRate:     44100,
		MaxUpload:      "100M",
		LogLevel:       "info",
	}
}

// Load reads the given .env files (".env" when none are named) into the
// environment without overriding it, then builds a Config from the
// environment. Missing .env files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
		log.Debugf("loaded environment from %s", f)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables over Default.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	cfg.DeepgramAPIKey = os.Getenv("DEEPGRAM_API_KEY")
	cfg.ModelPath = os.Getenv("MODEL_PATH")
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.TempoCommand = os.Getenv("TEMPO_COMMAND")
	if v := os.Getenv("SAMPLE_RATE"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return Config{}, fmt.Errorf("invalid SAMPLE_RATE %q", v)
		}
		cfg.SampleRate = rate
	}
	if v := os.Getenv("MAX_UPLOAD"); v != "" {
		cfg.MaxUpload = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	return cfg, cfg.Validate()
}

// Validate checks values that are parsed lazily by their consumers.
func (c Config) Validate() error {
	if _, err := bytes.Parse(c.MaxUpload); err != nil {
		return fmt.Errorf("invalid MAX_UPLOAD %q: %w", c.MaxUpload, err)
	}
	if _, ok := levels[c.LogLevel]; !ok {
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS is empty")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AllowCredentials reports whether CORS responses may allow credentials.
func (c Config) AllowCredentials() bool {
	return !slices.Contains(c.AllowedOrigins, "*")
}

var levels = map[string]log.Lvl{
	"debug": log.DEBUG,
	"info":  log.INFO,
	"warn":  log.WARN,
	"error": log.ERROR,
	"off":   log.OFF,
}

// Level returns the gommon log level, INFO if unknown.
func (c Config) Level() log.Lvl {
	if l, ok := levels[c.LogLevel]; ok {
		return l
	}
	return log.INFO
}

func splitList(v string) []string {
	var out []string
	for p := range strings.SplitSeq(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
