package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalid = errors.New("invalid configuration")

// Player is the local identity reported to the coordination server.
type Player struct {
	Name           string
	WorldID        int
	Job            string
	Profile        string
	ActivationCode string
}

// Settings is the full runtime configuration.
type Settings struct {
	ServerURL         string
	AutoConnect       bool
	AutoReconnect     bool
	ReconnectInterval time.Duration
	ConnectTimeout    time.Duration
	AuthTimeout       time.Duration
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	TickInterval      time.Duration
	PollInterval      time.Duration

	HTTPAddr       string
	APISecret      string
	AllowedOrigins []string
	// APIRateLimit is the number of mutating control API calls allowed per IP per minute; 0 disables.
	APIRateLimit int

	CommandRate  float64
	CommandBurst int

	LogLevel  string
	LogFormat string

	Player Player
}

// Load reads .env (if present) and the ROOMLINK_* environment.
func Load() (Settings, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the ROOMLINK_* environment without touching .env.
func FromEnv() (Settings, error) {
	p := &parser{}
	s := Settings{
		ServerURL:         getenv("ROOMLINK_SERVER_URL", "ws://localhost:8080/ws"),
		AutoConnect:       p.bool("ROOMLINK_AUTO_CONNECT", false),
		AutoReconnect:     p.bool("ROOMLINK_AUTO_RECONNECT", true),
		ReconnectInterval: p.duration("ROOMLINK_RECONNECT_INTERVAL", 5*time.Second),
		ConnectTimeout:    p.duration("ROOMLINK_CONNECT_TIMEOUT", 10*time.Second),
		AuthTimeout:       p.duration("ROOMLINK_AUTH_TIMEOUT", 10*time.Second),
		RequestTimeout:    p.duration("ROOMLINK_REQUEST_TIMEOUT", 10*time.Second),
		HeartbeatInterval: p.duration("ROOMLINK_HEARTBEAT_INTERVAL", 30*time.Second),
		TickInterval:      p.duration("ROOMLINK_TICK_INTERVAL", 100*time.Millisecond),
		PollInterval:      p.duration("ROOMLINK_POLL_INTERVAL", time.Second),

		HTTPAddr:       getenv("ROOMLINK_HTTP_ADDR", "127.0.0.1:7070"),
		APISecret:      os.Getenv("ROOMLINK_API_SECRET"),
		AllowedOrigins: list(getenv("ROOMLINK_ALLOWED_ORIGINS", "http://localhost:*")),
		APIRateLimit:   p.int("ROOMLINK_API_RATE_LIMIT", 60),

		CommandRate:  p.float("ROOMLINK_COMMAND_RATE", 2),
		CommandBurst: p.int("ROOMLINK_COMMAND_BURST", 5),

		LogLevel:  getenv("ROOMLINK_LOG_LEVEL", "info"),
		LogFormat: getenv("ROOMLINK_LOG_FORMAT", "console"),

		Player: Player{
			Name:           os.Getenv("ROOMLINK_PLAYER_NAME"),
			WorldID:        p.int("ROOMLINK_PLAYER_WORLD", 0),
			Job:            os.Getenv("ROOMLINK_PLAYER_JOB"),
			Profile:        os.Getenv("ROOMLINK_PLAYER_PROFILE"),
			ActivationCode: os.Getenv("ROOMLINK_ACTIVATION_CODE"),
		},
	}
	if err := errors.Join(p.errs...); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks values that parse but cannot work.
func (s Settings) Validate() error {
	u, err := url.Parse(s.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: ROOMLINK_SERVER_URL: %v", ErrInvalid, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: ROOMLINK_SERVER_URL must use ws:// or wss://, got %q", ErrInvalid, s.ServerURL)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("%w: ROOMLINK_TICK_INTERVAL must be positive", ErrInvalid)
	}
	if s.APIRateLimit < 0 {
		return fmt.Errorf("%w: ROOMLINK_API_RATE_LIMIT must not be negative", ErrInvalid)
	}
	switch s.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("%w: ROOMLINK_LOG_FORMAT must be console or json, got %q", ErrInvalid, s.LogFormat)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func list(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
