package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

type Config struct {
	Port        int           `env:"PORT,default=3000"`
	JWTSecret   string        `env:"JWT_SECRET,required=true"`
	GinMode     string        `env:"GIN_MODE,default=release"`
	TLSCertFile string        `env:"TLS_CERT_FILE"`
	TLSKeyFile  string        `env:"TLS_KEY_FILE"`
	TokenExpiry time.Duration `env:"TOKEN_EXPIRY,default=168h"`
	CookieName  string        `env:"TOKEN_COOKIE_NAME,default=StealthyNoteToken"`
	FrontendURL string        `env:"FRONTEND_URL"`
	LogLevel    string        `env:"LOG_LEVEL,default=info"`
	BadgerPath  string        `env:"BADGER_PATH"`

	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	SendQueueSize  int           `env:"SEND_QUEUE_SIZE,default=256"`
	PingInterval   time.Duration `env:"PING_INTERVAL,default=25s"`
	PingTimeout    time.Duration `env:"PING_TIMEOUT,default=20s"`
	MaxPayload     int64         `env:"MAX_PAYLOAD,default=1000000"`
	PersistTimeout time.Duration `env:"PERSIST_TIMEOUT,default=5s"`

	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	ConnectRateLimit int           `env:"CONNECT_RATE_LIMIT,default=60"`
	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH,default=4000"`
	MaxGroupMembers  int           `env:"MAX_GROUP_MEMBERS,default=100"`
}

func LoadConfig() (Config, error) {
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, err
	}
	return LoadConfigFromEnv(es)
}

func LoadConfigFromEnv(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.New("invalid PORT"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	if c.FrontendURL != "" && !strings.HasPrefix(c.FrontendURL, "http://") && !strings.HasPrefix(c.FrontendURL, "https://") {
		errs = append(errs, errors.New("FRONTEND_URL must be an http(s) origin"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for name, d := range map[string]time.Duration{
		"TOKEN_EXPIRY":     c.TokenExpiry,
		"WRITE_TIMEOUT":    c.WriteTimeout,
		"PING_INTERVAL":    c.PingInterval,
		"PING_TIMEOUT":     c.PingTimeout,
		"PERSIST_TIMEOUT":  c.PersistTimeout,
		"SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s", name))
		}
	}
	for name, n := range map[string]int64{
		"SEND_QUEUE_SIZE":    int64(c.SendQueueSize),
		"MAX_PAYLOAD":        c.MaxPayload,
		"MAX_MESSAGE_LENGTH": int64(c.MaxMessageLength),
		"MAX_GROUP_MEMBERS":  int64(c.MaxGroupMembers),
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s", name))
		}
	}
	if c.ConnectRateLimit < 0 {
		errs = append(errs, errors.New("invalid CONNECT_RATE_LIMIT"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog level.
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", raw)
	}
}
