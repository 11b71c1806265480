package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/mbolis/survey-intake/log"
)

type Config struct {
	Host        string        `env:"QSURVEY_HOST" envDefault:"0.0.0.0"`
	Port        uint          `env:"QSURVEY_PORT" envDefault:"80"`
	DBUrl       string        `env:"QSURVEY_DB_URL" envDefault:"qsurvey.sqlite"`
	TokenSecret string        `env:"QSURVEY_TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"QSURVEY_TOKEN_TTL" envDefault:"2m"`
	// HMAC key shared with the upstream identity provider. Empty disables IdP tokens.
	IdPSecret         string `env:"QSURVEY_IDP_SECRET"`
	RequireAssignment bool   `env:"QSURVEY_REQUIRE_ASSIGNMENT" envDefault:"false"`
	LogLevel          string `env:"QSURVEY_LOG_LEVEL" envDefault:"info"`
	Debug             bool   `env:"QSURVEY_DEBUG" envDefault:"false"`
}

// Load reads an optional .env file, then QSURVEY_* variables.
func Load(dotenv ...string) (cfg Config, err error) {
	err = godotenv.Load(dotenv...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return
	}
	err = env.Parse(&cfg)
	return
}

// BindFlags registers command-line overrides, using the current values as defaults.
func (cfg *Config) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cfg.Host, "host", cfg.Host, "listen host name")
	flags.UintVar(&cfg.Port, "port", cfg.Port, "listen port number")
	flags.StringVar(&cfg.DBUrl, "db-url", cfg.DBUrl, "path to SQLite3 DB file")
	flags.StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "secret key for token encryption and decryption")
	flags.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "access token TTL")
	flags.StringVar(&cfg.IdPSecret, "idp-secret", cfg.IdPSecret, "HMAC key for identity provider tokens")
	flags.BoolVar(&cfg.RequireAssignment, "require-assignment", cfg.RequireAssignment, "only assigned users may answer non-public surveys")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (panic, fatal, error, warn, info, debug, trace)")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "log at DEBUG level, overrides --log-level")
}

// ConfigureLogging sets the global log level.
func (cfg Config) ConfigureLogging() error {
	level := log.DebugLevel
	if !cfg.Debug {
		var err error
		level, err = log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}
	log.SetLevel(level)
	return nil
}

func (cfg Config) Validate() error {
	if cfg.TokenSecret == "" {
		return errors.New("missing parameter --token-secret")
	}
	if cfg.TokenTTL <= 0 {
		return errors.New("--token-ttl must be positive")
	}
	return nil
}

func (cfg Config) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port)))
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr()
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
