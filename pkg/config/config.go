// Package config loads ncsync's runtime configuration from a .env file
// (if present) and the process environment, following the reference
// implementation's dotenv-then-environment convention.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds every setting the engine needs to start.
type Config struct {
	// Username is the Server account's login name.
	Username string
	// Password is the Server account's password.
	Password string
	// Host is the Server's base URL.
	Host string
	// RemoteRoot is the path on the Server to mirror, relative to the
	// account's WebDAV root.
	RemoteRoot string
	// LocalRoot is the local directory to mirror into.
	LocalRoot string

	// AutostashEnabled (NCS_STASH_ENABLED) controls whether displaced
	// files are also copied into the user-stash; the dated auto-stash
	// receives them either way.
	AutostashEnabled bool
	// AutostashKeepSpan bounds how long auto-stashed files are retained
	// before being pruned.
	AutostashKeepSpan time.Duration
	// LogLevel names the initial logging level.
	LogLevel string
}

const defaultAutostashKeepDays = 7

// Load reads a .env file from the working directory (if one exists) and
// then reads the required and optional environment variables. A missing
// .env file is not an error, matching dotenv's "best effort" semantics.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "unable to load .env file")
	}

	cfg := &Config{
		AutostashEnabled:  true,
		AutostashKeepSpan: defaultAutostashKeepDays * 24 * time.Hour,
		LogLevel:          "info",
	}

	required := map[string]*string{
		"NC_USERNAME": &cfg.Username,
		"NC_PASSWORD": &cfg.Password,
		"NC_HOST":     &cfg.Host,
		"NC_ROOT":     &cfg.RemoteRoot,
		"LOCAL_ROOT":  &cfg.LocalRoot,
	}
	for name, target := range required {
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			return nil, errors.Errorf("%s not found", name)
		}
		*target = value
	}

	if raw, ok := os.LookupEnv("NCS_AUTOSTASH_KEEP_DAYS"); ok {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrap(err, "invalid NCS_AUTOSTASH_KEEP_DAYS")
		}
		cfg.AutostashKeepSpan = time.Duration(days) * 24 * time.Hour
	}

	if raw, ok := os.LookupEnv("NCS_STASH_ENABLED"); ok {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.Wrap(err, "invalid NCS_STASH_ENABLED")
		}
		cfg.AutostashEnabled = enabled
	}

	if raw, ok := os.LookupEnv("NCS_LOG_LEVEL"); ok && raw != "" {
		cfg.LogLevel = raw
	}

	return cfg, nil
}
