// Package config loads patchbay settings from the environment and optional
// .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator"
	"github.com/joho/godotenv"

	"github.com/pipelined/patchbay/log"
)

// Environment variables.
const (
	DebugEnv             = log.DebugEnv
	SampleRateEnv        = "PATCHBAY_SAMPLE_RATE"
	LatencyHintEnv       = "PATCHBAY_LATENCY_HINT"
	PermissionTimeoutEnv = "PATCHBAY_PERMISSION_TIMEOUT"
)

// Latency hints.
const (
	Interactive = "interactive"
	Balanced    = "balanced"
	Playback    = "playback"
)

// Config holds engine and graph settings.
type Config struct {
	Debug bool

	// SampleRate of the engine, zero leaves the engine default.
	SampleRate        int           `validate:"omitempty,min=8000,max=192000"`
	LatencyHint       string        `validate:"oneof=interactive balanced playback"`
	PermissionTimeout time.Duration `validate:"min=0"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LatencyHint:       Interactive,
		PermissionTimeout: 30 * time.Second,
	}
}

// Load reads .env files, then the environment. Missing files are skipped,
// already set variables are not overridden. Without files, .env in the
// working directory is tried.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv reads settings from the environment and validates them.
func FromEnv() (Config, error) {
	c := Default()
	var err error
	if v, ok := os.LookupEnv(DebugEnv); ok {
		if c.Debug, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", DebugEnv, err)
		}
	}
	if v, ok := os.LookupEnv(SampleRateEnv); ok {
		if c.SampleRate, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", SampleRateEnv, err)
		}
	}
	if v, ok := os.LookupEnv(LatencyHintEnv); ok {
		c.LatencyHint = v
	}
	if v, ok := os.LookupEnv(PermissionTimeoutEnv); ok {
		if c.PermissionTimeout, err = time.ParseDuration(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", PermissionTimeoutEnv, err)
		}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks that settings are within allowed ranges.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
