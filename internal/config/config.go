// Package config loads xsdcheck settings from a YAML file and command-line
// flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the CLI commands.
type Config struct {
	// Format is the report format: text, json or html.
	Format string `yaml:"format" validate:"oneof=text json html"`
	// Color controls ANSI styling of text reports.
	Color string `yaml:"color" validate:"oneof=auto always never"`
	// MaxErrors caps the errors reported per document; 0 means no cap.
	MaxErrors int `yaml:"max_errors" validate:"gte=0"`
	// Concurrency is the number of documents validated at once.
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=256"`
	// LogLevel is the zap level for diagnostics written to stderr.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	// Schema is the default schema file for the validate command.
	Schema string `yaml:"schema"`
	// CacheSize is the number of compiled schemas kept in memory.
	CacheSize int `yaml:"cache_size" validate:"gte=1"`
}

// DefaultConfig returns the settings used when no file or flag overrides
// them.
func DefaultConfig() *Config {
	return &Config{
		Format:      "text",
		Color:       "auto",
		MaxErrors:   0,
		Concurrency: 4,
		LogLevel:    "warn",
		CacheSize:   8,
	}
}

// Load reads path over the defaults. An empty path or a missing file
// yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg. Keys absent from data keep their
// current values; unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Overrides carries flag values; nil fields leave the config unchanged.
type Overrides struct {
	Format      *string
	Color       *string
	MaxErrors   *int
	Concurrency *int
	LogLevel    *string
	Schema      *string
}

// Merge applies non-nil overrides.
func (c *Config) Merge(o Overrides) {
	if o.Format != nil {
		c.Format = *o.Format
	}
	if o.Color != nil {
		c.Color = *o.Color
	}
	if o.MaxErrors != nil {
		c.MaxErrors = *o.MaxErrors
	}
	if o.Concurrency != nil {
		c.Concurrency = *o.Concurrency
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.Schema != nil {
		c.Schema = *o.Schema
	}
}

var validate = validator.New()

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	name := fieldKey(fe.StructField())
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, strings.ReplaceAll(fe.Param(), " ", ", "), fmt.Sprint(fe.Value()))
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", name, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", name, fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", name, fe.Tag())
}

// fieldKey maps a struct field to its YAML key.
func fieldKey(field string) string {
	switch field {
	case "MaxErrors":
		return "max_errors"
	case "LogLevel":
		return "log_level"
	case "CacheSize":
		return "cache_size"
	}
	return strings.ToLower(field)
}
