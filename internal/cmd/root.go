// Package cmd implements the xsdcheck command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/agentflare-ai/xsdcheck/internal/config"
	"github.com/agentflare-ai/xsdcheck/internal/logging"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// ErrInvalid is returned when at least one input failed validation. The
// report has already been written when it is returned.
var ErrInvalid = errors.New("validation failed")

// NewRootCommand creates the xsdcheck root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xsdcheck",
		Short: "Validate XML documents against XML Schema",
		Long: `xsdcheck checks XML documents against an XSD 1.0 schema and reports
every violation with its line number.

Settings come from --config (YAML), overridden by flags.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "YAML config file")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().String("color", "", "color output: auto, always, never")

	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewSchemaCommand())
	cmd.AddCommand(NewSuiteCommand())
	return cmd
}

// loadConfig reads --config and applies every flag the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	var o config.Overrides
	flags := cmd.Flags()
	if flags.Changed("format") {
		v, _ := flags.GetString("format")
		o.Format = &v
	}
	if flags.Changed("color") {
		v, _ := flags.GetString("color")
		o.Color = &v
	}
	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		o.LogLevel = &v
	}
	if flags.Changed("max-errors") {
		v, _ := flags.GetInt("max-errors")
		o.MaxErrors = &v
	}
	if flags.Changed("concurrency") {
		v, _ := flags.GetInt("concurrency")
		o.Concurrency = &v
	}
	if flags.Changed("schema") {
		v, _ := flags.GetString("schema")
		o.Schema = &v
	}
	cfg.Merge(o)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// useColor resolves the color setting for w.
func useColor(setting string, w io.Writer) bool {
	switch setting {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	if !ok || color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, useColor(cfg.Color, cmd.ErrOrStderr()))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// schemaResolver serves the directory of the schema file so relative
// include and import locations resolve from there.
func schemaResolver(path string) (fs.FS, string) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	return os.DirFS(dir), filepath.ToSlash(name)
}
