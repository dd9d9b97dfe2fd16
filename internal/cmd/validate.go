package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/agentflare-ai/xsdcheck"
	"github.com/agentflare-ai/xsdcheck/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewValidateCommand creates the validate subcommand.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate --schema <schema.xsd> <document.xml>...",
		Short: "Validate XML documents against a schema",
		Long: `Validate one or more XML documents against a single XSD schema.

Documents are validated concurrently and reported in argument order.
xs:include and xs:import locations are resolved relative to the schema file.

Exit code: 0 if every document is valid, 1 otherwise`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runValidate(cmd.Context(), cmd, cfg, args)
		},
	}

	cmd.Flags().StringP("schema", "s", "", "schema file (required unless set in the config)")
	cmd.Flags().StringP("format", "f", "", "report format: text, json, html")
	cmd.Flags().Int("max-errors", 0, "report at most this many errors per document (0 = all)")
	cmd.Flags().IntP("concurrency", "j", 0, "documents validated at once")
	return cmd
}

func runValidate(ctx context.Context, cmd *cobra.Command, cfg *config.Config, docs []string) error {
	if cfg.Schema == "" {
		return fmt.Errorf("no schema given: use --schema or set schema in the config")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	schemaData, err := os.ReadFile(cfg.Schema)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	v := newValidator(cfg, logger)

	results, err := validateAll(ctx, v, cfg.Concurrency, schemaData, docs)
	if err != nil {
		return err
	}
	return report(cmd.OutOrStdout(), cfg, results)
}

func newValidator(cfg *config.Config, logger *zap.Logger) *xsdcheck.Validator {
	return xsdcheck.New(
		xsdcheck.WithLogger(logger),
		xsdcheck.WithSchemaCache(xsdcheck.NewSchemaCache(cfg.CacheSize)),
		xsdcheck.WithResolver(schemaResolver(cfg.Schema)),
		xsdcheck.WithMaxErrors(cfg.MaxErrors),
	)
}

// validateAll checks every document against the schema. Results keep the
// order of docs. An unreadable document is reported as malformed.
func validateAll(ctx context.Context, v *xsdcheck.Validator, workers int, schemaData []byte, docs []string) ([]xsdcheck.FileResult, error) {
	results := make([]xsdcheck.FileResult, len(docs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				results[i] = xsdcheck.FileResult{File: path, Result: xsdcheck.Result{
					Kind:      xsdcheck.Malformed,
					Malformed: &xsdcheck.MalformedError{Stage: xsdcheck.DocumentStage, Reason: err.Error()},
				}}
				return nil
			}
			results[i] = xsdcheck.FileResult{File: path, Source: data, Result: v.Validate(data, schemaData)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func report(w io.Writer, cfg *config.Config, results []xsdcheck.FileResult) error {
	format, err := xsdcheck.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	if err := xsdcheck.NewReporter(format, useColor(cfg.Color, w)).Write(w, results); err != nil {
		return err
	}
	for _, r := range results {
		if !r.OK() {
			return ErrInvalid
		}
	}
	return nil
}
