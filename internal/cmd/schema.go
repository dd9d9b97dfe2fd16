package cmd

import (
	"errors"
	"os"

	"github.com/agentflare-ai/xsdcheck"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSchemaCommand creates the schema subcommand.
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema <schema.xsd>...",
		Short: "Check that schema files compile",
		Long: `Parse and compile each schema without validating any document.

Exit code: 0 if every schema compiles, 1 otherwise`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			results := make([]xsdcheck.FileResult, 0, len(args))
			for _, path := range args {
				results = append(results, checkSchemaFile(path, logger))
			}
			return report(cmd.OutOrStdout(), cfg, results)
		},
	}
	cmd.Flags().StringP("format", "f", "", "report format: text, json, html")
	return cmd
}

func checkSchemaFile(path string, logger *zap.Logger) xsdcheck.FileResult {
	fr := xsdcheck.FileResult{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		fr.Kind = xsdcheck.Malformed
		fr.Malformed = &xsdcheck.MalformedError{Stage: xsdcheck.SchemaStage, Reason: err.Error()}
		return fr
	}

	v := xsdcheck.New(xsdcheck.WithLogger(logger), xsdcheck.WithResolver(schemaResolver(path)))
	if _, err := v.Schema(data); err != nil {
		fr.Kind = xsdcheck.Malformed
		var me *xsdcheck.MalformedError
		if errors.As(err, &me) {
			fr.Malformed = me
		} else {
			fr.Malformed = &xsdcheck.MalformedError{Stage: xsdcheck.SchemaStage, Reason: err.Error()}
		}
		return fr
	}
	logger.Info("schema compiles", zap.String("file", path))
	fr.Kind = xsdcheck.Valid
	return fr
}
