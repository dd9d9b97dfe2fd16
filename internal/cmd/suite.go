package cmd

import (
	"fmt"
	"os"

	"github.com/agentflare-ai/xsdcheck/internal/conformance"
	"github.com/spf13/cobra"
)

// NewSuiteCommand creates the suite subcommand.
func NewSuiteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suite <metadata.xml>...",
		Short: "Run W3C XML Schema test-suite metadata files",
		Long: `Run schema and instance tests listed in W3C XSD test-suite metadata
(testSet) files and print a pass/fail summary.

Pass metadata files as arguments, or use --dir with --pattern to discover
them. Tests whose expected validity is notKnown are skipped.

Exit code: 0 if every test passed, 1 otherwise`,
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

			dir, _ := cmd.Flags().GetString("dir")
			pattern, _ := cmd.Flags().GetString("pattern")
			analyze, _ := cmd.Flags().GetBool("analyze")
			output, _ := cmd.Flags().GetString("output")
			if dir == "" && len(args) == 0 {
				return fmt.Errorf("no test metadata given: pass files or use --dir")
			}

			runner := conformance.NewRunner(logger, cfg.Concurrency)
			for _, path := range args {
				if err := runner.RunFile(cmd.Context(), path); err != nil {
					return err
				}
			}
			if dir != "" {
				if _, err := runner.RunFiles(cmd.Context(), dir, pattern); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create report: %w", err)
				}
				defer f.Close()
				w = f
			}

			results := runner.Results()
			summary := conformance.Summarize(results)
			var categories []*conformance.Category
			if analyze {
				categories = conformance.Analyze(results)
			}
			if cfg.Format == "json" {
				err = summary.WriteJSON(w, categories)
			} else {
				err = summary.WriteText(w)
				if err == nil && analyze {
					fmt.Fprintln(w)
					err = conformance.WriteAnalysis(w, categories)
				}
			}
			if err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			if summary.Failed > 0 {
				return ErrInvalid
			}
			return nil
		},
	}

	cmd.Flags().String("dir", "", "test suite root to search for metadata files")
	cmd.Flags().String("pattern", "msMeta/*_w3c.xml", "metadata glob under --dir")
	cmd.Flags().Bool("analyze", false, "group failures by schema feature")
	cmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().StringP("format", "f", "", "report format: text, json")
	cmd.Flags().IntP("concurrency", "j", 0, "test groups run at once")
	return cmd
}
