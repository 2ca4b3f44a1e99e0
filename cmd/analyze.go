package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/sheetloom/internal/workspace"
)

var (
	anaOutputPath string
	anaFormat     string
	anaDelimiter  string
	anaJSON       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Upload a CSV/TSV/XLSX file and report header, duplicates and type per sheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		delim, err := parseDelimiterFlag(anaDelimiter)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), delim)
		if err != nil {
			return err
		}
		defer a.Close()

		up, err := uploadLocal(a, args[0])
		if err != nil {
			return err
		}
		rep, err := a.svc.Analyze(cmd.Context(), owner(), up.Name)
		if err != nil {
			return err
		}
		return writeReport(rep, outputOptions{JSON: anaJSON, OutputPath: anaOutputPath, OutputFormat: anaFormat})
	},
}

// uploadLocal copies a file from disk into the owner's upload folder.
func uploadLocal(a *app, path string) (*workspace.Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return a.svc.Upload(owner(), filepath.Base(path), f)
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the analysis")
	analyzeCmd.Flags().StringVar(&anaFormat, "format", "markdown", "format for --output: markdown|json")
	analyzeCmd.Flags().StringVar(&anaDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "print the analysis as JSON")
}
