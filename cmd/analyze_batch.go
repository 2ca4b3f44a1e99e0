package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/sheetloom/internal/utils"
)

var (
	abDelimiter string
	abOutputDir string
	abFormat    string
	abQuiet     bool
)

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Analyze multiple CSV/TSV/XLSX files with progress",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		seen := map[string]struct{}{}
		for _, arg := range args {
			matches, _ := filepath.Glob(arg)
			if len(matches) == 0 {
				// treat as literal path if exists
				if _, err := os.Stat(arg); err == nil {
					matches = []string{arg}
				}
			}
			for _, m := range matches {
				if _, ok := seen[m]; ok {
					continue
				}
				seen[m] = struct{}{}
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		sort.Strings(files)

		delim, err := parseDelimiterFlag(abDelimiter)
		if err != nil {
			return err
		}
		ext := ".analysis.md"
		switch abFormat {
		case "", "markdown", "md":
		case "json":
			ext = ".analysis.json"
		default:
			return fmt.Errorf("unsupported --format: %s (use markdown|json)", abFormat)
		}
		if abOutputDir != "" {
			if err := utils.EnsureDir(abOutputDir); err != nil {
				return err
			}
		}

		a, err := openApp(cmd.Context(), delim)
		if err != nil {
			return err
		}
		defer a.Close()

		total := len(files)
		failed := 0
		for i, path := range files {
			if !abQuiet {
				fmt.Printf("[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			up, err := uploadLocal(a, path)
			if err == nil {
				rep, aerr := a.svc.Analyze(cmd.Context(), owner(), up.Name)
				err = aerr
				if err == nil {
					opts := outputOptions{Quiet: abQuiet || abOutputDir != "", OutputFormat: abFormat}
					if abOutputDir != "" {
						opts.OutputPath = nextFreePath(abOutputDir, strings.TrimSuffix(up.Name, filepath.Ext(up.Name)), ext)
					}
					err = writeReport(rep, opts)
					if err == nil && opts.OutputPath != "" && !abQuiet {
						fmt.Printf("✓ Wrote %s\n", filepath.Base(opts.OutputPath))
					}
				}
			}
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", filepath.Base(path), err)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, total)
		}
		return nil
	},
}

// nextFreePath returns dir/base+ext, or dir/base__N+ext if taken.
func nextFreePath(dir, base, ext string) string {
	out := filepath.Join(dir, base+ext)
	if _, err := os.Stat(out); err != nil {
		return out
	}
	for idx := 2; ; idx++ {
		cand := filepath.Join(dir, fmt.Sprintf("%s__%d%s", base, idx, ext))
		if _, err := os.Stat(cand); os.IsNotExist(err) {
			if !abQuiet {
				fmt.Printf("⚠ Detected existing analysis, writing to %s to avoid overwrite.\n", filepath.Base(cand))
			}
			return cand
		}
	}
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	analyzeBatchCmd.Flags().StringVar(&abDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	analyzeBatchCmd.Flags().StringVar(&abOutputDir, "output-dir", "", "write one analysis file per input into this directory")
	analyzeBatchCmd.Flags().StringVar(&abFormat, "format", "markdown", "format of written analyses: markdown|json")
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
}
