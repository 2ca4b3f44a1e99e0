package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
	"github.com/KaramelBytes/sheetloom/internal/utils"
)

type outputOptions struct {
	JSON         bool
	Quiet        bool
	OutputPath   string
	OutputFormat string
	Writer       io.Writer
}

// writeReport prints rep and optionally saves it to OutputPath.
func writeReport(rep *analysis.FileReport, opts outputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	if opts.JSON {
		b, err := utils.PrettyJSON(rep)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Fprintln(w, string(b))
	} else if !opts.Quiet {
		fmt.Fprintln(w, rep.Markdown())
	}

	if opts.OutputPath == "" {
		return nil
	}

	var data []byte
	switch opts.OutputFormat {
	case "", "markdown", "md":
		data = []byte(rep.Markdown())
	case "json":
		b, err := utils.PrettyJSON(rep)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		data = b
	default:
		return fmt.Errorf("unsupported --format: %s (use markdown|json)", opts.OutputFormat)
	}
	if err := utils.SafeWriteFile(opts.OutputPath, data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !opts.Quiet {
		fmt.Fprintf(w, "✓ Wrote analysis to %s\n", opts.OutputPath)
	}
	return nil
}
