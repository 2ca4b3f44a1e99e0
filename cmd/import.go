package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
	"github.com/KaramelBytes/sheetloom/internal/ingest"
	"github.com/KaramelBytes/sheetloom/internal/session"
	"github.com/KaramelBytes/sheetloom/internal/utils"
)

var (
	impSelections string
	impAccept     bool
	impSheet      string
	impType       string
	impDelimiter  string
	impJSON       bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import confirmed sheets of an analyzed upload",
	Long: `Import confirmed sheets of an upload. <file> is either a path on disk, which is
uploaded first, or the name of a file already in the owner's upload folder.

Selections come from --selections (a JSON object keyed by sheet name, or a
full import request) or from --accept, which confirms every sheet with data
exactly as analyzed. --sheet limits --accept to one sheet; --type overrides
its detected type.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (impSelections == "") == !impAccept {
			return fmt.Errorf("specify exactly one of --selections or --accept")
		}
		if impType != "" {
			if _, ok := analysis.ParseSheetType(impType); !ok {
				return fmt.Errorf("unknown --type: %s", impType)
			}
		}
		delim, err := parseDelimiterFlag(impDelimiter)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), delim)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		name := filepath.Base(args[0])
		if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
			up, err := uploadLocal(a, args[0])
			if err != nil {
				return err
			}
			name = up.Name
		}
		rep, err := a.svc.Report(ctx, owner(), name)
		if errors.Is(err, session.ErrNotFound) {
			rep, err = a.svc.Analyze(ctx, owner(), name)
		}
		if err != nil {
			return err
		}

		req := ingest.ImportRequest{FileName: rep.FileName, FileType: rep.FileType}
		if impAccept {
			req.Selections = acceptAll(rep, impSheet, impType)
		} else {
			sel, err := readSelections(impSelections)
			if err != nil {
				return err
			}
			req.Selections = sel
		}

		res, err := a.svc.Import(ctx, owner(), req)
		if err != nil {
			return err
		}
		if impJSON {
			b, err := utils.PrettyJSON(res)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}
		printImport(res)
		return nil
	},
}

func acceptAll(rep *analysis.FileReport, only, typ string) map[string]ingest.SheetSelection {
	out := map[string]ingest.SheetSelection{}
	for _, s := range rep.Sheets {
		if only != "" && s.SheetName != only {
			continue
		}
		sel := ingest.AcceptProposals(s)
		if typ != "" {
			sel.DetectedType = typ
		}
		out[s.SheetName] = sel
	}
	return out
}

// readSelections accepts either {"<sheet>": {...}} or a full import request.
func readSelections(path string) (map[string]ingest.SheetSelection, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selections: %w", err)
	}
	var req ingest.ImportRequest
	if err := json.Unmarshal(b, &req); err == nil && len(req.Selections) > 0 {
		return req.Selections, nil
	}
	var sel map[string]ingest.SheetSelection
	if err := json.Unmarshal(b, &sel); err != nil {
		return nil, fmt.Errorf("parse selections: %w", err)
	}
	return sel, nil
}

func printImport(res *ingest.ImportResult) {
	if len(res.Imported) == 0 {
		fmt.Println("⚠ No sheets were confirmed; nothing imported")
		return
	}
	for _, s := range res.Imported {
		fmt.Printf("✓ %s: %d rows × %d cols (%s) → %s\n", s.Sheet, s.Rows, s.Cols, s.DetectedType, s.Path)
		if s.ImportedToDB != nil {
			fmt.Printf("  stored %d rows", *s.ImportedToDB)
			if s.FailedRows > 0 {
				fmt.Printf(", ⚠ %d rows skipped", s.FailedRows)
			}
			fmt.Println()
		}
		if s.ArchiveURI != "" {
			fmt.Printf("  archived to %s\n", s.ArchiveURI)
		}
	}
	fmt.Println(res.Message)
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&impSelections, "selections", "", "path to a JSON file with per-sheet selections")
	importCmd.Flags().BoolVar(&impAccept, "accept", false, "accept the analyzer's proposals for every sheet with data")
	importCmd.Flags().StringVar(&impSheet, "sheet", "", "with --accept: import only this sheet")
	importCmd.Flags().StringVar(&impType, "type", "", "with --accept: override detected type (patient|taxonomy|abundance-matrix|unknown)")
	importCmd.Flags().StringVar(&impDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	importCmd.Flags().BoolVar(&impJSON, "json", false, "print the result as JSON")
}
