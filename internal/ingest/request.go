package ingest

import (
	"strings"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
)

// SheetSelection is the user's confirmation for one sheet.
type SheetSelection struct {
	Confirmed     bool              `json:"confirmed"`
	HeaderMode    string            `json:"header_mode"`
	Renames       map[string]string `json:"renames"`
	DuplicateKeep map[string]int    `json:"duplicate_keep"`
	DetectedType  string            `json:"detected_type"`
}

// ImportRequest names an analyzed upload and the per-sheet selections.
type ImportRequest struct {
	FileName   string                    `json:"file_name"`
	FileType   string                    `json:"file_type"`
	Selections map[string]SheetSelection `json:"selections"`
}

// Validate checks the request shape without touching storage.
func (r *ImportRequest) Validate() error {
	if strings.TrimSpace(r.FileName) == "" {
		return &ValidationError{Field: "file_name", Reason: "is required"}
	}
	if strings.TrimSpace(r.FileType) == "" {
		return &ValidationError{Field: "file_type", Reason: "is required"}
	}
	if len(r.Selections) == 0 {
		return &ValidationError{Field: "selections", Reason: "at least one sheet selection is required"}
	}
	for name, sel := range r.Selections {
		if _, err := analysis.ParseHeaderMode(sel.HeaderMode); err != nil {
			return &ValidationError{Field: "selections." + name + ".header_mode", Reason: err.Error()}
		}
		if sel.DetectedType != "" {
			if _, ok := analysis.ParseSheetType(sel.DetectedType); !ok {
				return &ValidationError{Field: "selections." + name + ".detected_type", Reason: "unknown sheet type " + sel.DetectedType}
			}
		}
		for col, idx := range sel.DuplicateKeep {
			if idx < 0 {
				return &ValidationError{Field: "selections." + name + ".duplicate_keep." + col, Reason: "index must not be negative"}
			}
		}
	}
	return nil
}

// SheetImport is the outcome for one committed sheet.
type SheetImport struct {
	Sheet        string             `json:"sheet"`
	Rows         int                `json:"rows"`
	Cols         int                `json:"cols"`
	Path         string             `json:"path"`
	DetectedType analysis.SheetType `json:"detected_type"`
	ImportedToDB *int               `json:"imported_to_db,omitempty"`
	FailedRows   int                `json:"failed_rows,omitempty"`
	ArchiveURI   string             `json:"archive_uri,omitempty"`
}

// ImportResult is returned by Import.
type ImportResult struct {
	Message  string        `json:"message"`
	Imported []SheetImport `json:"imported"`
}

// AcceptProposals confirms a sheet exactly as analyzed: its header mode and
// proposed renames, the first occurrence of every duplicate, and its
// detected type.
func AcceptProposals(a analysis.SheetAnalysis) SheetSelection {
	keep := make(map[string]int, len(a.Duplicates))
	for col := range a.Duplicates {
		if to, ok := a.ProposedRenames[col]; ok && to != "" {
			col = to
		}
		keep[col] = 0
	}
	renames := make(map[string]string, len(a.ProposedRenames))
	for k, v := range a.ProposedRenames {
		renames[k] = v
	}
	return SheetSelection{
		Confirmed:     a.HasData,
		HeaderMode:    string(a.HeaderMode),
		Renames:       renames,
		DuplicateKeep: keep,
		DetectedType:  string(a.DetectedType),
	}
}
