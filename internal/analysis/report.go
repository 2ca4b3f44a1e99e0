package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SheetAnalysis is the per-sheet result of analysis.
type SheetAnalysis struct {
	SheetName       string            `json:"sheet_name"`
	HasData         bool              `json:"has_data"`
	HeaderMode      HeaderMode        `json:"header_mode"`
	Columns         []string          `json:"columns"`
	Duplicates      map[string][]int  `json:"duplicates"`
	ProposedRenames map[string]string `json:"proposed_renames"`
	DetectedType    SheetType         `json:"detected_type"`
	Rows            int               `json:"rows"`
}

// FileReport is the analysis of every sheet in one uploaded file.
type FileReport struct {
	FileName   string          `json:"file_name"`
	FileType   string          `json:"file_type"`
	Sheets     []SheetAnalysis `json:"sheets"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
}

// Sheet returns the analysis for name.
func (r *FileReport) Sheet(name string) (SheetAnalysis, bool) {
	for _, s := range r.Sheets {
		if s.SheetName == name {
			return s, true
		}
	}
	return SheetAnalysis{}, false
}

// Analyzer turns framed candidates into a SheetAnalysis.
type Analyzer struct {
	Classifier  *Classifier
	DateMarkers []string
}

// NewAnalyzer returns an analyzer with default vocabularies.
func NewAnalyzer() *Analyzer {
	return &Analyzer{Classifier: DefaultClassifier(), DateMarkers: DefaultDateMarkers}
}

// Analyze resolves the header mode and profiles the chosen candidate.
// Sheets without data report no columns and type unknown.
func (a *Analyzer) Analyze(name string, first, skip Candidate) SheetAnalysis {
	chosen := ResolveHeader(first, skip)
	out := SheetAnalysis{
		SheetName:       name,
		HasData:         chosen.HasData(),
		HeaderMode:      chosen.Mode,
		Columns:         []string{},
		Duplicates:      map[string][]int{},
		ProposedRenames: map[string]string{},
		DetectedType:    TypeUnknown,
	}
	if out.HeaderMode == "" {
		out.HeaderMode = FirstRow
	}
	if !out.HasData {
		return out
	}
	out.Columns = append(out.Columns, chosen.Header...)
	out.Rows = len(chosen.Rows)
	out.Duplicates = Profile(chosen.Header).Duplicates()
	out.ProposedRenames = ProposeRenames(chosen.Header, a.DateMarkers)
	cls := a.Classifier
	if cls == nil {
		cls = DefaultClassifier()
	}
	out.DetectedType = cls.Classify(chosen.Header)
	return out
}

// Markdown renders a compact report for terminal output.
func (r *FileReport) Markdown() string {
	var b strings.Builder
	b.WriteString("[UPLOAD ANALYSIS]\n")
	b.WriteString(fmt.Sprintf("File: %s\n", safeName(r.FileName)))
	if r.FileType != "" {
		b.WriteString(fmt.Sprintf("Type: %s\n", r.FileType))
	}
	b.WriteString(fmt.Sprintf("Sheets: %d\n", len(r.Sheets)))
	for _, s := range r.Sheets {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("[SHEET] %s\n", safeName(s.SheetName)))
		if !s.HasData {
			b.WriteString("- no data\n")
			continue
		}
		b.WriteString(fmt.Sprintf("- detected: %s\n", s.DetectedType))
		b.WriteString(fmt.Sprintf("- header: %s\n", s.HeaderMode))
		b.WriteString(fmt.Sprintf("- rows: %d, columns: %d\n", s.Rows, len(s.Columns)))
		b.WriteString("\n| # | Column |\n|---:|---|\n")
		for i, c := range s.Columns {
			b.WriteString(fmt.Sprintf("| %d | %s |\n", i, safeVal(safeName(c))))
		}
		if len(s.Duplicates) > 0 {
			b.WriteString("\nDuplicates:\n")
			for _, n := range sortedKeys(s.Duplicates) {
				b.WriteString(fmt.Sprintf("- %s at %v\n", safeVal(n), s.Duplicates[n]))
			}
		}
		if len(s.ProposedRenames) > 0 {
			b.WriteString("\nProposed renames:\n")
			for _, n := range sortedKeys(s.ProposedRenames) {
				b.WriteString(fmt.Sprintf("- %s -> %s\n", safeVal(n), safeVal(s.ProposedRenames[n])))
			}
		}
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}
func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
