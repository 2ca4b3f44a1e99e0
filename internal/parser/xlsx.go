package parser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
)

type xlsxParser struct{}

func (xlsxParser) CanParse(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xlsm")
}

func (xlsxParser) Open(path string, _ analysis.ReadOptions) (Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return &workbookSource{f: f, sheets: f.GetSheetList()}, nil
}

type workbookSource struct {
	f      *excelize.File
	sheets []string
}

func (s *workbookSource) Kind() string     { return "xlsx" }
func (s *workbookSource) Sheets() []string { return append([]string(nil), s.sheets...) }
func (s *workbookSource) Close() error     { return s.f.Close() }

// Grid reads a sheet into a rectangular grid of formatted cell values.
func (s *workbookSource) Grid(sheet string) (*analysis.Grid, error) {
	if !s.has(sheet) {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	rows, err := s.f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	// drop trailing empty rows
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	return analysis.NewGrid(rows, width), nil
}

func (s *workbookSource) Candidates(sheet string) (analysis.Candidate, analysis.Candidate, error) {
	g, err := s.Grid(sheet)
	if err != nil {
		return analysis.Candidate{}, analysis.Candidate{}, err
	}
	return analysis.Frame(g, analysis.FirstRow), analysis.Frame(g, analysis.SkipFirstRow), nil
}

func (s *workbookSource) Candidate(sheet string, mode analysis.HeaderMode) (analysis.Candidate, error) {
	g, err := s.Grid(sheet)
	if err != nil {
		return analysis.Candidate{}, err
	}
	return analysis.Frame(g, mode), nil
}

func (s *workbookSource) has(sheet string) bool {
	for _, n := range s.sheets {
		if n == sheet {
			return true
		}
	}
	return false
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
