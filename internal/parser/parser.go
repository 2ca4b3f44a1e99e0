package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
)

// Parser opens one family of tabular files.
type Parser interface {
	CanParse(filename string) bool
	Open(path string, opt analysis.ReadOptions) (Source, error)
}

// Source is an opened file exposing its sheets. Delimited text files have a
// single sheet named CSVSheet.
type Source interface {
	Kind() string
	Sheets() []string
	// Candidates frames a sheet under both header modes.
	Candidates(sheet string) (first, skip analysis.Candidate, err error)
	// Candidate frames a sheet under one header mode.
	Candidate(sheet string, mode analysis.HeaderMode) (analysis.Candidate, error)
	Close() error
}

// CSVSheet is the sheet name of delimited text sources.
const CSVSheet = "CSV"

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// Open selects a parser based on filename and opens path.
func Open(path string, opt analysis.ReadOptions) (Source, error) {
	for _, p := range registry {
		if p.CanParse(path) {
			return p.Open(path, opt)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// Supported reports whether some registered parser claims filename.
func Supported(filename string) bool {
	for _, p := range registry {
		if p.CanParse(filename) {
			return true
		}
	}
	return false
}

// Kind returns the lower-case extension without the dot.
func Kind(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

func init() {
	Register(csvParser{})
	Register(xlsxParser{})
	Register(xlsParser{})
}

var (
	// ErrUnsupported indicates a format is not supported yet.
	ErrUnsupported = errors.New("unsupported file format")
	// ErrSheetNotFound is returned for sheet names the source does not have.
	ErrSheetNotFound = errors.New("sheet not found")
)

type xlsParser struct{}

func (xlsParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xls")
}

func (xlsParser) Open(path string, _ analysis.ReadOptions) (Source, error) {
	return nil, fmt.Errorf("%w: legacy .xls workbook %s; save it as .xlsx", ErrUnsupported, filepath.Base(path))
}
