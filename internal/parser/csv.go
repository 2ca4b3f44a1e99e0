package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
)

type csvParser struct{}

func (csvParser) CanParse(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".txt")
}

// Open reads the whole file and settles the delimiter once: an explicit
// option, then the sniffer, then tab for .tsv and comma otherwise.
func (csvParser) Open(path string, opt analysis.ReadOptions) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text := analysis.DecodeText(data)
	if opt.Delimiter == 0 {
		if d, ok := analysis.SniffDelimiter(strings.NewReader(text)); ok {
			opt.Delimiter = d
		} else if strings.HasSuffix(strings.ToLower(path), ".tsv") {
			opt.Delimiter = '\t'
		} else {
			opt.Delimiter = ','
		}
	}
	return &textSource{kind: Kind(path), text: text, opt: opt}, nil
}

type textSource struct {
	kind string
	text string
	opt  analysis.ReadOptions
}

func (s *textSource) Kind() string     { return s.kind }
func (s *textSource) Sheets() []string { return []string{CSVSheet} }
func (s *textSource) Close() error     { return nil }

// Delimiter is the separator chosen at Open.
func (s *textSource) Delimiter() rune { return s.opt.Delimiter }

func (s *textSource) Candidates(sheet string) (analysis.Candidate, analysis.Candidate, error) {
	if sheet != CSVSheet {
		return analysis.Candidate{}, analysis.Candidate{}, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	return analysis.ReadCandidates(s.text, s.opt)
}

func (s *textSource) Candidate(sheet string, mode analysis.HeaderMode) (analysis.Candidate, error) {
	if sheet != CSVSheet {
		return analysis.Candidate{}, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	c, _, err := analysis.ReadCandidate(s.text, mode, s.opt)
	return c, err
}
