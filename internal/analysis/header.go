package analysis

import (
	"fmt"
	"strings"
)

// HeaderMode selects which row is promoted to column names.
type HeaderMode string

const (
	FirstRow     HeaderMode = "first_row"
	SkipFirstRow HeaderMode = "skip_first_row"
)

// ParseHeaderMode accepts "first_row", "skip_first_row", and the aliases ""
// and "auto" for first_row.
func ParseHeaderMode(s string) (HeaderMode, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", "auto", string(FirstRow):
		return FirstRow, nil
	case string(SkipFirstRow):
		return SkipFirstRow, nil
	}
	return "", fmt.Errorf("unknown header mode %q", s)
}

// Candidate is a sheet framed under one header mode.
type Candidate struct {
	Mode   HeaderMode
	Header []string
	Rows   [][]string
}

// NonEmpty counts non-blank data cells.
func (c Candidate) NonEmpty() int {
	n := 0
	for _, row := range c.Rows {
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				n++
			}
		}
	}
	return n
}

// HasData reports whether any data cell is present.
func (c Candidate) HasData() bool { return c.NonEmpty() > 0 }

// Frame promotes a row of g to the header. SkipFirstRow discards row 0 first.
// Blank header cells are named "Unnamed: <index>".
func Frame(g *Grid, mode HeaderMode) Candidate {
	c := Candidate{Mode: mode}
	if g == nil {
		return c
	}
	rows := g.Rows
	if mode == SkipFirstRow && len(rows) > 0 {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return c
	}
	c.Header = make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		c.Header[i] = h
	}
	c.Rows = rows[1:]
	return c
}

// ReadCandidate frames delimited text under mode. SkipFirstRow drops the first
// physical line before tokenizing, so a banner line cannot fix the width.
func ReadCandidate(text string, mode HeaderMode, opt ReadOptions) (Candidate, *GridResult, error) {
	src := text
	if mode == SkipFirstRow {
		src = DropFirstLine(text)
		if strings.TrimSpace(src) == "" {
			return Candidate{Mode: mode}, nil, nil
		}
	}
	res, err := ReadGrid(src, opt)
	if err != nil {
		return Candidate{Mode: mode}, nil, err
	}
	c := Frame(res.Grid, FirstRow)
	c.Mode = mode
	return c, res, nil
}

// ReadCandidates frames delimited text under both header modes using one
// delimiter decision.
func ReadCandidates(text string, opt ReadOptions) (first, skip Candidate, err error) {
	first, res, err := ReadCandidate(text, FirstRow, opt)
	if err != nil {
		return first, Candidate{Mode: SkipFirstRow}, err
	}
	opt.Delimiter = res.Delimiter
	skip, _, err = ReadCandidate(text, SkipFirstRow, opt)
	if err != nil {
		return first, Candidate{Mode: SkipFirstRow}, err
	}
	return first, skip, nil
}

// ResolveHeader picks skip only when it has strictly more non-empty cells.
func ResolveHeader(first, skip Candidate) Candidate {
	if skip.NonEmpty() > first.NonEmpty() {
		return skip
	}
	return first
}
