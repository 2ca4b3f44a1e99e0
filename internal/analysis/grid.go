package analysis

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Grid is a rectangular block of cells. The empty string marks an absent cell.
type Grid struct {
	Rows [][]string
}

// Len returns the number of rows including any header row.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Rows)
}

// Width returns the column count shared by every row.
func (g *Grid) Width() int {
	if g == nil || len(g.Rows) == 0 {
		return 0
	}
	return len(g.Rows[0])
}

// WriteCSV renders the grid as comma-separated text that ReadGrid parses back
// into the same grid.
func (g *Grid) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	for _, row := range g.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// NewGrid copies records into a grid of the given width, padding short rows
// with absent cells and truncating long ones.
func NewGrid(records [][]string, width int) *Grid {
	g := &Grid{Rows: make([][]string, 0, len(records))}
	for _, rec := range records {
		row := make([]string, width)
		copy(row, rec)
		g.Rows = append(g.Rows, row)
	}
	return g
}

// Strategy is one named way of tokenizing delimited text. Quote is the
// character the strategy treats as quoting, 0 for none.
type Strategy struct {
	Name  string
	Quote rune
	Parse func(text string, delim rune) ([][]string, error)
}

// DefaultStrategies are tried in order by ReadGrid.
var DefaultStrategies = []Strategy{
	{Name: "double-quote/strict", Quote: '"', Parse: func(t string, d rune) ([][]string, error) { return parseQuoted(t, d, '"', false) }},
	{Name: "single-quote/strict", Quote: '\'', Parse: func(t string, d rune) ([][]string, error) { return parseQuoted(t, d, '\'', false) }},
	{Name: "single-quote/lenient", Quote: '\'', Parse: func(t string, d rune) ([][]string, error) { return parseQuoted(t, d, '\'', true) }},
	{Name: "no-quote/lenient", Parse: parseUnquoted},
}

// FallbackStrategy names the tokenizer used when every strategy fails.
const FallbackStrategy = "single-quote-split"

// ReadOptions controls how delimited text is read.
type ReadOptions struct {
	// Delimiter to use. If 0, it is sniffed and defaults to ','.
	Delimiter rune
	// Strategies overrides DefaultStrategies.
	Strategies []Strategy
}

// Attempt records the outcome of one strategy. Expected is the width the
// first line promises under the strategy's quoting.
type Attempt struct {
	Strategy string
	Width    int
	Expected int
	Err      error
}

// GridResult is the outcome of ReadGrid.
type GridResult struct {
	Grid      *Grid
	Delimiter rune
	Strategy  string
	Expected  int
	Attempts  []Attempt
}

// ReadGrid tokenizes text into a grid. Strategies are tried in order; the
// first whose width equals the number of delimiters outside its own quotes in
// the first line plus one is accepted, otherwise the last one that succeeded.
// Expected on the result is the unquoted count. When none succeed the
// comma-only single-quote splitter is used, which cannot fail. The only error
// is ErrNoData for text without any non-blank line.
func ReadGrid(text string, opt ReadOptions) (*GridResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoData
	}
	delim := opt.Delimiter
	if delim == 0 {
		delim = ','
		if d, ok := SniffDelimiter(strings.NewReader(text)); ok {
			delim = d
		}
	}
	strategies := opt.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}

	head := firstLine(text)
	res := &GridResult{Delimiter: delim, Expected: expectedWidth(head, delim, 0)}
	var last *Grid
	lastName := ""
	for _, s := range strategies {
		want := expectedWidth(head, delim, s.Quote)
		records, err := s.Parse(text, delim)
		if err == nil {
			err = checkWidths(records)
		}
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name, Expected: want, Err: err})
			continue
		}
		w := len(records[0])
		res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name, Width: w, Expected: want})
		last, lastName = NewGrid(records, w), s.Name
		if w == want {
			res.Grid, res.Strategy = last, s.Name
			return res, nil
		}
	}
	if last != nil {
		res.Grid, res.Strategy = last, lastName
		return res, nil
	}
	res.Grid = splitFallback(text)
	res.Strategy = FallbackStrategy
	if res.Grid.Len() == 0 {
		return nil, ErrNoData
	}
	return res, nil
}

// expectedWidth counts the fields of line, ignoring delimiters between quote
// characters. A zero quote counts every delimiter.
func expectedWidth(line string, delim, quote rune) int {
	n, in := 1, false
	for _, ch := range line {
		switch {
		case quote != 0 && ch == quote:
			in = !in
		case ch == delim && !in:
			n++
		}
	}
	return n
}

// checkWidths rejects parses where a later row is wider than the first.
func checkWidths(records [][]string) error {
	if len(records) == 0 {
		return ErrNoData
	}
	want := len(records[0])
	for i, rec := range records[1:] {
		if len(rec) > want {
			return fmt.Errorf("row %d: expected %d fields, saw %d", i+2, want, len(rec))
		}
	}
	return nil
}

var quoteSwap = strings.NewReplacer(`"`, `'`, `'`, `"`)

// parseQuoted reads text with encoding/csv. A single-quote character is
// handled by exchanging both quote characters before and after parsing.
func parseQuoted(text string, delim, quote rune, lazy bool) ([][]string, error) {
	src := text
	if quote == '\'' {
		src = quoteSwap.Replace(text)
	}
	r := csv.NewReader(strings.NewReader(src))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = lazy
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if quote == '\'' {
		for _, rec := range records {
			for i := range rec {
				rec[i] = quoteSwap.Replace(rec[i])
			}
		}
	}
	return records, nil
}

func parseUnquoted(text string, delim rune) ([][]string, error) {
	var records [][]string
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		records = append(records, strings.Split(ln, string(delim)))
	}
	return records, nil
}

// splitFallback splits on commas outside single quotes. The first non-blank
// line fixes the width; later rows are padded or truncated to it.
func splitFallback(text string) *Grid {
	var records [][]string
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		records = append(records, splitOutsideSingleQuotes(ln))
	}
	if len(records) == 0 {
		return &Grid{}
	}
	return NewGrid(records, len(records[0]))
}

func splitOutsideSingleQuotes(line string) []string {
	var parts []string
	var cur bytes.Buffer
	inQuote := false
	for _, ch := range line {
		switch {
		case ch == '\'':
			inQuote = !inQuote
			cur.WriteRune(ch)
		case ch == ',' && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	parts = append(parts, cur.String())
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 2 && p[0] == '\'' && p[len(p)-1] == '\'' {
			p = strings.TrimSpace(p[1 : len(p)-1])
		}
		parts[i] = p
	}
	return parts
}
