package analysis

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const sniffLines = 10

// sniffCandidates is also the tie-break order.
var sniffCandidates = []rune{',', ';', '\t'}

// SniffDelimiter guesses the field separator from the first lines of r.
// It reports false when no candidate clearly dominates: the winner must occur
// at least once and more than 1.5x as often as the runner-up.
func SniffDelimiter(r io.Reader) (rune, bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 8<<20)
	counts := make([]int, len(sniffCandidates))
	n := 0
	for n < sniffLines && sc.Scan() {
		line := sc.Text()
		for i, c := range sniffCandidates {
			counts[i] += strings.Count(line, string(c))
		}
		n++
	}
	if sc.Err() != nil || n == 0 {
		return 0, false
	}
	return pickDelimiter(counts)
}

// SniffDelimiterFile opens path and sniffs it. Any I/O error is reported as
// undetermined.
func SniffDelimiterFile(path string) (rune, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	return SniffDelimiter(f)
}

func pickDelimiter(counts []int) (rune, bool) {
	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	if counts[best] == 0 {
		return 0, false
	}
	runnerUp := 0
	for i, c := range counts {
		if i != best && c > runnerUp {
			runnerUp = c
		}
	}
	if 2*counts[best] > 3*runnerUp {
		return sniffCandidates[best], true
	}
	return 0, false
}

// DelimiterName renders a delimiter for logs and reports.
func DelimiterName(d rune) string {
	switch d {
	case '\t':
		return "tab"
	case 0:
		return "undetermined"
	default:
		return string(d)
	}
}

// ParseDelimiter accepts the CLI spellings of a delimiter.
func ParseDelimiter(s string) (rune, bool) {
	switch s {
	case ",", "comma":
		return ',', true
	case ";", "semicolon":
		return ';', true
	case "\t", "tab":
		return '\t', true
	}
	return 0, false
}
