package analysis

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText turns raw file bytes into newline-normalized UTF-8 text.
// Input that is not valid UTF-8 is read as Windows-1252, which covers the
// Latin-1 exports produced by most spreadsheet tools.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		if dec, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
			data = dec
		}
	}
	s := string(data)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// DropFirstLine removes leading blank lines and the first non-blank line.
func DropFirstLine(text string) string {
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			return ""
		}
		line := text[:i]
		text = text[i+1:]
		if strings.TrimSpace(line) != "" {
			return text
		}
	}
}

// firstLine returns the first non-blank line of text.
func firstLine(text string) string {
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) != "" {
			return ln
		}
	}
	return ""
}
