// Package timepoint reshapes wide abundance matrices, where each column is a
// subject measured at one timepoint, into per-(subject, taxon) records.
package timepoint

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// Timepoint maps a column-name suffix to a label.
type Timepoint struct {
	Label  string `mapstructure:"label" yaml:"label" json:"label"`
	Suffix string `mapstructure:"suffix" yaml:"suffix" json:"suffix"`
}

// DefaultTimepoints are in chronological order.
var DefaultTimepoints = []Timepoint{
	{Label: "pre", Suffix: ".P"},
	{Label: "during", Suffix: ".E"},
	{Label: "post", Suffix: ".2.4M"},
}

// DefaultDashMarker is the cell text meaning "not measured".
const DefaultDashMarker = "-"

// Record holds one subject's values for one taxon.
type Record struct {
	SubjectID string             `json:"subject_id"`
	TaxonID   string             `json:"taxon_id"`
	Values    map[string]float64 `json:"values"`
	Deltas    map[string]float64 `json:"deltas"`
}

// Value returns the measurement for label, if observed.
func (r *Record) Value(label string) (float64, bool) {
	v, ok := r.Values[label]
	return v, ok
}

// Delta returns later minus earlier, if both were observed.
func (r *Record) Delta(later, earlier string) (float64, bool) {
	v, ok := r.Deltas[DeltaKey(later, earlier)]
	return v, ok
}

// DeltaKey names the difference between two timepoints.
func DeltaKey(later, earlier string) string { return later + "_" + earlier }

// Stats summarizes one decomposition.
type Stats struct {
	Rows       int
	Columns    int
	Cells      int
	Skipped    int
	Unparsable int
}

// Decomposer splits matrix columns on timepoint suffixes.
type Decomposer struct {
	Timepoints []Timepoint
	DashMarker string
}

// New returns a decomposer. Empty arguments fall back to the defaults.
func New(tps []Timepoint, dash string) *Decomposer {
	if len(tps) == 0 {
		tps = DefaultTimepoints
	}
	if dash == "" {
		dash = DefaultDashMarker
	}
	return &Decomposer{Timepoints: tps, DashMarker: dash}
}

// Match splits a column name into subject and timepoint label. The first
// configured suffix that matches wins.
func (d *Decomposer) Match(column string) (subject, label string, ok bool) {
	col := strings.TrimSpace(column)
	for _, tp := range d.Timepoints {
		if tp.Suffix == "" || !strings.HasSuffix(col, tp.Suffix) {
			continue
		}
		subject = strings.TrimSpace(strings.TrimSuffix(col, tp.Suffix))
		if subject == "" {
			return "", "", false
		}
		return subject, tp.Label, true
	}
	return "", "", false
}

// PairedDeltas lists the (later, earlier) pairs that get a delta: each
// adjacent pair plus last against first when more than two timepoints exist.
func (d *Decomposer) PairedDeltas() [][2]string {
	n := len(d.Timepoints)
	var out [][2]string
	for i := 0; i+1 < n; i++ {
		out = append(out, [2]string{d.Timepoints[i+1].Label, d.Timepoints[i].Label})
	}
	if n > 2 {
		out = append(out, [2]string{d.Timepoints[n-1].Label, d.Timepoints[0].Label})
	}
	return out
}

type columnRef struct {
	index   int
	subject string
	label   string
}

// Decompose reads the first column as the taxon identifier and every
// suffix-matching column as a measurement. Records come out in first-seen
// (subject, taxon) order. Unparsable cells are skipped and logged on log.
func (d *Decomposer) Decompose(log *slog.Logger, header []string, rows [][]string) ([]Record, Stats) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var st Stats
	if len(header) < 2 {
		return nil, st
	}
	var cols []columnRef
	for i := 1; i < len(header); i++ {
		if subject, label, ok := d.Match(header[i]); ok {
			cols = append(cols, columnRef{index: i, subject: subject, label: label})
		}
	}
	st.Columns = len(cols)

	type key struct{ subject, taxon string }
	index := map[key]int{}
	var out []Record
	for r, row := range rows {
		if len(row) == 0 {
			continue
		}
		taxon := strings.TrimSpace(row[0])
		if taxon == "" {
			continue
		}
		st.Rows++
		for _, c := range cols {
			if c.index >= len(row) {
				continue
			}
			raw := strings.TrimSpace(row[c.index])
			if raw == "" || raw == d.DashMarker {
				st.Skipped++
				continue
			}
			v, ok := parseNumeric(raw)
			if !ok {
				st.Unparsable++
				log.Warn("unparsable abundance value", "row", r+1, "column", header[c.index], "value", raw)
				continue
			}
			st.Cells++
			k := key{c.subject, taxon}
			i, seen := index[k]
			if !seen {
				i = len(out)
				index[k] = i
				out = append(out, Record{SubjectID: c.subject, TaxonID: taxon, Values: map[string]float64{}, Deltas: map[string]float64{}})
			}
			out[i].Values[c.label] = v
		}
	}

	pairs := d.PairedDeltas()
	for i := range out {
		for _, p := range pairs {
			later, okL := out[i].Values[p[0]]
			earlier, okE := out[i].Values[p[1]]
			if okL && okE {
				out[i].Deltas[DeltaKey(p[0], p[1])] = later - earlier
			}
		}
	}
	return out, st
}

// parseNumeric accepts '.' or ',' decimals with optional thousands
// separators and a trailing percent sign.
func parseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	raw = strings.ReplaceAll(raw, "\u00A0", "")
	raw = strings.ReplaceAll(raw, " ", "")
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	var dec, thou string
	switch {
	case cpos >= 0 && dpos >= 0 && cpos > dpos:
		dec, thou = ",", "."
	case cpos >= 0 && dpos >= 0:
		dec, thou = ".", ","
	case cpos >= 0:
		dec = ","
	default:
		return 0, false
	}
	if thou != "" {
		raw = strings.ReplaceAll(raw, thou, "")
	}
	raw = strings.Replace(raw, dec, ".", 1)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
