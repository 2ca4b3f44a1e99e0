package analysis

import (
	"sort"
)

// DefaultDateMarkers are column names that get a positional rename.
var DefaultDateMarkers = []string{"Start_Date", "End_Date", "Start_DateEng", "End_DateEng"}

// ColumnProfile records every position of each column name.
type ColumnProfile struct {
	Names     []string
	Positions map[string][]int
}

// Profile indexes names by position.
func Profile(names []string) ColumnProfile {
	p := ColumnProfile{Names: names, Positions: make(map[string][]int, len(names))}
	for i, n := range names {
		p.Positions[n] = append(p.Positions[n], i)
	}
	return p
}

// Duplicates returns names that occur more than once with their positions in
// ascending order.
func (p ColumnProfile) Duplicates() map[string][]int {
	out := map[string][]int{}
	for n, pos := range p.Positions {
		if len(pos) > 1 {
			out[n] = append([]int(nil), pos...)
		}
	}
	return out
}

// ProposeRenames suggests "<previous column>_<marker>" for each marker column
// that has a predecessor. Later occurrences of the same marker win.
func ProposeRenames(names, markers []string) map[string]string {
	if markers == nil {
		markers = DefaultDateMarkers
	}
	set := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		set[m] = struct{}{}
	}
	out := map[string]string{}
	for i, n := range names {
		if _, ok := set[n]; !ok || i == 0 {
			continue
		}
		out[n] = names[i-1] + "_" + n
	}
	return out
}

// ApplyRenames returns a copy of header with renames applied.
func ApplyRenames(header []string, renames map[string]string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if to, ok := renames[h]; ok && to != "" {
			out[i] = to
		} else {
			out[i] = h
		}
	}
	return out
}

// KeepDuplicates drops every position of each named column except the one at
// keep[name] within that column's duplicate group. Names without duplicates
// accept index 0.
func KeepDuplicates(header []string, rows [][]string, keep map[string]int) ([]string, [][]string, error) {
	if len(keep) == 0 {
		return header, rows, nil
	}
	prof := Profile(header)
	names := make([]string, 0, len(keep))
	for n := range keep {
		names = append(names, n)
	}
	sort.Strings(names)

	drop := map[int]bool{}
	for _, n := range names {
		idx := keep[n]
		pos, ok := prof.Positions[n]
		if !ok {
			return nil, nil, &SelectionError{Column: n, Index: idx, Reason: "column not found"}
		}
		if idx < 0 || idx >= len(pos) {
			return nil, nil, &SelectionError{Column: n, Index: idx, Reason: "index out of range"}
		}
		for j, p := range pos {
			if j != idx {
				drop[p] = true
			}
		}
	}
	if len(drop) == 0 {
		return header, rows, nil
	}

	outHeader := make([]string, 0, len(header)-len(drop))
	for i, h := range header {
		if !drop[i] {
			outHeader = append(outHeader, h)
		}
	}
	outRows := make([][]string, len(rows))
	for r, row := range rows {
		nr := make([]string, 0, len(outHeader))
		for i, v := range row {
			if !drop[i] {
				nr = append(nr, v)
			}
		}
		outRows[r] = nr
	}
	return outHeader, outRows, nil
}
