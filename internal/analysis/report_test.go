package analysis

import (
	"reflect"
	"strings"
	"testing"
)

func TestAnalyzerAnalyze(t *testing.T) {
	text := "Exported from LIMS\npatient_id;age;age;Start_Date;sex\nP1;34;35;2024-01-01;F\nP2;40;41;2024-02-01;M\n"
	first, skip, err := ReadCandidates(text, ReadOptions{})
	if err != nil {
		t.Fatalf("ReadCandidates: %v", err)
	}
	got := NewAnalyzer().Analyze("CSV", first, skip)
	if !got.HasData || got.HeaderMode != SkipFirstRow {
		t.Fatalf("analysis = %+v", got)
	}
	if got.DetectedType != TypePatient {
		t.Fatalf("detected = %s", got.DetectedType)
	}
	if !reflect.DeepEqual(got.Duplicates, map[string][]int{"age": {1, 2}}) {
		t.Fatalf("duplicates = %#v", got.Duplicates)
	}
	if got.ProposedRenames["Start_Date"] != "age_Start_Date" {
		t.Fatalf("renames = %#v", got.ProposedRenames)
	}
	if got.Rows != 2 {
		t.Fatalf("rows = %d", got.Rows)
	}
}

func TestAnalyzerEmptySheet(t *testing.T) {
	got := NewAnalyzer().Analyze("Empty", Candidate{Mode: FirstRow, Header: []string{"a", "b"}}, Candidate{Mode: SkipFirstRow})
	if got.HasData || len(got.Columns) != 0 || got.DetectedType != TypeUnknown || got.HeaderMode != FirstRow {
		t.Fatalf("analysis = %+v", got)
	}
	if got.Columns == nil || got.Duplicates == nil || got.ProposedRenames == nil {
		t.Fatalf("collections should be empty, not nil")
	}
}

func TestFileReportMarkdown(t *testing.T) {
	rep := &FileReport{
		FileName: "samples.xlsx",
		FileType: "xlsx",
		Sheets: []SheetAnalysis{
			{SheetName: "Patients", HasData: true, HeaderMode: FirstRow, Columns: []string{"patient_id", "a|b"}, Duplicates: map[string][]int{}, DetectedType: TypePatient, Rows: 3},
			{SheetName: "Blank"},
		},
	}
	md := rep.Markdown()
	for _, want := range []string{"[UPLOAD ANALYSIS]", "File: samples.xlsx", "[SHEET] Patients", "- detected: patient", "| 1 | a/b |", "[SHEET] Blank", "- no data"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if s, ok := rep.Sheet("Patients"); !ok || s.Rows != 3 {
		t.Fatalf("Sheet lookup failed")
	}
}
