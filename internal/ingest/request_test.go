package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
)

func TestImportRequestValidate(t *testing.T) {
	ok := map[string]SheetSelection{"CSV": {Confirmed: true}}
	cases := []struct {
		name  string
		req   ImportRequest
		field string
	}{
		{"no file", ImportRequest{FileType: "csv", Selections: ok}, "file_name"},
		{"no type", ImportRequest{FileName: "a.csv", Selections: ok}, "file_type"},
		{"no selections", ImportRequest{FileName: "a.csv", FileType: "csv"}, "selections"},
		{"bad mode", ImportRequest{FileName: "a.csv", FileType: "csv", Selections: map[string]SheetSelection{"CSV": {HeaderMode: "second_row"}}}, "selections.CSV.header_mode"},
		{"bad type", ImportRequest{FileName: "a.csv", FileType: "csv", Selections: map[string]SheetSelection{"CSV": {DetectedType: "genome"}}}, "selections.CSV.detected_type"},
		{"negative keep", ImportRequest{FileName: "a.csv", FileType: "csv", Selections: map[string]SheetSelection{"CSV": {DuplicateKeep: map[string]int{"age": -1}}}}, "selections.CSV.duplicate_keep.age"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
	valid := ImportRequest{FileName: "a.csv", FileType: "csv", Selections: ok}
	assert.NoError(t, valid.Validate())
}

func TestAcceptProposals(t *testing.T) {
	a := analysis.SheetAnalysis{
		SheetName:       "Visits",
		HasData:         true,
		HeaderMode:      analysis.SkipFirstRow,
		Duplicates:      map[string][]int{"age": {1, 3}, "Start_Date": {4, 6}},
		ProposedRenames: map[string]string{"Start_Date": "drug_Start_Date"},
		DetectedType:    analysis.TypePatient,
	}
	sel := AcceptProposals(a)
	assert.True(t, sel.Confirmed)
	assert.Equal(t, "skip_first_row", sel.HeaderMode)
	assert.Equal(t, "patient", sel.DetectedType)
	assert.Equal(t, map[string]int{"age": 0, "drug_Start_Date": 0}, sel.DuplicateKeep)

	sel.Renames["x"] = "y"
	assert.NotContains(t, a.ProposedRenames, "x")

	assert.False(t, AcceptProposals(analysis.SheetAnalysis{}).Confirmed)
}
