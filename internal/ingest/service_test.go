package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
	"github.com/KaramelBytes/sheetloom/internal/session"
	"github.com/KaramelBytes/sheetloom/internal/storage"
	"github.com/KaramelBytes/sheetloom/internal/timepoint"
	"github.com/KaramelBytes/sheetloom/internal/workspace"
)

const owner = "lab@example.org"

type fakeArchiver struct{ paths []string }

func (f *fakeArchiver) Archive(_ context.Context, owner, p string) (string, error) {
	f.paths = append(f.paths, p)
	return "s3://bucket/" + filepath.Base(p), nil
}

type fixture struct {
	svc      *Service
	db       *storage.DB
	ws       *workspace.Manager
	archiver *fakeArchiver
}

func newFixture(t *testing.T, taxPath string) fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(context.Background(), "sqlite", filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ws := workspace.NewManager(filepath.Join(dir, "instance"))
	arch := &fakeArchiver{}
	svc, err := New(Config{
		Workspaces:          ws,
		Store:               db,
		Sessions:            session.NewMemoryStore(session.DefaultTTL),
		Archiver:            arch,
		MaxParallelSheets:   2,
		DefaultTaxonomyPath: taxPath,
	})
	require.NoError(t, err)
	return fixture{svc: svc, db: db, ws: ws, archiver: arch}
}

func (f fixture) upload(t *testing.T, name, content string) {
	t.Helper()
	_, err := f.svc.Upload(owner, name, strings.NewReader(content))
	require.NoError(t, err)
}

func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Bracken"))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	rows := [][]any{
		{"taxon", "P001.P", "P001.E", "P002.P"},
		{"T1", 2, 3, 5},
		{"T2", 1, "-", 4},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Bracken", cell, &r))
	}
	require.NoError(t, f.SetCellValue("Notes", "A1", "free text"))
	p := filepath.Join(t.TempDir(), "counts.xlsx")
	require.NoError(t, f.SaveAs(p))
	return p
}

func TestAnalyzeCSVBanner(t *testing.T) {
	fx := newFixture(t, "")
	fx.upload(t, "patients.csv", "Exported 2024\npatient_id;age;age\nP1;34;35\nP2;40;41\n")

	rep, err := fx.svc.Analyze(context.Background(), owner, "patients.csv")
	require.NoError(t, err)
	require.Len(t, rep.Sheets, 1)
	sh := rep.Sheets[0]
	assert.Equal(t, "CSV", sh.SheetName)
	assert.Equal(t, analysis.SkipFirstRow, sh.HeaderMode)
	assert.Equal(t, analysis.TypePatient, sh.DetectedType)
	assert.Equal(t, map[string][]int{"age": {1, 2}}, sh.Duplicates)

	cached, err := fx.svc.Report(context.Background(), owner, "patients.csv")
	require.NoError(t, err)
	assert.Equal(t, rep.Sheets, cached.Sheets)
}

func TestAnalyzeMissingFile(t *testing.T) {
	fx := newFixture(t, "")
	_, err := fx.svc.Analyze(context.Background(), owner, "nope.csv")
	assert.ErrorIs(t, err, workspace.ErrFileNotFound)
}

func TestUploadRejectsLegacyWorkbook(t *testing.T) {
	fx := newFixture(t, "")
	_, err := fx.svc.Upload(owner, "old.xls", strings.NewReader("x"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "file_type", ve.Field)
}

func TestImportTaxonomyCSV(t *testing.T) {
	fx := newFixture(t, "")
	fx.upload(t, "taxa.csv", "taxonomy_id,domain,phylum,genus\n"+
		"T1,Bacteria,Firmicutes,Blautia\n"+
		",Bacteria,Bacteroidota,Bacteroides\n"+
		"T3,Archaea,Euryarchaeota,Methanobrevibacter\n")
	ctx := context.Background()
	_, err := fx.svc.Analyze(ctx, owner, "taxa.csv")
	require.NoError(t, err)

	res, err := fx.svc.Import(ctx, owner, ImportRequest{
		FileName:   "taxa.csv",
		FileType:   "csv",
		Selections: map[string]SheetSelection{"CSV": {Confirmed: true, HeaderMode: "first_row"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Import completed", res.Message)
	require.Len(t, res.Imported, 1)
	got := res.Imported[0]
	assert.Equal(t, analysis.TypeTaxonomy, got.DetectedType)
	assert.Equal(t, 3, got.Rows)
	assert.Equal(t, 4, got.Cols)
	assert.Equal(t, "import_taxa.csv", filepath.Base(got.Path))
	require.NotNil(t, got.ImportedToDB)
	assert.Equal(t, 2, *got.ImportedToDB)
	assert.Equal(t, 1, got.FailedRows)
	assert.Equal(t, "s3://bucket/import_taxa.csv", got.ArchiveURI)

	out, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "taxonomy_id,domain,phylum,genus\n"))

	n, err := fx.db.CountTaxonomy(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ups, err := fx.ws.List(owner)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.NotNil(t, ups[0].ImportedAt)
	assert.Equal(t, []string{"import_taxa.csv"}, ups[0].Outputs)
}

func TestImportWorkbookAbundance(t *testing.T) {
	fx := newFixture(t, "")
	src := writeWorkbook(t)
	f, err := os.Open(src)
	require.NoError(t, err)
	_, err = fx.svc.Upload(owner, "counts.xlsx", f)
	f.Close()
	require.NoError(t, err)

	ctx := context.Background()
	rep, err := fx.svc.Analyze(ctx, owner, "counts.xlsx")
	require.NoError(t, err)
	require.Len(t, rep.Sheets, 2)
	assert.Equal(t, "Bracken", rep.Sheets[0].SheetName)
	assert.Equal(t, analysis.TypeAbundance, rep.Sheets[0].DetectedType)
	assert.Equal(t, "Notes", rep.Sheets[1].SheetName)

	res, err := fx.svc.Import(ctx, owner, ImportRequest{
		FileName: "counts.xlsx",
		FileType: "xlsx",
		Selections: map[string]SheetSelection{
			"Bracken": {Confirmed: true, HeaderMode: "first_row"},
			"Notes":   {Confirmed: false},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Imported, 1)
	got := res.Imported[0]
	assert.Equal(t, "import_counts_Bracken.csv", filepath.Base(got.Path))
	require.NotNil(t, got.ImportedToDB)
	assert.Equal(t, 4, *got.ImportedToDB)

	recs, err := fx.db.ListAbundance(ctx, owner, "counts.xlsx#Bracken")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	first := recs[0]
	assert.Equal(t, "P001", first.SubjectID)
	assert.Equal(t, "T1", first.TaxonID)
	d, ok := first.Delta("during", "pre")
	require.True(t, ok)
	assert.InDelta(t, 1.0, d, 1e-9)
	_, ok = first.Delta("post", "pre")
	assert.False(t, ok)
}

func TestImportRejectsBadSelections(t *testing.T) {
	fx := newFixture(t, "")
	fx.upload(t, "patients.csv", "patient_id;age;age\nP1;34;35\n")
	ctx := context.Background()
	_, err := fx.svc.Analyze(ctx, owner, "patients.csv")
	require.NoError(t, err)

	t.Run("empty selections", func(t *testing.T) {
		_, err := fx.svc.Import(ctx, owner, ImportRequest{FileName: "patients.csv", FileType: "csv"})
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})
	t.Run("unknown sheet", func(t *testing.T) {
		_, err := fx.svc.Import(ctx, owner, ImportRequest{
			FileName:   "patients.csv",
			FileType:   "csv",
			Selections: map[string]SheetSelection{"Sheet9": {Confirmed: true}},
		})
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})
	t.Run("duplicate index out of range", func(t *testing.T) {
		_, err := fx.svc.Import(ctx, owner, ImportRequest{
			FileName:   "patients.csv",
			FileType:   "csv",
			Selections: map[string]SheetSelection{"CSV": {Confirmed: true, DuplicateKeep: map[string]int{"age": 2}}},
		})
		var se *analysis.SelectionError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "CSV", se.Sheet)
		p, _ := fx.ws.OutputPath(owner, "import_patients.csv")
		_, statErr := os.Stat(p)
		assert.True(t, errors.Is(statErr, os.ErrNotExist), "nothing should be written")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := fx.svc.Import(ctx, owner, ImportRequest{
			FileName:   "other.csv",
			FileType:   "csv",
			Selections: map[string]SheetSelection{"CSV": {Confirmed: true}},
		})
		assert.ErrorIs(t, err, workspace.ErrFileNotFound)
	})
}

func TestImportDefaultTaxonomy(t *testing.T) {
	ctx := context.Background()

	fx := newFixture(t, "")
	_, err := fx.svc.ImportDefaultTaxonomy(ctx, owner)
	assert.ErrorIs(t, err, ErrNoDefaultTaxonomy)

	p := filepath.Join(t.TempDir(), "reference_taxonomy.csv")
	require.NoError(t, os.WriteFile(p, []byte("Taxonomy_ID;Kingdom;Phylum;Genus\nT1;Bacteria;Firmicutes;Blautia\nT2;Bacteria;Bacteroidota;Bacteroides\n"), 0o644))
	fx = newFixture(t, p)
	res, err := fx.svc.ImportDefaultTaxonomy(ctx, owner)
	require.NoError(t, err)
	require.Len(t, res.Imported, 1)
	assert.Equal(t, analysis.TypeTaxonomy, res.Imported[0].DetectedType)

	rows, err := fx.db.ListTaxonomy(ctx, owner)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bacteria", rows[0].Domain)
}

func TestImportClassifiesWithoutConfiguredClassifier(t *testing.T) {
	ws := workspace.NewManager(filepath.Join(t.TempDir(), "instance"))
	svc, err := New(Config{Workspaces: ws, Analyzer: &analysis.Analyzer{}})
	require.NoError(t, err)
	_, err = svc.Upload(owner, "taxa.csv", strings.NewReader("taxonomy_id,domain,phylum,genus\nT1,Bacteria,Firmicutes,Blautia\n"))
	require.NoError(t, err)

	res, err := svc.Import(context.Background(), owner, ImportRequest{
		FileName:   "taxa.csv",
		FileType:   "csv",
		Selections: map[string]SheetSelection{"CSV": {Confirmed: true}},
	})
	require.NoError(t, err)
	require.Len(t, res.Imported, 1)
	assert.Equal(t, analysis.TypeTaxonomy, res.Imported[0].DetectedType)
}

func TestImportKeepsOutputsOfSimilarSheetNamesApart(t *testing.T) {
	fx := newFixture(t, "")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Data 1"))
	_, err := f.NewSheet("Data_1")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Data 1", "A1", &[]any{"a", "b"}))
	require.NoError(t, f.SetSheetRow("Data 1", "A2", &[]any{1, 2}))
	require.NoError(t, f.SetSheetRow("Data_1", "A1", &[]any{"c", "d"}))
	require.NoError(t, f.SetSheetRow("Data_1", "A2", &[]any{3, 4}))
	var buf strings.Builder
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)
	fx.upload(t, "w.xlsx", buf.String())

	res, err := fx.svc.Import(context.Background(), owner, ImportRequest{
		FileName: "w.xlsx",
		FileType: "xlsx",
		Selections: map[string]SheetSelection{
			"Data 1": {Confirmed: true, HeaderMode: "first_row"},
			"Data_1": {Confirmed: true, HeaderMode: "first_row"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Imported, 2)
	assert.Equal(t, "import_w_Data_1.csv", filepath.Base(res.Imported[0].Path))
	assert.Equal(t, "import_w_Data_1__2.csv", filepath.Base(res.Imported[1].Path))

	first, err := os.ReadFile(res.Imported[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(first))
	second, err := os.ReadFile(res.Imported[1].Path)
	require.NoError(t, err)
	assert.Equal(t, "c,d\n3,4\n", string(second))
}

type failingStore struct{}

func (failingStore) BulkCreateTaxonomy(context.Context, string, []string, [][]string) (storage.BulkResult, error) {
	return storage.BulkResult{}, errors.New("connection reset")
}

func (failingStore) BulkCreateAbundance(context.Context, string, string, []timepoint.Record) (storage.BulkResult, error) {
	return storage.BulkResult{}, errors.New("connection reset")
}

func TestImportRemovesOutputWhenStoreFails(t *testing.T) {
	ws := workspace.NewManager(filepath.Join(t.TempDir(), "instance"))
	svc, err := New(Config{Workspaces: ws, Store: failingStore{}})
	require.NoError(t, err)
	_, err = svc.Upload(owner, "taxa.csv", strings.NewReader("taxonomy_id,domain\nT1,Bacteria\n"))
	require.NoError(t, err)

	_, err = svc.Import(context.Background(), owner, ImportRequest{
		FileName:   "taxa.csv",
		FileType:   "csv",
		Selections: map[string]SheetSelection{"CSV": {Confirmed: true, DetectedType: "taxonomy"}},
	})
	var se *SheetError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "store", se.Stage)

	p, err := ws.OutputPath(owner, "import_taxa.csv")
	require.NoError(t, err)
	_, statErr := os.Stat(p)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))

	ups, err := ws.List(owner)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Nil(t, ups[0].ImportedAt)
}
