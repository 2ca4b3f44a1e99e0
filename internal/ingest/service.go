// Package ingest runs the analyze and import steps of an upload.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
	"github.com/KaramelBytes/sheetloom/internal/parser"
	"github.com/KaramelBytes/sheetloom/internal/session"
	"github.com/KaramelBytes/sheetloom/internal/storage"
	"github.com/KaramelBytes/sheetloom/internal/timepoint"
	"github.com/KaramelBytes/sheetloom/internal/utils"
	"github.com/KaramelBytes/sheetloom/internal/workspace"
)

// Store persists typed rows for an owner.
type Store interface {
	BulkCreateTaxonomy(ctx context.Context, owner string, header []string, rows [][]string) (storage.BulkResult, error)
	BulkCreateAbundance(ctx context.Context, owner, source string, recs []timepoint.Record) (storage.BulkResult, error)
}

// Workspaces maps an owner to their upload folder.
type Workspaces interface {
	Save(owner, name string, r io.Reader) (*workspace.Upload, error)
	Locate(owner, name string) (string, error)
	OutputPath(owner, name string) (string, error)
	MarkImported(owner, name string, outputs []string) error
}

// Archiver copies an output file somewhere durable and returns its URI.
type Archiver interface {
	Archive(ctx context.Context, owner, path string) (string, error)
}

// DefaultAllowedExtensions lists upload types accepted when none are configured.
var DefaultAllowedExtensions = []string{"csv", "tsv", "txt", "xlsx"}

// Config wires a Service. Only Workspaces is required.
type Config struct {
	Workspaces          Workspaces
	Store               Store
	Sessions            session.Store
	Archiver            Archiver
	Analyzer            *analysis.Analyzer
	Decomposer          *timepoint.Decomposer
	Delimiter           rune
	AllowedExtensions   []string
	MaxParallelSheets   int
	DefaultTaxonomyPath string
	Logger              *slog.Logger
}

// Service implements upload analysis and import.
type Service struct {
	ws       Workspaces
	store    Store
	sessions session.Store
	archiver Archiver
	analyzer *analysis.Analyzer
	decomp   *timepoint.Decomposer
	delim    rune
	allowed  map[string]bool
	parallel int
	taxPath  string
	log      *slog.Logger
	now      func() time.Time
}

// New returns a Service, filling unset collaborators with defaults.
func New(cfg Config) (*Service, error) {
	if cfg.Workspaces == nil {
		return nil, errors.New("ingest: workspaces are required")
	}
	s := &Service{
		ws:       cfg.Workspaces,
		store:    cfg.Store,
		sessions: cfg.Sessions,
		archiver: cfg.Archiver,
		analyzer: cfg.Analyzer,
		decomp:   cfg.Decomposer,
		delim:    cfg.Delimiter,
		parallel: cfg.MaxParallelSheets,
		taxPath:  cfg.DefaultTaxonomyPath,
		log:      cfg.Logger,
		now:      time.Now,
	}
	if s.sessions == nil {
		s.sessions = session.NewMemoryStore(session.DefaultTTL)
	}
	if s.analyzer == nil {
		s.analyzer = analysis.NewAnalyzer()
	} else if s.analyzer.Classifier == nil {
		a := *s.analyzer
		a.Classifier = analysis.DefaultClassifier()
		s.analyzer = &a
	}
	if s.decomp == nil {
		s.decomp = timepoint.New(nil, "")
	}
	if s.parallel <= 0 {
		s.parallel = 4
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = DefaultAllowedExtensions
	}
	s.allowed = make(map[string]bool, len(exts))
	for _, e := range exts {
		s.allowed[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")] = true
	}
	return s, nil
}

func (s *Service) checkType(fileType string) error {
	ft := strings.TrimPrefix(strings.ToLower(fileType), ".")
	if !s.allowed[ft] {
		return &ValidationError{Field: "file_type", Reason: fmt.Sprintf("unsupported file type %q", fileType)}
	}
	return nil
}

// Upload stores r in the owner's upload folder under a secured name.
func (s *Service) Upload(owner, name string, r io.Reader) (*workspace.Upload, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "file", Reason: "no file provided"}
	}
	if err := s.checkType(parser.Kind(name)); err != nil {
		return nil, err
	}
	return s.ws.Save(owner, name, r)
}

type sheetInput struct {
	name        string
	first, skip analysis.Candidate
}

// Analyze reads every sheet of an uploaded file, analyzes the sheets in
// parallel and caches the report for the import step. A sheet that cannot be
// read is reported without data; the call fails only when no sheet could be
// read at all.
func (s *Service) Analyze(ctx context.Context, owner, fileName string) (*analysis.FileReport, error) {
	name := utils.SecureFilename(fileName)
	log := s.log.With("owner", owner, "file", name)

	path, err := s.ws.Locate(owner, name)
	if err != nil {
		return nil, err
	}
	src, err := parser.Open(path, analysis.ReadOptions{Delimiter: s.delim})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer src.Close()

	sheets := src.Sheets()
	inputs := make([]sheetInput, len(sheets))
	var firstErr error
	failed := 0
	for i, sh := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inputs[i].name = sh
		first, skip, err := src.Candidates(sh)
		if err != nil {
			log.Warn("sheet could not be read", "sheet", sh, "error", err)
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		inputs[i].first, inputs[i].skip = first, skip
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: %w", name, analysis.ErrNoData)
	}
	if failed == len(sheets) {
		return nil, fmt.Errorf("read %s: %w", name, firstErr)
	}

	results := make([]analysis.SheetAnalysis, len(inputs))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.parallel)
	for i := range inputs {
		in := inputs[i]
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.analyzer.Analyze(in.name, in.first, in.skip)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	rep := &analysis.FileReport{
		FileName:   name,
		FileType:   src.Kind(),
		Sheets:     results,
		AnalyzedAt: s.now().UTC(),
	}
	if err := s.sessions.Put(ctx, owner, rep); err != nil {
		return nil, fmt.Errorf("cache analysis: %w", err)
	}
	log.Info("analyzed upload", "sheets", len(results))
	return rep, nil
}

// Report returns the cached analysis of an upload.
func (s *Service) Report(ctx context.Context, owner, fileName string) (*analysis.FileReport, error) {
	return s.sessions.Get(ctx, owner, utils.SecureFilename(fileName))
}

type preparedSheet struct {
	name   string
	output string
	header []string
	rows   [][]string
	typ    analysis.SheetType
}

// Import applies the user's selections to an analyzed upload. All selections
// are resolved before anything is written; sheets are then committed in order.
func (s *Service) Import(ctx context.Context, owner string, req ImportRequest) (*ImportResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkType(req.FileType); err != nil {
		return nil, err
	}
	name := utils.SecureFilename(req.FileName)
	log := s.log.With("owner", owner, "file", name)

	path, err := s.ws.Locate(owner, name)
	if err != nil {
		return nil, err
	}

	cached, err := s.sessions.Get(ctx, owner, name)
	switch {
	case errors.Is(err, session.ErrNotFound):
		cached = nil
	case err != nil:
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	if cached != nil {
		for sh := range req.Selections {
			if _, ok := cached.Sheet(sh); !ok {
				return nil, &ValidationError{Field: "selections." + sh, Reason: "sheet was not part of the analysis"}
			}
		}
	}

	src, err := parser.Open(path, analysis.ReadOptions{Delimiter: s.delim})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer src.Close()

	known := map[string]bool{}
	for _, sh := range src.Sheets() {
		known[sh] = true
	}
	for sh := range req.Selections {
		if !known[sh] {
			return nil, &ValidationError{Field: "selections." + sh, Reason: "sheet not found in file"}
		}
	}

	var prepared []preparedSheet
	used := map[string]bool{}
	for _, sh := range src.Sheets() {
		sel, ok := req.Selections[sh]
		if !ok || !sel.Confirmed {
			continue
		}
		ps, err := s.prepare(src, sh, sel, cached)
		if err != nil {
			return nil, err
		}
		ps.output = uniqueName(used, outputName(name, src.Kind(), sh))
		prepared = append(prepared, ps)
	}

	res := &ImportResult{Message: "Import completed", Imported: []SheetImport{}}
	var outputs []string
	for _, ps := range prepared {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := s.commit(ctx, log.With("sheet", ps.name), owner, name, ps)
		if err != nil {
			return res, err
		}
		res.Imported = append(res.Imported, out)
		outputs = append(outputs, filepath.Base(out.Path))
	}
	if err := s.ws.MarkImported(owner, name, outputs); err != nil {
		log.Warn("could not update upload manifest", "error", err)
	}
	log.Info("import finished", "sheets", len(res.Imported))
	return res, nil
}

func (s *Service) prepare(src parser.Source, sheet string, sel SheetSelection, cached *analysis.FileReport) (preparedSheet, error) {
	mode, err := analysis.ParseHeaderMode(sel.HeaderMode)
	if err != nil {
		return preparedSheet{}, &ValidationError{Field: "selections." + sheet + ".header_mode", Reason: err.Error()}
	}
	cand, err := src.Candidate(sheet, mode)
	if err != nil {
		return preparedSheet{}, &SheetError{Sheet: sheet, Stage: "read", Err: err}
	}
	header := analysis.ApplyRenames(cand.Header, sel.Renames)
	header, rows, err := analysis.KeepDuplicates(header, cand.Rows, sel.DuplicateKeep)
	if err != nil {
		var se *analysis.SelectionError
		if errors.As(err, &se) {
			se.Sheet = sheet
		}
		return preparedSheet{}, err
	}

	typ := analysis.TypeUnknown
	switch {
	case sel.DetectedType != "":
		typ, _ = analysis.ParseSheetType(sel.DetectedType)
	case cached != nil:
		if a, ok := cached.Sheet(sheet); ok {
			typ = a.DetectedType
		}
	default:
		typ = s.analyzer.Classifier.Classify(header)
	}
	return preparedSheet{name: sheet, header: header, rows: rows, typ: typ}, nil
}

func outputName(file, kind, sheet string) string {
	base := strings.TrimSuffix(file, filepath.Ext(file))
	if sheet == parser.CSVSheet && kind != "xlsx" {
		return "import_" + base + ".csv"
	}
	return "import_" + base + "_" + utils.SecureFilename(sheet) + ".csv"
}

// uniqueName returns name, or name with a __N suffix before the extension when
// an earlier sheet of the same import already claimed it.
func uniqueName(used map[string]bool, name string) string {
	out := name
	if used[out] {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		for idx := 2; used[out]; idx++ {
			out = fmt.Sprintf("%s__%d%s", base, idx, ext)
		}
	}
	used[out] = true
	return out
}

func (s *Service) commit(ctx context.Context, log *slog.Logger, owner, file string, ps preparedSheet) (SheetImport, error) {
	out := SheetImport{Sheet: ps.name, Rows: len(ps.rows), Cols: len(ps.header), DetectedType: ps.typ}

	path, err := s.ws.OutputPath(owner, ps.output)
	if err != nil {
		return out, &SheetError{Sheet: ps.name, Stage: "output", Err: err}
	}
	grid := analysis.NewGrid(append([][]string{ps.header}, ps.rows...), len(ps.header))
	var buf bytes.Buffer
	if err := grid.WriteCSV(&buf); err != nil {
		return out, &SheetError{Sheet: ps.name, Stage: "output", Err: err}
	}
	if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
		return out, &SheetError{Sheet: ps.name, Stage: "output", Err: err}
	}
	out.Path = path
	log.Info("wrote sheet", "path", path, "rows", out.Rows, "cols", out.Cols)

	if s.store != nil {
		var (
			res    storage.BulkResult
			stored bool
		)
		switch ps.typ {
		case analysis.TypeTaxonomy:
			res, err = s.store.BulkCreateTaxonomy(ctx, owner, ps.header, ps.rows)
			stored = true
		case analysis.TypeAbundance:
			recs, st := s.decomp.Decompose(log, ps.header, ps.rows)
			log.Debug("decomposed abundance matrix", "records", len(recs), "cells", st.Cells, "skipped", st.Skipped, "unparsable", st.Unparsable)
			res, err = s.store.BulkCreateAbundance(ctx, owner, file+"#"+ps.name, recs)
			stored = true
		}
		if err != nil {
			if rmErr := os.Remove(path); rmErr != nil {
				log.Warn("could not remove output after failed store", "path", path, "error", rmErr)
			}
			out.Path = ""
			return out, &SheetError{Sheet: ps.name, Stage: "store", Err: err}
		}
		if stored {
			n := res.Created
			out.ImportedToDB = &n
			out.FailedRows = res.Failed
			for _, re := range res.Errors {
				log.Warn("row skipped", "row", re.Row, "error", re.Err)
			}
		}
	}

	if s.archiver != nil {
		uri, err := s.archiver.Archive(ctx, owner, path)
		if err != nil {
			return out, &SheetError{Sheet: ps.name, Stage: "archive", Err: err}
		}
		out.ArchiveURI = uri
	}
	return out, nil
}

// ImportDefaultTaxonomy copies the configured reference taxonomy into the
// owner's folder and imports its first sheet with the analyzer's proposals.
func (s *Service) ImportDefaultTaxonomy(ctx context.Context, owner string) (*ImportResult, error) {
	if s.taxPath == "" {
		return nil, ErrNoDefaultTaxonomy
	}
	f, err := os.Open(s.taxPath)
	if err != nil {
		return nil, fmt.Errorf("open default taxonomy: %w", err)
	}
	up, err := s.Upload(owner, filepath.Base(s.taxPath), f)
	f.Close()
	if err != nil {
		return nil, err
	}
	rep, err := s.Analyze(ctx, owner, up.Name)
	if err != nil {
		return nil, err
	}
	if len(rep.Sheets) == 0 {
		return nil, fmt.Errorf("%s: %w", up.Name, analysis.ErrNoData)
	}
	first := rep.Sheets[0]
	sel := AcceptProposals(first)
	sel.Confirmed = true
	sel.DetectedType = string(analysis.TypeTaxonomy)
	req := ImportRequest{
		FileName:   up.Name,
		FileType:   rep.FileType,
		Selections: map[string]SheetSelection{first.SheetName: sel},
	}
	return s.Import(ctx, owner, req)
}
