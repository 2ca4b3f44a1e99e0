package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
	"github.com/KaramelBytes/sheetloom/internal/ingest"
	"github.com/KaramelBytes/sheetloom/internal/session"
	"github.com/KaramelBytes/sheetloom/internal/workspace"
)

// Ingestor is the upload workflow behind the handlers.
type Ingestor interface {
	Upload(owner, name string, r io.Reader) (*workspace.Upload, error)
	Analyze(ctx context.Context, owner, fileName string) (*analysis.FileReport, error)
	Report(ctx context.Context, owner, fileName string) (*analysis.FileReport, error)
	Import(ctx context.Context, owner string, req ingest.ImportRequest) (*ingest.ImportResult, error)
	ImportDefaultTaxonomy(ctx context.Context, owner string) (*ingest.ImportResult, error)
}

type handlers struct {
	svc      Ingestor
	maxBytes int64
	log      *slog.Logger
}

func newHandlers(svc Ingestor, opt Options) *handlers {
	mb := opt.MaxUploadMB
	if mb <= 0 {
		mb = 50
	}
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &handlers{svc: svc, maxBytes: mb << 20, log: log}
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	owner := ownerFrom(r.Context())
	up, err := h.svc.Upload(owner, hdr.Filename, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rep, err := h.svc.Analyze(r.Context(), owner, up.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (h *handlers) importSheets(w http.ResponseWriter, r *http.Request) {
	var req ingest.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.Import(r.Context(), ownerFrom(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *handlers) importDefaultTaxonomy(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ImportDefaultTaxonomy(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *handlers) analysis(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Report(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "file"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// statusFor maps workflow errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		ve *ingest.ValidationError
		se *analysis.SelectionError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &se),
		errors.Is(err, workspace.ErrInvalidName), errors.Is(err, ingest.ErrNoDefaultTaxonomy):
		return http.StatusBadRequest
	case errors.Is(err, workspace.ErrFileNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
