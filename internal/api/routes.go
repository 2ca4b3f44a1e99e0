// Package api exposes the upload workflow over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// OwnerHeader carries the caller's identity.
const OwnerHeader = "X-Owner"

type ownerKey struct{}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	MaxUploadMB int64
	Logger      *slog.Logger
}

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc Ingestor, opt Options) http.Handler {
	h := newHandlers(svc, opt)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := opt.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", OwnerHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)

	r.Route("/uploads", func(r chi.Router) {
		r.Use(requireOwner)
		r.Post("/analyze", h.analyze)
		r.Post("/import", h.importSheets)
		r.Post("/import-default-taxonomy", h.importDefaultTaxonomy)
		r.Get("/{file}/analysis", h.analysis)
	})
	return r
}

func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		owner := strings.TrimSpace(req.Header.Get(OwnerHeader))
		if owner == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), ownerKey{}, owner)))
	})
}

func ownerFrom(ctx context.Context) string {
	s, _ := ctx.Value(ownerKey{}).(string)
	return s
}
