// Package handler implements the HTTP handlers for the tag ledger API.
// All handlers are methods on Server. Methods are split into files by
// concern (tag.go for issuance and confirmation, admin.go for operator
// endpoints) but all share the same Server struct.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/assetops/tagledger/internal/domain"
)

// LedgerServicer defines the business operations the handlers depend on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the database or service layer.
type LedgerServicer interface {
	Preview(ctx context.Context, prefix string, padding int) (string, error)
	Allocate(ctx context.Context, prefix string, padding int) (domain.TagRecord, error)
	Confirm(ctx context.Context, fullTag string, externalID int64) (domain.TagRecord, error)
	Reset(ctx context.Context, prefix string, newStart int, force bool) (domain.SequenceReset, error)
	ListStale(ctx context.Context, olderThan time.Duration, prefix string, p domain.PaginationParams) ([]domain.TagRecord, int64, error)
}

// Defaults carries the deployment-level fallbacks applied when a request
// does not name a prefix, padding, or staleness threshold. They come from
// the environment at boot and are passed down explicitly — the ledger core
// has no hidden configuration dependency.
type Defaults struct {
	Prefix     string
	Padding    int
	StaleAfter time.Duration
}

// Server holds the handler dependencies for all API endpoints.
type Server struct {
	ledger   LedgerServicer
	defaults Defaults
	log      *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(ledger LedgerServicer, defaults Defaults, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{ledger: ledger, defaults: defaults, log: log}
}

// Routes returns the chi router for all ledger endpoints. Mount it under /
// in main after the shared middleware chain.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/tags/next", s.PreviewTag)
	r.Post("/tags/allocations", s.AllocateTag)
	r.Post("/tags/confirmations", s.ConfirmTag)
	r.Post("/tags/sequence-resets", s.ResetSequence)
	r.Get("/tags/stale", s.ListStaleTags)
	return r
}

// writeJSON serializes v to the response with the given status code.
// Encoding errors at this point mean the response is already partially
// written; they are logged and otherwise dropped.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.ErrorContext(r.Context(), "encode response", "error", err)
	}
}
