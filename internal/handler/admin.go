package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/assetops/tagledger/internal/domain"
)

// resetRequest is the body of POST /tags/sequence-resets.
type resetRequest struct {
	Prefix         string `json:"prefix"`
	NewStartNumber int    `json:"new_start_number"`
	Force          bool   `json:"force"`
}

// staleListResponse is the body of GET /tags/stale.
type staleListResponse struct {
	Data       []domain.TagRecord `json:"data"`
	Pagination pagination         `json:"pagination"`
}

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// ResetSequence handles POST /tags/sequence-resets.
// Administrative, rare: re-seeds where the next allocation for a prefix
// resumes. Without force, a start at or below the highest issued number is
// rejected with 409. A forced rewind is logged at warn level — the operator
// is knowingly creating the possibility of a clash.
func (s *Server) ResetSequence(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, r, http.StatusUnprocessableEntity, requestBody("invalid request body"))
		return
	}
	if req.Prefix == "" {
		req.Prefix = s.defaults.Prefix
	}

	reset, err := s.ledger.Reset(r.Context(), req.Prefix, req.NewStartNumber, req.Force)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			s.writeJSON(w, r, http.StatusUnprocessableEntity, validationBody(err))
		case errors.Is(err, domain.ErrWouldCollide):
			s.writeJSON(w, r, http.StatusConflict, collisionBody(err))
		default:
			s.internalError(w, r, err)
		}
		return
	}

	if reset.Forced {
		s.log.WarnContext(r.Context(), "forced sequence reset below issued maximum",
			"prefix", reset.Prefix, "start_number", reset.StartNumber)
	}
	s.writeJSON(w, r, http.StatusOK, reset)
}

// ListStaleTags handles GET /tags/stale.
// Returns reservations older than ?older_than= (Go duration, default from
// deployment config) that were never confirmed, oldest first, paginated via
// ?page= and ?limit=. An optional ?prefix= restricts the audit to one
// prefix. Read-only operator tooling; nothing is reclaimed.
func (s *Server) ListStaleTags(w http.ResponseWriter, r *http.Request) {
	olderThan := s.defaults.StaleAfter
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			s.writeJSON(w, r, http.StatusUnprocessableEntity, requestBody("older_than must be a duration like 24h"))
			return
		}
		olderThan = d
	}

	params := domain.NewPaginationParams(queryInt(r, "page"), queryInt(r, "limit"))

	records, total, err := s.ledger.ListStale(r.Context(), olderThan, r.URL.Query().Get("prefix"), params)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.writeJSON(w, r, http.StatusUnprocessableEntity, validationBody(err))
			return
		}
		s.internalError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, staleListResponse{
		Data:       records,
		Pagination: pagination{Page: params.Page, Limit: params.Limit, Total: total},
	})
}

// queryInt parses an optional integer query parameter, returning nil when
// absent or malformed. Malformed page/limit values fall back to defaults
// rather than failing the request.
func queryInt(r *http.Request, key string) *int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}
