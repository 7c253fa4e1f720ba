package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/assetops/tagledger/internal/domain"
)

// allocateRequest is the body of POST /tags/allocations. Both fields are
// optional; absent fields fall back to the deployment defaults.
type allocateRequest struct {
	Prefix  string `json:"prefix"`
	Padding *int   `json:"padding"`
}

// confirmRequest is the body of POST /tags/confirmations, delivered by the
// external asset system's callback.
type confirmRequest struct {
	FullTag    string `json:"full_tag"`
	ExternalID int64  `json:"external_id"`
}

// PreviewTag handles GET /tags/next.
// Optional ?prefix= and ?padding= query parameters override the deployment
// defaults. No side effects: the returned tag is informational only and can
// be consumed by any concurrent allocation.
func (s *Server) PreviewTag(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = s.defaults.Prefix
	}
	padding, ok := s.paddingParam(w, r)
	if !ok {
		return
	}

	fullTag, err := s.ledger.Preview(r.Context(), prefix, padding)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.writeJSON(w, r, http.StatusUnprocessableEntity, validationBody(err))
			return
		}
		s.internalError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]string{"full_tag": fullTag})
}

// AllocateTag handles POST /tags/allocations.
// Reserves the next number for the prefix and returns the new ledger record.
// The caller is responsible for then creating the corresponding record in
// the external system and letting its callback confirm the tag.
func (s *Server) AllocateTag(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, r, http.StatusUnprocessableEntity, requestBody("invalid request body"))
		return
	}
	if req.Prefix == "" {
		req.Prefix = s.defaults.Prefix
	}
	padding := s.defaults.Padding
	if req.Padding != nil {
		padding = *req.Padding
	}

	rec, err := s.ledger.Allocate(r.Context(), req.Prefix, padding)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			s.writeJSON(w, r, http.StatusUnprocessableEntity, validationBody(err))
		case errors.Is(err, domain.ErrAllocationContention):
			s.writeJSON(w, r, http.StatusServiceUnavailable, contentionBody(err))
		default:
			s.internalError(w, r, err)
		}
		return
	}

	s.writeJSON(w, r, http.StatusCreated, rec)
}

// ConfirmTag handles POST /tags/confirmations.
// This is the webhook endpoint the external asset system calls, possibly
// more than once per tag: duplicate deliveries with the same external_id
// return 200 exactly like the first.
func (s *Server) ConfirmTag(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, r, http.StatusUnprocessableEntity, requestBody("invalid request body"))
		return
	}

	rec, err := s.ledger.Confirm(r.Context(), req.FullTag, req.ExternalID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			s.writeJSON(w, r, http.StatusUnprocessableEntity, validationBody(err))
		case errors.Is(err, domain.ErrUnknownTag):
			s.log.WarnContext(r.Context(), "confirmation for unknown tag",
				"full_tag", req.FullTag, "external_id", req.ExternalID)
			s.writeJSON(w, r, http.StatusNotFound, unknownTagBody("tag was never issued by this ledger"))
		case errors.Is(err, domain.ErrConfirmationConflict):
			s.log.WarnContext(r.Context(), "confirmation conflict",
				"full_tag", req.FullTag, "external_id", req.ExternalID)
			s.writeJSON(w, r, http.StatusConflict, conflictBody(err))
		default:
			s.internalError(w, r, err)
		}
		return
	}

	s.writeJSON(w, r, http.StatusOK, rec)
}

// paddingParam parses the optional ?padding= query parameter, falling back
// to the deployment default. Returns ok=false after writing a 422 when the
// value is not an integer.
func (s *Server) paddingParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("padding")
	if raw == "" {
		return s.defaults.Padding, true
	}
	padding, err := strconv.Atoi(raw)
	if err != nil {
		s.writeJSON(w, r, http.StatusUnprocessableEntity, requestBody("padding must be an integer"))
		return 0, false
	}
	return padding, true
}

// internalError logs the error and returns an opaque 500 body.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.ErrorContext(r.Context(), "internal error", "error", err)
	s.writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{Code: "internal_error", Message: "internal error"},
	})
}
