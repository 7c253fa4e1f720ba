package handler

import "strings"

// ErrorResponse is the JSON body returned for every non-2xx outcome.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// unknownTagBody returns an ErrorResponse for a confirmation that referenced
// a tag the ledger never issued.
func unknownTagBody(message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "unknown_tag", Message: message}}
}

// conflictBody returns an ErrorResponse for a confirmation conflict — the
// tag is already linked to a different external record.
func conflictBody(err error) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "confirmation_conflict", Message: unwrapMessage(err)}}
}

// collisionBody returns an ErrorResponse for a reset that would reissue an
// already-used number without force.
func collisionBody(err error) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "would_cause_collision", Message: unwrapMessage(err)}}
}

// contentionBody returns an ErrorResponse for an allocation whose bounded
// retry loop was exhausted. The caller may retry after a short backoff.
func contentionBody(err error) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "allocation_contention", Message: unwrapMessage(err)}}
}

// validationBody returns an ErrorResponse for a domain validation failure.
// The message is extracted from the wrapped domain.ErrValidation error.
func validationBody(err error) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "validation_error", Message: unwrapMessage(err)}}
}

// requestBody returns an ErrorResponse for a bad request rejected before
// reaching the service layer (e.g. missing or malformed body).
func requestBody(message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "validation_error", Message: message}}
}

// unwrapMessage extracts the human-readable part from a wrapped sentinel error.
// e.g. "service.LedgerService.Confirm: validation error: prefix is required"
// → "prefix is required".
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, prefix := range []string{
		"service.LedgerService.Allocate: ",
		"service.LedgerService.Confirm: ",
		"service.LedgerService.Reset: ",
		"service.LedgerService.ListStale: ",
	} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	msg = strings.TrimPrefix(msg, "validation error: ")
	return msg
}
