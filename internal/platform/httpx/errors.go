package httpx

import (
	"context"
	"errors"
	"net/http"
)

// Sentinels the console handlers wrap to choose a response status.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	// ErrConflict marks a request against state that moved on, such as an
	// action on a discarded workspace.
	ErrConflict = errors.New("conflict")
)

type errorStatus struct {
	target error
	status int
	title  string
	detail bool
}

// errorTable is checked in order; the first match wins.
var errorTable = []errorStatus{
	{ErrNotFound, http.StatusNotFound, "Not Found", true},
	{ErrValidation, http.StatusBadRequest, "Validation Failed", true},
	{ErrForbidden, http.StatusForbidden, "Forbidden", true},
	{ErrConflict, http.StatusConflict, "Conflict", true},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "Upstream Timeout", false},
}

// StatusOf reports the HTTP status RespondError uses for err.
func StatusOf(err error) int {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError writes err as an RFC 7807 problem. Only errors wrapping a
// client-facing sentinel expose their message.
func RespondError(w http.ResponseWriter, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			detail := ""
			if e.detail {
				detail = err.Error()
			}
			Problem(w, e.status, e.title, detail)
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
