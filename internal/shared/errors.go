package shared

import "errors"

var (
	// ErrSessionMissing is returned when a request carries no session.
	ErrSessionMissing = errors.New("session missing")
	// ErrCSRFTokenMissing is returned when the request or the session has no
	// token.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch is returned when the posted token is not the
	// session's.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")

	errCookieSignature = errors.New("session cookie signature invalid")
)
