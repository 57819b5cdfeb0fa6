package services

import (
	"github.com/rotisserie/eris"
)

var (
	ErrAuthentication   = eris.New("authentication failed")
	ErrPermissionDenied = eris.New("permission denied")
	ErrNotFound         = eris.New("not found")
	ErrBadRequest       = eris.New("bad request")
	ErrPersistence      = eris.New("persistence failure")

	ErrPartyNotFound  = eris.Wrap(ErrNotFound, "party not found")
	ErrMemberNotFound = eris.Wrap(ErrNotFound, "party member not found")
	ErrMatchNotFound  = eris.Wrap(ErrNotFound, "match not found")
	ErrUserOffline    = eris.Wrap(ErrNotFound, "user has no live connection")
)

// Error codes sent to clients in error envelopes.
const (
	CodeAuthentication   = "authentication_error"
	CodePermissionDenied = "permission_denied"
	CodeNotFound         = "not_found"
	CodeBadRequest       = "bad_request"
	CodeInternal         = "internal"
)

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case eris.Is(err, ErrAuthentication):
		return CodeAuthentication
	case eris.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case eris.Is(err, ErrNotFound):
		return CodeNotFound
	case eris.Is(err, ErrBadRequest):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
