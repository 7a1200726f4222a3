package remote

import "github.com/agora-dev/agora/internal/errors"

// Error is the structured error returned by every Client method.
type Error = errors.Error

// Sentinels for errors.Is. They match any error of the same kind.
var (
	ErrAuthRequired  = errors.ErrAuthRequired
	ErrForbidden     = errors.ErrForbidden
	ErrRemoteFailure = errors.ErrRemoteFailure
)

// IsAuthRequired reports whether err asks the user to sign in.
func IsAuthRequired(err error) bool {
	return errors.IsKind(err, errors.KindAuthRequired)
}

// IsForbidden reports whether err is an authorization denial.
func IsForbidden(err error) bool {
	return errors.IsKind(err, errors.KindForbidden)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	return errors.StatusOf(err)
}
