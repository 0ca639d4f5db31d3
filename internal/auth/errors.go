package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrNotAuthenticated   = errors.New("auth: not authenticated")
	ErrRefreshFailed      = errors.New("auth: token refresh failed")
	ErrProfileFetch       = errors.New("auth: could not load user profile")
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
	ErrPasswordReset      = errors.New("auth: could not request password reset, try again later")
	ErrInvalidEmail       = errors.New("auth: invalid email address")
)

// ValidationError is a rejected password change. Message is safe to show inline;
// the session stays intact.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "auth: password change rejected"
	}
	return "auth: " + e.Message
}
