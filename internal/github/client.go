package gh

import (
	"context"
	"errors"
	"fmt"
)

// Viewer is the raw profile returned by the primary profile query.
type Viewer struct {
	Login             string
	Name              string
	Email             string
	AvatarURL         string
	Followers         int
	Following         int
	RepositoryCount   int
	ContributionCount int
}

// Client exposes the GitHub operations required by the profile resolver.
type Client interface {
	Viewer(ctx context.Context) (Viewer, error)
	PrimaryEmail(ctx context.Context) (string, error)
}

// Factory builds concrete GitHub clients for a token.
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}

var (
	// ErrTokenExpired indicates the device code expired before authorization.
	ErrTokenExpired = errors.New("github: device code expired")

	// ErrAccessDenied indicates the user declined the authorization request.
	ErrAccessDenied = errors.New("github: access denied")

	// ErrNoPrimaryEmail indicates the account exposes no primary email.
	ErrNoPrimaryEmail = errors.New("github: no primary email")
)

// AuthInitiationError wraps a failure to obtain a device code.
type AuthInitiationError struct {
	Err error
}

func (e *AuthInitiationError) Error() string {
	if e == nil || e.Err == nil {
		return "github: device flow initiation failed"
	}
	return fmt.Sprintf("github: device flow initiation failed: %v", e.Err)
}

func (e *AuthInitiationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnknownAuthError carries an unrecognised error code from the token endpoint,
// or a transport failure while polling.
type UnknownAuthError struct {
	Code        string
	Description string
	Err         error
}

func (e *UnknownAuthError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil:
		return fmt.Sprintf("github: token request failed: %v", e.Err)
	case e.Description != "":
		return fmt.Sprintf("github: authorization failed (%s): %s", e.Code, e.Description)
	default:
		return fmt.Sprintf("github: authorization failed (%s)", e.Code)
	}
}

func (e *UnknownAuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ProfileFetchError wraps a failure of the primary profile query.
type ProfileFetchError struct {
	Err error
}

func (e *ProfileFetchError) Error() string {
	if e == nil || e.Err == nil {
		return "github: fetch profile failed"
	}
	return fmt.Sprintf("github: fetch profile failed: %v", e.Err)
}

func (e *ProfileFetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// retryableError marks an error that may succeed if the operation is retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsRetryable reports whether the supplied error resulted from a retryable GitHub
// API failure (for example, a transient network problem or rate-limited request).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}
