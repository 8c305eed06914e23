package publisher

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/transfer"
)

// AuthError means the credential is invalid or expired. The account must be
// reconnected; retrying cannot help.
type AuthError struct {
	Platform platform.Kind
	Code     string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed (code %s): %s", e.Platform.DisplayName(), e.Code, e.Message)
}

// TransientNetworkError covers timeouts, connection failures, throttling and
// 5xx responses.
type TransientNetworkError struct {
	Platform platform.Kind
	Code     string
	Err      error
}

func (e *TransientNetworkError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s temporarily unavailable (code %s): %v", e.Platform.DisplayName(), e.Code, e.Err)
	}
	return fmt.Sprintf("%s temporarily unavailable: %v", e.Platform.DisplayName(), e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// PlatformRejectedError is a remote-side refusal of the content itself.
type PlatformRejectedError struct {
	Platform platform.Kind
	Code     string
	Subcode  string
	Message  string
}

func (e *PlatformRejectedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s rejected the post: %s", e.Platform.DisplayName(), e.Message)
	}
	return fmt.Sprintf("%s rejected the post (code %s/%s): %s", e.Platform.DisplayName(), e.Code, e.Subcode, e.Message)
}

// UnsupportedPlatformError means no adapter is registered for the kind.
type UnsupportedPlatformError struct {
	Platform platform.Kind
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("no publisher registered for platform %q", string(e.Platform))
}

// ErrorCode extracts the remote error code of a publisher error, if any.
func ErrorCode(err error) string {
	var auth *AuthError
	var rejected *PlatformRejectedError
	var transient *TransientNetworkError
	switch {
	case errors.As(err, &auth):
		return auth.Code
	case errors.As(err, &rejected):
		if rejected.Subcode != "" {
			return rejected.Code + "/" + rejected.Subcode
		}
		return rejected.Code
	case errors.As(err, &transient):
		return transient.Code
	}
	return ""
}

// Graph API codes, see developers.facebook.com/docs/graph-api/guides/error-handling.
var (
	graphAuthCodes      = map[int]bool{102: true, 190: true, 10: true}
	graphTransientCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 32: true, 341: true, 613: true}
)

func classifyGraph(kind platform.Kind, status int, e transfer.GraphError) error {
	code := fmt.Sprint(e.Code)
	subcode := ""
	if e.ErrorSubcode != 0 {
		subcode = fmt.Sprint(e.ErrorSubcode)
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		graphAuthCodes[e.Code], e.Code >= 200 && e.Code <= 299:
		return &AuthError{Platform: kind, Code: code, Message: e.Message}
	case status >= 500, status == http.StatusTooManyRequests, e.IsTransient, graphTransientCodes[e.Code]:
		return &TransientNetworkError{Platform: kind, Code: code, Err: errors.New(e.Message)}
	default:
		return &PlatformRejectedError{Platform: kind, Code: code, Subcode: subcode, Message: e.Message}
	}
}

var (
	tiktokAuthCodes      = map[string]bool{"access_token_invalid": true, "scope_not_authorized": true, "token_not_authorized_for_specified_deployment": true}
	tiktokTransientCodes = map[string]bool{"rate_limit_exceeded": true, "internal_error": true}
)

func classifyTiktok(status int, code, message string) error {
	switch {
	case status == http.StatusUnauthorized, tiktokAuthCodes[code]:
		return &AuthError{Platform: platform.Tiktok, Code: code, Message: message}
	case status >= 500, status == http.StatusTooManyRequests, tiktokTransientCodes[code]:
		return &TransientNetworkError{Platform: platform.Tiktok, Code: code, Err: errors.New(message)}
	default:
		return &PlatformRejectedError{Platform: platform.Tiktok, Code: code, Message: message}
	}
}
