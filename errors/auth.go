package errors

import (
	stderrors "errors"
	"net/http"
)

// InvalidCredentials reports that the provider refused a password or code grant.
func InvalidCredentials(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInvalidCredentials, Message: "The supplied credentials were rejected.",
		HTTPStatus: http.StatusUnauthorized, Retryable: false, Cause: cause,
	}
}

// VerificationFailed reports a token whose signature or claims did not check out.
func VerificationFailed(cause error) *AppError {
	return &AppError{
		Code: ErrCodeVerificationFailed, Message: "The token could not be verified.",
		HTTPStatus: http.StatusUnauthorized, Retryable: false, Cause: cause,
	}
}

// RefreshFailed reports that a session's tokens could not be renewed.
func RefreshFailed(cause error) *AppError {
	return &AppError{
		Code: ErrCodeRefreshFailed, Message: "Your session could not be renewed. Please log in again.",
		HTTPStatus: http.StatusUnauthorized, Retryable: false, Cause: cause,
	}
}

// AuthenticationFailed is the single error a failed login surfaces to callers.
func AuthenticationFailed(cause error) *AppError {
	return &AppError{
		Code: ErrCodeAuthenticationFailed, Message: "Authentication failed.",
		HTTPStatus: http.StatusUnauthorized, Retryable: false, Cause: cause,
	}
}

// UnknownIdentity reports that the directory holds no user with this name.
func UnknownIdentity(username string) *AppError {
	return &AppError{
		Code: ErrCodeUnknownIdentity, Message: "No such user in the directory.",
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"username": username},
	}
}

// DirectoryUnavailable reports a non-success answer from the directory.
// The status and reason are kept in Details for logging only.
func DirectoryUnavailable(status int, reason string) *AppError {
	return &AppError{
		Code: ErrCodeDirectoryUnavailable, Message: "The user directory is unavailable.",
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"status": status, "reason": reason},
	}
}

// Transport reports a request that failed before any HTTP response arrived.
func Transport(cause error) *AppError {
	return &AppError{
		Code: ErrCodeTransport, Message: "The identity provider could not be reached.",
		HTTPStatus: http.StatusBadGateway, Retryable: true, Cause: cause,
	}
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsUnknownIdentity reports whether err is or wraps an UNKNOWN_IDENTITY error.
func IsUnknownIdentity(err error) bool { return HasCode(err, ErrCodeUnknownIdentity) }

// IsDirectoryUnavailable reports whether err is or wraps a DIRECTORY_UNAVAILABLE error.
func IsDirectoryUnavailable(err error) bool { return HasCode(err, ErrCodeDirectoryUnavailable) }

// IsTransport reports whether err is or wraps a TRANSPORT error.
func IsTransport(err error) bool { return HasCode(err, ErrCodeTransport) }

// IsInvalidCredentials reports whether err is or wraps an INVALID_CREDENTIALS error.
func IsInvalidCredentials(err error) bool { return HasCode(err, ErrCodeInvalidCredentials) }

// IsVerificationFailed reports whether err is or wraps a VERIFICATION_FAILED error.
func IsVerificationFailed(err error) bool { return HasCode(err, ErrCodeVerificationFailed) }

// IsAuthenticationFailed reports whether err is or wraps an AUTHENTICATION_FAILED error.
func IsAuthenticationFailed(err error) bool { return HasCode(err, ErrCodeAuthenticationFailed) }
