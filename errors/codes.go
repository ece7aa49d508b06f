package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Connection/Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates the service is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the client is rate limited.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Authentication errors
const (
	// ErrCodeUnauthorized indicates the request is unauthorized.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeForbidden indicates the caller is known but lacks a permission.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrCodeInvalidCredentials indicates the provider rejected the presented credentials or code.
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	// ErrCodeVerificationFailed indicates a token failed signature or claims verification.
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"
	// ErrCodeRefreshFailed indicates the refresh grant was refused or could not be completed.
	ErrCodeRefreshFailed ErrorCode = "REFRESH_FAILED"
	// ErrCodeAuthenticationFailed is the collapsed outcome of any failed login attempt.
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
)

// Directory errors
const (
	// ErrCodeUnknownIdentity indicates the directory has no user with the given name.
	ErrCodeUnknownIdentity ErrorCode = "UNKNOWN_IDENTITY"
	// ErrCodeDirectoryUnavailable indicates the directory answered with a non-success status.
	ErrCodeDirectoryUnavailable ErrorCode = "DIRECTORY_UNAVAILABLE"
	// ErrCodeTransport indicates the request never produced an HTTP response.
	ErrCodeTransport ErrorCode = "TRANSPORT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable:   true,
	ErrCodeTimeout:              true,
	ErrCodeRateLimited:          true,
	ErrCodeDirectoryUnavailable: true,
	ErrCodeTransport:            true,
	ErrCodeInternal:             false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
