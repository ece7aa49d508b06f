package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeNotFound, "not found", http.StatusNotFound)
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Message != "not found" {
		t.Errorf("expected message 'not found', got %q", err.Message)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTransport, "no route", http.StatusBadGateway)
	if !err.Retryable {
		t.Error("TRANSPORT should be retryable")
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("group", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
	if err.Details["resource"] != "group" {
		t.Errorf("expected resource=group, got %v", err.Details["resource"])
	}
}

func TestAppError_WithDetail_NilMap(t *testing.T) {
	err := &AppError{Code: ErrCodeInternal}
	err.WithDetail("k", "v")
	if err.Details["k"] != "v" {
		t.Errorf("expected k=v, got %v", err.Details["k"])
	}
}

func TestAppError_Error_Format(t *testing.T) {
	err := InvalidCredentials(fmt.Errorf("invalid_grant"))
	msg := err.Error()
	if !strings.HasPrefix(msg, "INVALID_CREDENTIALS: ") {
		t.Errorf("unexpected prefix: %q", msg)
	}
	if !strings.Contains(msg, "cause: invalid_grant") {
		t.Errorf("expected cause in message, got %q", msg)
	}
}

func TestAuthConstructors_Table(t *testing.T) {
	cause := fmt.Errorf("boom")
	tests := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		status    int
		retryable bool
	}{
		{"InvalidCredentials", InvalidCredentials(cause), ErrCodeInvalidCredentials, http.StatusUnauthorized, false},
		{"VerificationFailed", VerificationFailed(cause), ErrCodeVerificationFailed, http.StatusUnauthorized, false},
		{"RefreshFailed", RefreshFailed(cause), ErrCodeRefreshFailed, http.StatusUnauthorized, false},
		{"AuthenticationFailed", AuthenticationFailed(cause), ErrCodeAuthenticationFailed, http.StatusUnauthorized, false},
		{"UnknownIdentity", UnknownIdentity("alice"), ErrCodeUnknownIdentity, http.StatusNotFound, false},
		{"DirectoryUnavailable", DirectoryUnavailable(503, "Service Unavailable"), ErrCodeDirectoryUnavailable, http.StatusBadGateway, true},
		{"Transport", Transport(cause), ErrCodeTransport, http.StatusBadGateway, true},
		{"RateLimited", RateLimited(), ErrCodeRateLimited, http.StatusTooManyRequests, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.HTTPStatus != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, tt.err.HTTPStatus)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, tt.err.Retryable)
			}
		})
	}
}

func TestDirectoryUnavailable_KeepsReasonOutOfMessage(t *testing.T) {
	err := DirectoryUnavailable(500, "database exploded")
	if strings.Contains(err.Message, "database exploded") {
		t.Errorf("provider text leaked into message: %q", err.Message)
	}
	if err.Details["reason"] != "database exploded" {
		t.Errorf("expected reason in details, got %v", err.Details["reason"])
	}
	if err.Details["status"] != 500 {
		t.Errorf("expected status 500 in details, got %v", err.Details["status"])
	}
}

func TestHasCode_WalksCauseChain(t *testing.T) {
	inner := UnknownIdentity("ghost")
	outer := AuthenticationFailed(fmt.Errorf("lookup: %w", inner))

	if !IsAuthenticationFailed(outer) {
		t.Error("expected outer to be AUTHENTICATION_FAILED")
	}
	if !IsUnknownIdentity(outer) {
		t.Error("expected UNKNOWN_IDENTITY to be found through the cause chain")
	}
	if IsTransport(outer) {
		t.Error("did not expect TRANSPORT")
	}
	if HasCode(nil, ErrCodeInternal) {
		t.Error("nil error should carry no code")
	}
	if HasCode(stderrors.New("plain"), ErrCodeInternal) {
		t.Error("plain error should carry no code")
	}
}

func TestAppError_Unwrap_Success(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Transport(cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestErrorCode_IsRetryableCode_Table(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrCodeServiceUnavailable, true},
		{ErrCodeTimeout, true},
		{ErrCodeTransport, true},
		{ErrCodeDirectoryUnavailable, true},
		{ErrCodeUnknownIdentity, false},
		{ErrCodeAuthenticationFailed, false},
		{ErrCodeInternal, false},
	}
	for _, tt := range tests {
		if got := IsRetryableCode(tt.code); got != tt.retryable {
			t.Errorf("IsRetryableCode(%s) = %v, want %v", tt.code, got, tt.retryable)
		}
	}
}

func TestAppError_ToResponse_OmitsDetails(t *testing.T) {
	err := DirectoryUnavailable(502, "upstream says no")
	resp := err.ToResponse()
	if resp.Error.Code != ErrCodeDirectoryUnavailable {
		t.Errorf("expected DIRECTORY_UNAVAILABLE, got %s", resp.Error.Code)
	}
	if !resp.Error.Retryable {
		t.Error("expected retryable in response")
	}
}

func TestResolve(t *testing.T) {
	if Resolve(nil) != nil {
		t.Error("expected nil for nil error")
	}

	plain := Resolve(stderrors.New("x"))
	if plain.Code != ErrCodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", plain.Code)
	}

	wrapped := Resolve(fmt.Errorf("ctx: %w", UnknownIdentity("bob")))
	if wrapped.Code != ErrCodeUnknownIdentity {
		t.Errorf("expected UNKNOWN_IDENTITY, got %s", wrapped.Code)
	}

	bare := Resolve(&AppError{Code: ErrCodeInvalidInput})
	if bare.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("expected default status 500, got %d", bare.HTTPStatus)
	}
}
