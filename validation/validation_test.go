package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/realmauth/errors"
)

type cacheSection struct {
	TTLSeconds int `mapstructure:"ttl_seconds" validate:"gte=0"`
	Size       int `mapstructure:"size" validate:"min=1"`
}

type sampleConfig struct {
	AuthServerURL string       `mapstructure:"auth_server_url" validate:"required,absurl"`
	Realm         string       `mapstructure:"realm" validate:"required"`
	Policy        string       `mapstructure:"missing_id_token_policy" validate:"omitempty,oneof=synthesize reject"`
	Cache         cacheSection `mapstructure:"cache"`
}

func validSample() sampleConfig {
	return sampleConfig{
		AuthServerURL: "https://sso.example.com",
		Realm:         "acme",
		Policy:        "reject",
		Cache:         cacheSection{TTLSeconds: 300, Size: 1000},
	}
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %s", appErr.Code)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok {
		t.Fatalf("expected field errors in details, got %v", appErr.Details)
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Field
	}
	return names
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validSample()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidate_ReportsConfigKeys(t *testing.T) {
	cfg := validSample()
	cfg.AuthServerURL = "sso.example.com"
	cfg.Policy = "ignore"
	cfg.Cache.Size = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	got := strings.Join(fieldNames(t, err), ",")
	for _, want := range []string{"auth_server_url", "missing_id_token_policy", "cache.size"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q among failing fields, got %s", want, got)
		}
	}
	if !strings.Contains(err.Error(), "must be one of: synthesize reject") {
		t.Errorf("expected oneof message, got %v", err)
	}
}

func TestValidate_AbsoluteURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://sso.example.com/", true},
		{"http://localhost:8080", true},
		{"ftp://sso.example.com", false},
		{"/relative/path", false},
		{"https://", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := validSample()
			cfg.AuthServerURL = tt.url
			err := Validate(cfg)
			if tt.valid && err != nil {
				t.Errorf("expected %q to pass, got %v", tt.url, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected %q to fail", tt.url)
			}
		})
	}
}

func TestValidatorRequired(t *testing.T) {
	v := New()
	v.Required("realm", "acme")
	if v.HasErrors() {
		t.Error("expected no errors for valid input")
	}

	v2 := New()
	v2.Required("realm", "   ")
	if !v2.HasErrors() {
		t.Error("expected error for whitespace-only required field")
	}
}

func TestValidatorMinAndOneOf(t *testing.T) {
	v := New().
		Min("cache.size", 0, 1).
		OneOf("missing_id_token_policy", "ignore", []string{"synthesize", "reject"}).
		OneOf("flow", "", []string{"password"})
	if len(v.Errors()) != 2 {
		t.Errorf("expected 2 errors, got %v", v.Errors())
	}
}

func TestValidatorMerge(t *testing.T) {
	cfg := validSample()
	cfg.Realm = ""

	v := New().
		Merge("", Validate(cfg)).
		Custom(false, "client_secret", "is required for the service account")
	err := v.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	names := fieldNames(t, err)
	if len(names) != 2 || names[0] != "realm" || names[1] != "client_secret" {
		t.Errorf("expected [realm client_secret], got %v", names)
	}
}

func TestValidatorMerge_PlainError(t *testing.T) {
	v := New().Merge("http", errors.Internal(nil)).Merge("unused", nil)
	if len(v.Errors()) != 1 || v.Errors()[0].Field != "http" {
		t.Errorf("expected one error on http, got %v", v.Errors())
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"ClientID":   "client_i_d",
		"Realm":      "realm",
		"TTLSeconds": "t_t_l_seconds",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q): expected %q, got %q", in, want, got)
		}
	}
}
