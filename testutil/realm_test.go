package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestRealm_PasswordGrantAndAdminLookup(t *testing.T) {
	realm := NewRealm("acme")
	T(t).Setup(realm)
	realm.AddUser("alice", "pw", "admin")

	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {realm.ClientID},
		"client_secret": {realm.ClientSecret},
		"username":      {"alice"},
		"password":      {"pw"},
	}
	resp, err := http.Post(realm.Issuer()+"/protocol/openid-connect/token",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, realm.URL()+"/admin/realms/acme/users?username=alice&exact=true", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}

	if got := realm.Hits("token:password"); got != 1 {
		t.Errorf("expected 1 password grant, got %d", got)
	}
	if got := realm.AdminGets(); got != 1 {
		t.Errorf("expected 1 admin GET, got %d", got)
	}
}

func TestRealm_AdminRequiresIssuedBearer(t *testing.T) {
	realm := NewRealm("acme")
	T(t).Setup(realm)

	req, _ := http.NewRequest(http.MethodGet, realm.URL()+"/admin/realms/acme/roles", nil)
	req.Header.Set("Authorization", "Bearer forged")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRealm_FailWithAndReset(t *testing.T) {
	realm := NewRealm("acme")
	T(t).Setup(realm)
	realm.FailWith(EndpointDiscovery, http.StatusServiceUnavailable)

	resp, err := http.Get(realm.Issuer() + "/.well-known/openid-configuration")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}

	T(t).Reset(realm)
	if got := realm.Hits(EndpointDiscovery); got != 0 {
		t.Errorf("expected hits cleared, got %d", got)
	}
	resp, err = http.Get(realm.Issuer() + "/.well-known/openid-configuration")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after reset, got %d", resp.StatusCode)
	}
	if h := realm.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("expected healthy, got %s", h.Status)
	}
}
