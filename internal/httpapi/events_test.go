package httpapi

import (
	"net/http"
	"testing"
)

func TestSecurityEventsSuperAdminOnly(t *testing.T) {
	env := newServerEnv(t)
	admTok, _ := env.login(t, "adm1")

	if w := env.do(t, http.MethodGet, "/v1/security/events", admTok, nil); w.Code != http.StatusForbidden {
		t.Fatalf("tenant admin must not stream security events, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/v1/security/events", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous stream access must 401, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/v1/security/events", admTok, nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST must 405, got %d", w.Code)
	}
}
