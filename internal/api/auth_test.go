package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// A token in the query string must not authenticate REST calls; URLs end up
// in access logs. Only the websocket handshake resolver accepts it.
func TestCreateConsultation_QueryTokenRejected(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodPost, "/consultations?token="+patientToken(t, uuid.NewString()), validBody(t))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(env.publisher.published) != 0 {
		t.Error("nothing should reach the queue on a query-string token")
	}
}

func TestIdentity_HeaderOnly(t *testing.T) {
	identity := Identity(testSecret)

	req := httptest.NewRequest(http.MethodGet, "/consultations?token="+patientToken(t, "patient-1"), nil)
	if _, ok := identity(req); ok {
		t.Fatal("Identity must ignore the token query parameter")
	}

	req = httptest.NewRequest(http.MethodGet, "/consultations", nil)
	req.Header.Set("Authorization", "Bearer "+patientToken(t, "patient-1"))
	id, ok := identity(req)
	if !ok || id != "patient-1" {
		t.Fatalf("expected patient-1 from header token, got %q ok=%v", id, ok)
	}
}

func TestHandshakeIdentity_AcceptsQueryToken(t *testing.T) {
	identity := HandshakeIdentity(testSecret)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+patientToken(t, "patient-1"), nil)
	id, ok := identity(req)
	if !ok || id != "patient-1" {
		t.Fatalf("expected patient-1 from query token, got %q ok=%v", id, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?token=not-a-token", nil)
	if _, ok := identity(req); ok {
		t.Fatal("expected garbage token to be refused")
	}
}
