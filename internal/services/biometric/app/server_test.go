package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/biomgate/internal/services/biometric/orchestrator"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("BIOMGATE_AUDIT_DB_PATH", filepath.Join(dir, "audit.db"))
	t.Setenv("BIOMGATE_CREDENTIAL_DB_PATH", filepath.Join(dir, "credentials.db"))
	t.Setenv("BIOMGATE_CREDENTIAL_SIGNING_KEY", "test-signing-key")
	// Long sensor latency keeps sessions parked in the pending slot so
	// handler tests observe a stable snapshot.
	t.Setenv("BIOMGATE_SIM_LATENCY", "1h")

	server, err := NewWithAddr("127.0.0.1:0")
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)
	handler := server.routes()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthenticateCreatesPendingSession(t *testing.T) {
	server := newTestServer(t)
	handler := server.routes()

	rec := doJSON(t, handler, http.MethodPost, "/v1/authenticate",
		`{"user_id": 10, "package": "test_package"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}

	var snap orchestrator.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Pending == nil {
		t.Fatal("expected a pending session")
	}
	if snap.Pending.Package != "test_package" {
		t.Fatalf("pending package = %s", snap.Pending.Package)
	}

	// The audit trail has the creation event.
	rec = doJSON(t, handler, http.MethodGet, "/v1/audit/"+snap.Pending.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d: %s", rec.Code, rec.Body)
	}
	var audit struct {
		Events []struct {
			Kind string `json:"Kind"`
		} `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &audit); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(audit.Events) == 0 || audit.Events[0].Kind != "session_created" {
		t.Fatalf("audit events = %+v", audit.Events)
	}
}

func TestAuthenticateRejectsBadRequest(t *testing.T) {
	server := newTestServer(t)
	handler := server.routes()

	rec := doJSON(t, handler, http.MethodPost, "/v1/authenticate", `{"user_id": 10}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	server := newTestServer(t)
	handler := server.routes()

	rec := doJSON(t, handler, http.MethodPut, "/v1/credentials/10", `{"secret": "1234"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("enroll status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/credentials/10/verify", `{"secret": "wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/credentials/10/verify", `{"secret": "1234"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body)
	}
	var verified struct {
		Verified        bool `json:"verified"`
		SessionConsumed bool `json:"session_consumed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verified); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if !verified.Verified {
		t.Fatal("expected verified true")
	}
	// No session was on the credential path to consume the token.
	if verified.SessionConsumed {
		t.Fatal("expected session_consumed false")
	}

	rec = doJSON(t, handler, http.MethodDelete, "/v1/credentials/10", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/v1/credentials/10/verify", `{"secret": "1234"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("verify after remove status = %d, want 404", rec.Code)
	}
}

func TestUserSettingsEndpoint(t *testing.T) {
	server := newTestServer(t)
	handler := server.routes()

	rec := doJSON(t, handler, http.MethodPut, "/v1/users/10/settings",
		`{"face_enabled_for_apps": false, "face_always_require_confirmation": true}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	if server.settings.FaceEnabledForApps(10) {
		t.Fatal("face must be disabled for user 10")
	}
	if !server.settings.FaceAlwaysRequireConfirmation(10) {
		t.Fatal("face confirmation must be required for user 10")
	}
	// Other users keep the defaults.
	if !server.settings.FaceEnabledForApps(11) {
		t.Fatal("face must stay enabled for other users")
	}
}

func TestSessionsEndpoint(t *testing.T) {
	server := newTestServer(t)
	handler := server.routes()

	rec := doJSON(t, handler, http.MethodGet, "/v1/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap orchestrator.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Current != nil || snap.Pending != nil {
		t.Fatal("expected no sessions on a fresh server")
	}
}
