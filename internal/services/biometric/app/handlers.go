package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/louisbranch/biomgate/internal/biometric"
	"github.com/louisbranch/biomgate/internal/services/biometric/credential"
	"github.com/louisbranch/biomgate/internal/services/biometric/orchestrator"
	"github.com/louisbranch/biomgate/internal/services/biometric/prompt"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/authenticate", s.handleAuthenticate)
	mux.HandleFunc("GET /v1/sessions", s.handleSessions)
	mux.HandleFunc("GET /v1/audit/{session}", s.handleAudit)
	mux.HandleFunc("PUT /v1/credentials/{user}", s.handleEnrollCredential)
	mux.HandleFunc("DELETE /v1/credentials/{user}", s.handleRemoveCredential)
	mux.HandleFunc("POST /v1/credentials/{user}/verify", s.handleVerifyCredential)
	mux.HandleFunc("POST /v1/dialog/dismissed", s.handleDialogDismissed)
	mux.HandleFunc("POST /v1/dialog/try-again", s.handleTryAgain)
	mux.HandleFunc("POST /v1/dialog/credential", s.handleCredentialPressed)
	mux.HandleFunc("PUT /v1/users/{user}/settings", s.handleUserSettings)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authenticateRequest struct {
	UserID                int32  `json:"user_id"`
	Package               string `json:"package"`
	RequireConfirmation   bool   `json:"require_confirmation"`
	AllowDeviceCredential bool   `json:"allow_device_credential"`
	AuthenticatorsAllowed uint32 `json:"authenticators_allowed"`
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.orch.Authenticate(r.Context(), orchestrator.Request{
		Caller: biometric.Caller{
			UserID:  req.UserID,
			Package: req.Package,
		},
		Receiver: &logReceiver{pkg: req.Package, userID: req.UserID},
		Options: prompt.Options{
			RequireConfirmation:   req.RequireConfirmation,
			AllowDeviceCredential: req.AllowDeviceCredential,
			AuthenticatorsAllowed: biometric.AuthenticatorType(req.AuthenticatorsAllowed),
		},
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, s.orch.Sessions())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Sessions())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	events, err := s.audit.ListAuditEvents(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type credentialRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) handleEnrollCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.verifier.Enroll(r.Context(), userID, []byte(req.Secret)); err != nil {
		if errors.Is(err, credential.ErrEmptySecret) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRemoveCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	if err := s.verifier.Remove(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hat, err := s.verifier.Verify(r.Context(), userID, []byte(req.Secret))
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrMismatch), errors.Is(err, credential.ErrEmptySecret):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, credential.ErrNotEnrolled):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	consumed := true
	if err := s.orch.OnDeviceCredentialVerified(hat); err != nil {
		if !errors.Is(err, orchestrator.ErrNotShowingCredential) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		consumed = false
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true, "session_consumed": consumed})
}

type dismissRequest struct {
	Reason int `json:"reason"`
}

func (s *Server) handleDialogDismissed(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.orch.OnDialogDismissed(biometric.DismissReason(req.Reason))
	writeJSON(w, http.StatusOK, s.orch.Sessions())
}

func (s *Server) handleTryAgain(w http.ResponseWriter, r *http.Request) {
	s.orch.OnTryAgainPressed()
	writeJSON(w, http.StatusOK, s.orch.Sessions())
}

func (s *Server) handleCredentialPressed(w http.ResponseWriter, r *http.Request) {
	s.orch.OnDeviceCredentialPressed()
	writeJSON(w, http.StatusOK, s.orch.Sessions())
}

type userSettingsRequest struct {
	FaceEnabledForApps            *bool `json:"face_enabled_for_apps"`
	FaceAlwaysRequireConfirmation *bool `json:"face_always_require_confirmation"`
}

func (s *Server) handleUserSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	var req userSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FaceEnabledForApps != nil {
		s.settings.SetFaceEnabledForApps(userID, *req.FaceEnabledForApps)
	}
	if req.FaceAlwaysRequireConfirmation != nil {
		s.settings.SetFaceAlwaysRequireConfirmation(userID, *req.FaceAlwaysRequireConfirmation)
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func pathUser(w http.ResponseWriter, r *http.Request) (int32, bool) {
	userID, err := strconv.ParseInt(r.PathValue("user"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return int32(userID), true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	if body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// logReceiver stands in for a caller process. Outcomes land in the daemon log
// instead of an IPC channel.
type logReceiver struct {
	pkg    string
	userID int32
}

func (r *logReceiver) OnAuthenticationSucceeded() {
	log.Printf("receiver %s/%d: authentication succeeded", r.pkg, r.userID)
}

func (r *logReceiver) OnAuthenticationFailed() {
	log.Printf("receiver %s/%d: authentication failed", r.pkg, r.userID)
}

func (r *logReceiver) OnError(modality biometric.Modality, code biometric.ErrorCode, vendorCode int32) {
	log.Printf("receiver %s/%d: error modality=%s code=%d vendor=%d", r.pkg, r.userID, modality, code, vendorCode)
}
