package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/lodgebook/authcore/internal/auth/service"
	"github.com/lodgebook/authcore/pkg/httpx"
)

// EnrollmentHandler serves second-factor setup for an authenticated user.
type EnrollmentHandler struct {
	EnrollmentService *service.EnrollmentService
}

type activateTOTPRequest struct {
	Code string `json:"code"`
}

type finishRegistrationRequest struct {
	FlowToken  string          `json:"flow_token"`
	Credential json.RawMessage `json:"credential"`
	Label      string          `json:"label"`
}

// HandleEnrollTOTP serves POST /v1/auth/two-factor/enroll.
func (h *EnrollmentHandler) HandleEnrollTOTP(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	enrollment, err := h.EnrollmentService.EnrollTOTP(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"secret":      enrollment.Secret,
		"otpauth_url": enrollment.OTPAuthURL,
	})
}

// HandleActivateTOTP serves POST /v1/auth/two-factor/activate.
func (h *EnrollmentHandler) HandleActivateTOTP(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req activateTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	codes, err := h.EnrollmentService.ActivateTOTP(r.Context(), user.ID, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

// HandleRegenerateBackupCodes serves POST /v1/auth/two-factor/backup-codes.
func (h *EnrollmentHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	codes, err := h.EnrollmentService.RegenerateBackupCodes(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

// HandleDisable serves DELETE /v1/auth/two-factor.
func (h *EnrollmentHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	if err := h.EnrollmentService.DisableTwoFactor(r.Context(), user.ID); err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// HandleBeginRegistration serves POST /v1/auth/webauthn/register/begin.
func (h *EnrollmentHandler) HandleBeginRegistration(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	start, err := h.EnrollmentService.BeginWebAuthnRegistration(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"options":    start.Options,
		"flow_token": start.FlowToken,
	})
}

// HandleFinishRegistration serves POST /v1/auth/webauthn/register/finish.
func (h *EnrollmentHandler) HandleFinishRegistration(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req finishRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.FlowToken == "" || len(req.Credential) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "flow_token and credential are required")
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed credential attestation")
		return
	}

	cred, err := h.EnrollmentService.FinishWebAuthnRegistration(r.Context(), user.ID, req.FlowToken, parsed, req.Label)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"id":    cred.ID,
		"label": cred.Label,
	})
}

// HandleRemoveCredential serves DELETE /v1/auth/webauthn/credentials/{id}.
func (h *EnrollmentHandler) HandleRemoveCredential(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "credential id is required")
		return
	}

	if err := h.EnrollmentService.RemoveWebAuthnCredential(r.Context(), user.ID, id); err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *EnrollmentHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTwoFactorAlreadyEnabled):
		httpx.WriteError(w, http.StatusConflict, "two_factor_already_enabled", "two-factor is already active")
	case errors.Is(err, service.ErrTwoFactorNotEnrolled):
		httpx.WriteError(w, http.StatusBadRequest, "two_factor_not_enrolled", "enroll a secret first")
	case errors.Is(err, service.ErrInvalidTwoFactorCode):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "the code was not accepted")
	case errors.Is(err, service.ErrInvalidGrant):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_grant", "registration flow expired, start over")
	case errors.Is(err, service.ErrFido2VerificationFailed):
		httpx.WriteError(w, http.StatusBadRequest, "fido2_verification_failed", "attestation could not be verified")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "request failed")
	}
}
