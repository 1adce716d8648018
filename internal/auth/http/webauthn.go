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

// WebAuthnLoginHandler serves the passwordless assertion ceremony.
type WebAuthnLoginHandler struct {
	LoginService *service.LoginService
	Cookie       CookieConfig
	DefaultView  string
}

type webauthnBeginRequest struct {
	Email string `json:"email"`
}

type webauthnBeginResponse struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	FlowToken string                        `json:"flow_token"`
}

type webauthnFinishRequest struct {
	FlowToken  string          `json:"flow_token"`
	Credential json.RawMessage `json:"credential"`
	Stay       bool            `json:"stay"`
	Redirect   string          `json:"redirect"`
}

// HandleBegin serves POST /v1/auth/webauthn/login/begin.
func (h *WebAuthnLoginHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	var req webauthnBeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	httpx.NoCache(w)

	start, err := h.LoginService.BeginWebAuthnLogin(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, webauthnBeginResponse{
		Options:   start.Options,
		FlowToken: start.FlowToken,
	})
}

// HandleFinish serves POST /v1/auth/webauthn/login/finish.
func (h *WebAuthnLoginHandler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	var req webauthnFinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.FlowToken == "" || len(req.Credential) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "flow_token and credential are required")
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed credential assertion")
		return
	}

	httpx.NoCache(w)

	session, err := h.LoginService.FinishWebAuthnLogin(r.Context(), req.FlowToken, parsed, req.Stay)
	if err != nil {
		h.writeError(w, err)
		return
	}

	setSessionCookie(w, h.Cookie, session)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Redirect: resolveRedirect(req.Redirect, h.DefaultView),
	})
}

func (h *WebAuthnLoginHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		httpx.WriteJSON(w, http.StatusOK, loginResponse{Redirect: "/login"})
	case errors.Is(err, service.ErrInvalidFido2Request):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_fido2_request", "no usable credential for this request")
	case errors.Is(err, service.ErrFido2VerificationFailed):
		httpx.WriteError(w, http.StatusUnauthorized, "fido2_verification_failed", "assertion could not be verified")
	case errors.Is(err, service.ErrInvalidGrant):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_grant", "login flow expired, start over")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "login failed")
	}
}
