package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lodgebook/authcore/internal/auth/service"
	"github.com/lodgebook/authcore/pkg/httpx"
)

// LoginHandler serves the password login and two-factor completion steps.
type LoginHandler struct {
	LoginService *service.LoginService
	Cookie       CookieConfig
	DefaultView  string
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Stay     bool   `json:"stay"`
	Redirect string `json:"redirect"`
}

type twoFactorRequest struct {
	FlowToken string `json:"flow_token"`
	Code      string `json:"code"`
	Redirect  string `json:"redirect"`
}

type loginResponse struct {
	Redirect          string `json:"redirect,omitempty"`
	TwoFactorRequired bool   `json:"two_factor_required,omitempty"`
	FlowToken         string `json:"flow_token,omitempty"`
}

// HandlePassword serves POST /v1/auth/login.
func (h *LoginHandler) HandlePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	httpx.NoCache(w)

	res, err := h.LoginService.PasswordLogin(r.Context(), req.Email, req.Password, req.Stay)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	if res.TwoFactorRequired {
		httpx.WriteJSON(w, http.StatusOK, loginResponse{
			TwoFactorRequired: true,
			FlowToken:         res.FlowToken,
		})
		return
	}

	setSessionCookie(w, h.Cookie, res.Session)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Redirect: resolveRedirect(req.Redirect, h.DefaultView),
	})
}

// HandleTwoFactor serves POST /v1/auth/login/two-factor.
func (h *LoginHandler) HandleTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.FlowToken == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "flow_token and code are required")
		return
	}

	httpx.NoCache(w)

	session, err := h.LoginService.CompleteTwoFactor(r.Context(), req.FlowToken, req.Code)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	setSessionCookie(w, h.Cookie, session)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Redirect: resolveRedirect(req.Redirect, h.DefaultView),
	})
}

// writeLoginError maps service failures onto the wire. A blocked channel
// answers with a bare redirect back to the login view: same shape as a
// success, no error code, nothing for a prober to learn.
func (h *LoginHandler) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		httpx.WriteJSON(w, http.StatusOK, loginResponse{Redirect: "/login"})
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "email or password incorrect")
	case errors.Is(err, service.ErrInvalidTwoFactorCode):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "the code was not accepted")
	case errors.Is(err, service.ErrInvalidGrant):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_grant", "login flow expired, start over")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "login failed")
	}
}
