package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/service"
	"github.com/lodgebook/authcore/pkg/httpx"
)

type contextKey string

const userContextKey contextKey = "authcore.user"

// UserFromContext returns the authenticated user placed by requireSession.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userContextKey).(domain.User)
	return u, ok
}

// requireSession resolves the session cookie to a user and rejects the
// request when there is none.
func (r *Router) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		cookie, err := req.Cookie(r.Cookie.Name)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		user, err := r.SessionService.Verify(req.Context(), cookie.Value)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		ctx := context.WithValue(req.Context(), userContextKey, user)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// setSessionCookie writes the session token cookie. A session without TTL
// gets no MaxAge and dies with the browser session.
func setSessionCookie(w http.ResponseWriter, cfg CookieConfig, session domain.IssuedSession) {
	cookie := &http.Cookie{
		Name:     cfg.Name,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if session.TTL != nil {
		cookie.MaxAge = int(session.TTL.Seconds())
		cookie.Expires = time.Now().Add(*session.TTL)
	}
	http.SetCookie(w, cookie)
}

func clearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// resolveRedirect picks the post-login target: an explicit relative path
// from the client, else the configured default view, else the root.
// Absolute URLs are rejected to keep the redirect on-site.
func resolveRedirect(requested, defaultView string) string {
	requested = strings.TrimSpace(requested)
	if requested != "" && strings.HasPrefix(requested, "/") && !strings.HasPrefix(requested, "//") {
		return requested
	}
	if defaultView != "" {
		return defaultView
	}
	return "/"
}

// SessionInfoHandler serves GET /v1/auth/session. Clients use it to decide
// whether to skip the login view for an already authenticated browser.
type SessionInfoHandler struct{}

func (h *SessionInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// LogoutHandler serves POST /v1/auth/logout.
type LogoutHandler struct {
	SessionService *service.SessionService
	Cookie         CookieConfig
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.Cookie.Name); err == nil {
		if err := h.SessionService.Destroy(r.Context(), cookie.Value); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "logout failed")
			return
		}
	}

	clearSessionCookie(w, h.Cookie)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
