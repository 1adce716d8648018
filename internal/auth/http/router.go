package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lodgebook/authcore/internal/auth/service"
	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/pkg/httpx"
	"github.com/lodgebook/authcore/pkg/slogx"
)

// CookieConfig controls the session cookie handed out after login.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	LoginService      *service.LoginService
	SessionService    *service.SessionService
	EnrollmentService *service.EnrollmentService

	Cookie CookieConfig

	// DefaultView is where a finished login lands when the client supplied
	// no usable redirect target.
	DefaultView string
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Cookie:       CookieConfig{Name: "authcore_session"},
		DefaultView:  "/",
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerWebAuthn()
	r.registerEnrollment()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerLogin() {
	loginHandler := &LoginHandler{
		LoginService: r.LoginService,
		Cookie:       r.Cookie,
		DefaultView:  r.DefaultView,
	}

	// Credential-bearing endpoints get the strict per-IP limit on top of
	// the service-level abuse counter.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(loginHandler.HandlePassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/login/two-factor",
		httpx.Chain(http.HandlerFunc(loginHandler.HandleTwoFactor),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	logoutHandler := &LogoutHandler{
		SessionService: r.SessionService,
		Cookie:         r.Cookie,
	}
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(logoutHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /v1/auth/session",
		httpx.Chain(r.requireSession(&SessionInfoHandler{}),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerWebAuthn() {
	h := &WebAuthnLoginHandler{
		LoginService: r.LoginService,
		Cookie:       r.Cookie,
		DefaultView:  r.DefaultView,
	}

	r.Mux.Handle("POST /v1/auth/webauthn/login/begin",
		httpx.Chain(http.HandlerFunc(h.HandleBegin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/webauthn/login/finish",
		httpx.Chain(http.HandlerFunc(h.HandleFinish),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerEnrollment() {
	h := &EnrollmentHandler{EnrollmentService: r.EnrollmentService}
	auth := r.requireSession

	r.Mux.Handle("POST /v1/auth/two-factor/enroll",
		httpx.Chain(auth(http.HandlerFunc(h.HandleEnrollTOTP)),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/two-factor/activate",
		httpx.Chain(auth(http.HandlerFunc(h.HandleActivateTOTP)),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/two-factor/backup-codes",
		httpx.Chain(auth(http.HandlerFunc(h.HandleRegenerateBackupCodes)),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/auth/two-factor",
		httpx.Chain(auth(http.HandlerFunc(h.HandleDisable)),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/webauthn/register/begin",
		httpx.Chain(auth(http.HandlerFunc(h.HandleBeginRegistration)),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/webauthn/register/finish",
		httpx.Chain(auth(http.HandlerFunc(h.HandleFinishRegistration)),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/auth/webauthn/credentials/{id}",
		httpx.Chain(auth(http.HandlerFunc(h.HandleRemoveCredential)),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.store))
}
