package middleware

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/2beens/pacebuddies/internal/auth"
	"github.com/2beens/pacebuddies/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// auth token comes via a custom request header
const AuthTokenHeader = "X-PACE-TOKEN"

type AuthMiddlewareHandler struct {
	loginChecker auth.Checker
	publicRoutes []publicRoute
}

type publicRoute struct {
	method string
	path   *regexp.Regexp
}

func NewAuthMiddlewareHandler(loginChecker auth.Checker) *AuthMiddlewareHandler {
	return &AuthMiddlewareHandler{
		loginChecker: loginChecker,
		publicRoutes: []publicRoute{
			{http.MethodGet, regexp.MustCompile(`^/version$`)},
			{http.MethodGet, regexp.MustCompile(`^/events/open$`)},
			{http.MethodGet, regexp.MustCompile(`^/events/[^/]+$`)},
			{http.MethodGet, regexp.MustCompile(`^/events/[^/]+/users$`)},
		},
	}
}

func (h *AuthMiddlewareHandler) pathIsAlwaysAllowed(method, path string) bool {
	for _, route := range h.publicRoutes {
		if route.method == method && route.path.MatchString(path) {
			return true
		}
	}
	return false
}

func (h *AuthMiddlewareHandler) AuthCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.auth")
			defer span.End()

			if r.Method == http.MethodOptions {
				w.Header().Add("Allow", "GET, POST, DELETE, OPTIONS")
				w.WriteHeader(http.StatusOK)
				span.SetStatus(codes.Ok, "options-ok")
				return
			}

			if h.pathIsAlwaysAllowed(r.Method, r.URL.Path) {
				span.SetStatus(codes.Ok, "ok")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authToken := r.Header.Get(AuthTokenHeader)
			if authToken == "" {
				log.Tracef("[missing token] [auth middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "missing-auth-token")
				return
			}

			userID, err := h.loginChecker.UserID(ctx, authToken)
			if err != nil {
				if !errors.Is(err, auth.ErrNotLoggedIn) {
					log.Errorf("[failed login check] => %s: %s", r.URL.Path, err)
					span.RecordError(err)
				} else {
					log.Tracef("[invalid token] [auth middleware] unauthorized => %s", r.URL.Path)
				}
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "not-logged")
				return
			}

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUserID(ctx, userID)))
		})
	}
}
