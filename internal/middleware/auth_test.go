package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/pacebuddies/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddlewareHandler_AuthCheck(t *testing.T) {
	loginChecker := auth.NewLoginTestChecker()
	loginChecker.Sessions["valid-token"] = "user-1"

	authMiddleware := NewAuthMiddlewareHandler(loginChecker)

	var gotUserID string
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = auth.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := authMiddleware.AuthCheck()(nextHandler)

	for name, tc := range map[string]struct {
		method         string
		path           string
		token          string
		expectedStatus int
		expectedUserID string
	}{
		"no token, protected route": {
			method:         http.MethodPost,
			path:           "/events",
			expectedStatus: http.StatusUnauthorized,
		},
		"invalid token, protected route": {
			method:         http.MethodPost,
			path:           "/events",
			token:          "bogus",
			expectedStatus: http.StatusUnauthorized,
		},
		"valid token, protected route": {
			method:         http.MethodPost,
			path:           "/events",
			token:          "valid-token",
			expectedStatus: http.StatusOK,
			expectedUserID: "user-1",
		},
		"no token, open events listing": {
			method:         http.MethodGet,
			path:           "/events/open",
			expectedStatus: http.StatusOK,
		},
		"no token, single event": {
			method:         http.MethodGet,
			path:           "/events/ev1",
			expectedStatus: http.StatusOK,
		},
		"no token, event users": {
			method:         http.MethodGet,
			path:           "/events/ev1/users",
			expectedStatus: http.StatusOK,
		},
		"no token, ready users is protected": {
			method:         http.MethodGet,
			path:           "/events/ev1/users/ready",
			expectedStatus: http.StatusUnauthorized,
		},
		"no token, join is protected": {
			method:         http.MethodPost,
			path:           "/events/ev1/join",
			expectedStatus: http.StatusUnauthorized,
		},
		"options always allowed": {
			method:         http.MethodOptions,
			path:           "/events",
			expectedStatus: http.StatusOK,
		},
	} {
		t.Run(name, func(t *testing.T) {
			gotUserID = ""
			req, err := http.NewRequest(tc.method, tc.path, nil)
			require.NoError(t, err)
			if tc.token != "" {
				req.Header.Set(AuthTokenHeader, tc.token)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Equal(t, tc.expectedUserID, gotUserID)
		})
	}
}
