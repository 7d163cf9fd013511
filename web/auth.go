package web

import (
	"net/http"
	"strings"

	"github.com/nasermirzaei89/backtalk/identity"
	identitycontext "github.com/nasermirzaei89/backtalk/identity/context"
)

// authMiddleware resolves a Bearer token into the request principal. Requests
// without an Authorization header pass through anonymously; a header carrying
// an invalid token is rejected here so guarded and open endpoints agree on
// what a presented credential means.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)

			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			h.respondError(w, r, &identity.UnauthenticatedError{Reason: "authorization header is not a bearer token"})

			return
		}

		principal, err := h.tokens.Verify(tokenString)
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		r = r.WithContext(identitycontext.WithPrincipal(r.Context(), principal))

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) AuthenticatedOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := principalFromRequest(r)
		if err != nil {
			h.respondError(w, r, err)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func principalFromRequest(r *http.Request) (identity.Principal, error) {
	principal, ok := identitycontext.GetPrincipal(r.Context())
	if !ok {
		return identity.Principal{}, &identity.UnauthenticatedError{Reason: "request is not authenticated"}
	}

	return principal, nil
}
