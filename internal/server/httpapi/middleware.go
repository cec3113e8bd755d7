package httpapi

import (
	"context"
	"net/http"

	"github.com/aformulationoftruth/server/internal/server/models"
	"github.com/aformulationoftruth/server/internal/server/services"
)

type identityKey struct{}

func withIdentityContext(ctx context.Context, id *services.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// identityFromContext returns the authenticated identity or nil for an
// anonymous request.
func identityFromContext(ctx context.Context) *services.Identity {
	id, _ := ctx.Value(identityKey{}).(*services.Identity)
	return id
}

// withIdentity resolves the session cookie into an identity when present
// and valid, and continues anonymously otherwise. Questionnaire sessions
// can be driven pre-authentication, so this middleware never rejects.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(s.cfg.CookieName)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := s.auth.Introspect(r.Context(), c.Value)
		if err != nil {
			// expired or tampered cookie; drop it and proceed anonymously
			s.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentityContext(r.Context(), id)))
	})
}

// requireAuth rejects anonymous requests. Must run after withIdentity.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates on the role freshly resolved by Introspect, never on
// anything a client supplied.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identityFromContext(r.Context())
		if id == nil || id.Role != models.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
