package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/aformulationoftruth/server/internal/common"
	"github.com/aformulationoftruth/server/internal/server/services"
)

const (
	emailLimitCount  = 5
	emailLimitWindow = 15 * time.Minute
)

type requestLinkRequest struct {
	Email    string `json:"email"`
	Locale   string `json:"locale,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// handleRequestLink always answers with the same accepted ack once the
// input parses, whether or not delivery succeeded. The response carries no
// signal about the address.
func (s *Server) handleRequestLink(w http.ResponseWriter, r *http.Request) {
	var req requestLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	normalized, err := services.NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	// the email key is only known after parsing, hence not in middleware
	if !s.limiter.Allow(r.Context(), keyEmail(normalized), emailLimitCount, emailLimitWindow) {
		writeError(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	if err := s.auth.RequestLink(r.Context(), normalized, req.Locale, req.Timezone); err != nil {
		if errors.Is(err, common.ErrValidation) {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		s.logger.Error(r.Context(), "link issuance failed", "error", err.Error())
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleRedeem is the browser-facing endpoint the mailed link points at,
// so outcomes are redirects rather than JSON. Every failure collapses into
// one generic error indicator.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")

	user, err := s.auth.Redeem(r.Context(), raw)
	if err != nil {
		http.Redirect(w, r, s.cfg.LoginPath+"?error=link", http.StatusFound)
		return
	}

	token, expiresAt, err := s.auth.EstablishSession(user)
	if err != nil {
		http.Redirect(w, r, s.cfg.LoginPath+"?error=link", http.StatusFound)
		return
	}

	s.setSessionCookie(w, token, expiresAt)
	http.Redirect(w, r, s.cfg.PostAuthPath, http.StatusFound)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user_id":       id.UserID,
		"email":         id.Email,
		"display_name":  id.DisplayName,
		"role":          id.Role,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
