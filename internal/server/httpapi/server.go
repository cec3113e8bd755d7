// Package httpapi is the public HTTP surface: magic-link issuance and
// redemption, session introspection, and the questionnaire flow. Handlers
// translate between wire shapes and the services; no business rules live
// here.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aformulationoftruth/server/internal/common"
	"github.com/aformulationoftruth/server/internal/logging"
	"github.com/aformulationoftruth/server/internal/server/config"
	"github.com/aformulationoftruth/server/internal/server/models"
	"github.com/aformulationoftruth/server/internal/server/services"
)

// AuthService is the slice of the auth service the handlers need.
type AuthService interface {
	RequestLink(ctx context.Context, email, locale, timezone string) error
	Redeem(ctx context.Context, rawToken string) (*models.User, error)
	EstablishSession(user *models.User) (string, time.Time, error)
	Introspect(ctx context.Context, sessionToken string) (*services.Identity, error)
}

// QuestionnaireService is the slice of the questionnaire service the
// handlers need.
type QuestionnaireService interface {
	StartSession(ctx context.Context, sessionID string, userID *string, encryptAnswers bool) (*models.QuestionnaireSession, error)
	Get(ctx context.Context, sessionID string) (*models.QuestionnaireSession, error)
	Current(ctx context.Context, sessionID string) (*services.CurrentQuestion, error)
	Answer(ctx context.Context, sessionID string, questionID int, text string) error
	Decline(ctx context.Context, sessionID string, questionID int) error
	ReviewDeclined(ctx context.Context, sessionID string) ([]services.DeclinedItem, error)
	Complete(ctx context.Context, sessionID string, acceptDeclined bool) (*services.CompletionResult, error)
	LinkUser(ctx context.Context, sessionID, userID string) error
	SetOptIns(ctx context.Context, sessionID string, reminder, share bool) error
	ListRecent(ctx context.Context, limit int) ([]*models.QuestionnaireSession, error)
}

type Server struct {
	cfg           *config.Config
	auth          AuthService
	questionnaire QuestionnaireService
	limiter       Limiter
	logger        logging.Logger
}

func NewServer(cfg *config.Config, auth AuthService, questionnaire QuestionnaireService, limiter Limiter, logger logging.Logger) *Server {
	return &Server{
		cfg:           cfg,
		auth:          auth,
		questionnaire: questionnaire,
		limiter:       limiter,
		logger:        logger.With("module", "httpapi"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.With(s.limitIP(10, time.Minute)).Post("/api/auth/request-link", s.handleRequestLink)
	r.Get("/auth/redeem", s.handleRedeem)
	r.With(s.withIdentity).Get("/api/auth/me", s.handleMe)
	r.Post("/api/auth/logout", s.handleLogout)

	r.Route("/api/questionnaire", func(r chi.Router) {
		r.Use(s.withIdentity)
		r.Post("/session", s.handleStartSession)
		r.Get("/current", s.handleCurrent)
		r.Post("/answer", s.handleAnswer)
		r.Post("/decline", s.handleDecline)
		r.Get("/review", s.handleReview)
		r.Post("/complete", s.handleComplete)
		r.With(s.requireAuth).Post("/link", s.handleLink)
	})

	r.With(s.withIdentity, s.requireAuth, s.requireAdmin).Get("/api/admin/sessions", s.handleAdminSessions)

	return r
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeServiceError maps service sentinels to generic machine-readable
// codes. Anything unrecognized is a 500 with no internals exposed.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, common.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "invalid_token")
	case errors.Is(err, common.ErrSessionExpired), errors.Is(err, common.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, common.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "already_completed")
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}
