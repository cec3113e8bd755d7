package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aformulationoftruth/server/internal/common"
	"github.com/aformulationoftruth/server/internal/server/models"
	"github.com/aformulationoftruth/server/internal/server/questions"
)

type questionJSON struct {
	ID         int    `json:"id"`
	Text       string `json:"text"`
	Declinable bool   `json:"declinable"`
}

type sessionJSON struct {
	ID        string  `json:"id"`
	Position  int     `json:"position"`
	Total     int     `json:"total"`
	Completed bool    `json:"completed"`
	ShareID   *string `json:"share_id,omitempty"`
}

func toQuestionJSON(q *questions.Question) *questionJSON {
	if q == nil {
		return nil
	}
	return &questionJSON{ID: q.ID, Text: q.Text, Declinable: q.Declinable}
}

func toSessionJSON(s *models.QuestionnaireSession) sessionJSON {
	return sessionJSON{
		ID:        s.ID,
		Position:  s.Position,
		Total:     len(s.QuestionOrder),
		Completed: s.Completed,
		ShareID:   s.ShareID,
	}
}

// sessionForRequest loads the session and enforces ownership: a session
// bound to a user is only reachable by that user; an unbound gate session
// is reachable by whoever holds its id. Writes the error response itself
// and returns nil on failure.
func (s *Server) sessionForRequest(w http.ResponseWriter, r *http.Request, sessionID string) *models.QuestionnaireSession {
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing_session")
		return nil
	}

	session, err := s.questionnaire.Get(r.Context(), sessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil
	}

	if session.UserID != nil {
		id := identityFromContext(r.Context())
		if id == nil || id.UserID != *session.UserID {
			// deliberately indistinguishable from a missing session
			writeError(w, http.StatusNotFound, "not_found")
			return nil
		}
	}
	return session
}

type startSessionRequest struct {
	SessionID      string `json:"session_id,omitempty"`
	EncryptAnswers bool   `json:"encrypt_answers,omitempty"`
	ReminderOptIn  bool   `json:"reminder_opt_in,omitempty"`
	ShareOptIn     bool   `json:"share_opt_in,omitempty"`
}

// handleStartSession creates a session, or resumes the stored one when the
// given id already exists. Anonymous creation is allowed; the session is
// linked later.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var userID *string
	if id := identityFromContext(r.Context()); id != nil {
		userID = &id.UserID
	}

	if req.SessionID != "" {
		// resume path: ownership applies to an existing session
		if existing, err := s.questionnaire.Get(r.Context(), req.SessionID); err == nil {
			if existing.UserID != nil && (userID == nil || *userID != *existing.UserID) {
				writeError(w, http.StatusNotFound, "not_found")
				return
			}
			writeJSON(w, http.StatusOK, toSessionJSON(existing))
			return
		} else if !errors.Is(err, common.ErrNotFound) {
			s.writeServiceError(w, r, err)
			return
		}
	}

	session, err := s.questionnaire.StartSession(r.Context(), req.SessionID, userID, req.EncryptAnswers)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if req.ReminderOptIn || req.ShareOptIn {
		if err := s.questionnaire.SetOptIns(r.Context(), session.ID, req.ReminderOptIn, req.ShareOptIn); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, toSessionJSON(session))
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	session := s.sessionForRequest(w, r, r.URL.Query().Get("session"))
	if session == nil {
		return
	}

	cur, err := s.questionnaire.Current(r.Context(), session.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"position":  cur.Position,
		"total":     cur.Total,
		"completed": session.Completed,
		"question":  toQuestionJSON(cur.Question),
	})
}

type answerRequest struct {
	SessionID  string `json:"session_id"`
	QuestionID int    `json:"question_id"`
	Text       string `json:"text"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if s.sessionForRequest(w, r, req.SessionID) == nil {
		return
	}

	if err := s.questionnaire.Answer(r.Context(), req.SessionID, req.QuestionID, req.Text); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type declineRequest struct {
	SessionID  string `json:"session_id"`
	QuestionID int    `json:"question_id"`
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	var req declineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if s.sessionForRequest(w, r, req.SessionID) == nil {
		return
	}

	if err := s.questionnaire.Decline(r.Context(), req.SessionID, req.QuestionID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	session := s.sessionForRequest(w, r, r.URL.Query().Get("session"))
	if session == nil {
		return
	}

	items, err := s.questionnaire.ReviewDeclined(r.Context(), session.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"position": item.Position,
			"question": toQuestionJSON(&item.Question),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"declined": out})
}

type completeRequest struct {
	SessionID      string `json:"session_id"`
	AcceptDeclined bool   `json:"accept_declined,omitempty"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if s.sessionForRequest(w, r, req.SessionID) == nil {
		return
	}

	result, err := s.questionnaire.Complete(r.Context(), req.SessionID, req.AcceptDeclined)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{"share_id": result.ShareID}
	if result.ArtifactURL != "" {
		resp["artifact_url"] = result.ArtifactURL
	}
	writeJSON(w, http.StatusOK, resp)
}

type linkRequest struct {
	SessionID string `json:"session_id"`
}

// handleLink attaches the authenticated user to a gate session started
// before login. A session that already has an owner cannot be re-linked.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	id := identityFromContext(r.Context())
	if err := s.questionnaire.LinkUser(r.Context(), req.SessionID, id.UserID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusConflict, "link_unavailable")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	sessions, err := s.questionnaire.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		entry := map[string]any{
			"id":        session.ID,
			"linked":    session.UserID != nil,
			"position":  session.Position,
			"total":     len(session.QuestionOrder),
			"completed": session.Completed,
			"created":   session.CreatedAt.UTC().Format(time.RFC3339),
		}
		if session.CompletedAt != nil {
			entry["completed_at"] = session.CompletedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}
