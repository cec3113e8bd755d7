// QuestionnaireService drives a session through the catalog: frozen
// per-session question order, answer/decline transitions, the review pass
// over declined items, and one-time completion with artifact delivery.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/aformulationoftruth/server/internal/common"
	"github.com/aformulationoftruth/server/internal/cryptox"
	"github.com/aformulationoftruth/server/internal/logging"
	mailx "github.com/aformulationoftruth/server/internal/server/mail"
	"github.com/aformulationoftruth/server/internal/server/models"
	"github.com/aformulationoftruth/server/internal/server/questions"
	"github.com/aformulationoftruth/server/internal/server/repositories/repomanager"
)

// minAnswerRunes is the shortest accepted answer after trimming.
const minAnswerRunes = 3

// CurrentQuestion is what "where am I" resolves to for a session.
// Question is nil once the position has walked past the end of the order.
type CurrentQuestion struct {
	Question *questions.Question
	Position int
	Total    int
}

// DeclinedItem pairs a declined question with its catalog entry for the
// review pass.
type DeclinedItem struct {
	Question questions.Question
	Position int
}

// CompletionResult is returned to the single caller that wins completion.
type CompletionResult struct {
	ShareID     string
	ArtifactURL string
}

// QuestionnaireService owns session progress state.
type QuestionnaireService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	enc         *cryptox.Service
	mailer      mailx.Sender
	artifacts   *ArtifactService
	logger      logging.Logger
}

func NewQuestionnaireService(db *sql.DB, m repomanager.RepositoryManager, enc *cryptox.Service, mailer mailx.Sender, artifacts *ArtifactService, logger logging.Logger) *QuestionnaireService {
	return &QuestionnaireService{
		db:          db,
		repomanager: m,
		enc:         enc,
		mailer:      mailer,
		artifacts:   artifacts,
		logger:      logger.With("module", "questionnaire_service"),
	}
}

// ValidateAnswer enforces the submission rules: non-empty after trimming,
// a minimum length, and at least one letter (which also rejects purely
// numeric input).
func ValidateAnswer(text string) error {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < minAnswerRunes {
		return common.ErrValidation
	}
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			return nil
		}
	}
	return common.ErrValidation
}

// StartSession materializes a new session with a freshly shuffled order.
// The insert is guarded by the primary key: if a concurrent first access
// already committed a session under this id, that order wins and is
// returned, so the ordering is generated at most once per session.
func (s *QuestionnaireService) StartSession(ctx context.Context, sessionID string, userID *string, encryptAnswers bool) (*models.QuestionnaireSession, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session := &models.QuestionnaireSession{
		ID:             sessionID,
		UserID:         userID,
		QuestionOrder:  questions.NewOrder(),
		EncryptAnswers: encryptAnswers,
	}

	repo := s.repomanager.Sessions(s.db)
	created, err := repo.Create(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("session create: %w", err)
	}
	if !created {
		return repo.Get(ctx, sessionID)
	}

	s.logger.Info(ctx, "session started", "session_id", session.ID)
	return session, nil
}

// Get returns the stored session.
func (s *QuestionnaireService) Get(ctx context.Context, sessionID string) (*models.QuestionnaireSession, error) {
	return s.repomanager.Sessions(s.db).Get(ctx, sessionID)
}

// Current resolves the question at the stored position of the stored
// order. It never re-shuffles; resumption across requests and process
// restarts reads exactly what was frozen at session start.
func (s *QuestionnaireService) Current(ctx context.Context, sessionID string) (*CurrentQuestion, error) {
	session, err := s.repomanager.Sessions(s.db).Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return currentOf(session), nil
}

func currentOf(session *models.QuestionnaireSession) *CurrentQuestion {
	cur := &CurrentQuestion{Position: session.Position, Total: len(session.QuestionOrder)}
	if session.Position < len(session.QuestionOrder) {
		if q, ok := questions.ByID(session.QuestionOrder[session.Position]); ok {
			cur.Question = &q
		}
	}
	return cur
}

// Answer records an answer version for the question. Permitted
// transitions: UNANSWERED -> ANSWERED, DECLINED -> ANSWERED (review pass),
// and ANSWERED -> ANSWERED as an edit producing a new version. Answering
// the question at the current position advances it.
func (s *QuestionnaireService) Answer(ctx context.Context, sessionID string, questionID int, text string) error {
	if err := ValidateAnswer(text); err != nil {
		return err
	}

	session, _, err := s.sessionAndQuestion(ctx, sessionID, questionID)
	if err != nil {
		return err
	}

	response := &models.Response{
		SessionID:  sessionID,
		QuestionID: questionID,
	}
	if session.EncryptAnswers {
		encrypted, err := s.enc.Encrypt(strings.TrimSpace(text))
		if err != nil {
			return fmt.Errorf("answer encryption: %w", err)
		}
		response.AnswerEnc = encrypted
	} else {
		response.Answer = strings.TrimSpace(text)
	}

	if _, err := s.repomanager.Responses(s.db).Insert(ctx, response); err != nil {
		return fmt.Errorf("answer insert: %w", err)
	}

	return s.advanceIfCurrent(ctx, session, questionID)
}

// Decline records an explicit skip. Only declinable questions accept it,
// and an already-answered question cannot be taken back to declined.
// Re-declining during the review pass is a permitted no-op transition.
func (s *QuestionnaireService) Decline(ctx context.Context, sessionID string, questionID int) error {
	session, question, err := s.sessionAndQuestion(ctx, sessionID, questionID)
	if err != nil {
		return err
	}
	if !question.Declinable {
		return common.ErrValidation
	}

	existing, err := s.repomanager.Responses(s.db).Current(ctx, sessionID, questionID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if existing != nil && existing.State() == models.StateAnswered {
		return common.ErrValidation
	}

	response := &models.Response{
		SessionID:  sessionID,
		QuestionID: questionID,
		Declined:   true,
	}
	if _, err := s.repomanager.Responses(s.db).Insert(ctx, response); err != nil {
		return fmt.Errorf("decline insert: %w", err)
	}

	return s.advanceIfCurrent(ctx, session, questionID)
}

// ReviewDeclined lists the questions currently in DECLINED state, in
// session order, so the respondent can revisit them before completing.
func (s *QuestionnaireService) ReviewDeclined(ctx context.Context, sessionID string) ([]DeclinedItem, error) {
	session, err := s.repomanager.Sessions(s.db).Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	current, err := s.repomanager.Responses(s.db).ListCurrent(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	declined := make(map[int]bool)
	for _, r := range current {
		if r.State() == models.StateDeclined {
			declined[r.QuestionID] = true
		}
	}

	var items []DeclinedItem
	for pos, id := range session.QuestionOrder {
		if !declined[id] {
			continue
		}
		if q, ok := questions.ByID(id); ok {
			items = append(items, DeclinedItem{Question: q, Position: pos})
		}
	}
	return items, nil
}

// Complete performs the terminal session transition. Preconditions: the
// position has reached the end of the order, every question has left
// UNANSWERED, and remaining DECLINED items are explicitly accepted.
// The completion flag flips under a completed=false predicate, so of two
// concurrent completion attempts exactly one triggers artifact generation
// and delivery; the other gets ErrAlreadyCompleted.
func (s *QuestionnaireService) Complete(ctx context.Context, sessionID string, acceptDeclined bool) (*CompletionResult, error) {
	repo := s.repomanager.Sessions(s.db)
	session, err := repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, common.ErrAlreadyCompleted
	}
	if session.Position < len(session.QuestionOrder) {
		return nil, common.ErrValidation
	}

	current, err := s.repomanager.Responses(s.db).ListCurrent(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	states := make(map[int]models.AnswerState, len(current))
	for _, r := range current {
		states[r.QuestionID] = r.State()
	}
	for _, id := range session.QuestionOrder {
		switch states[id] {
		case models.StateAnswered:
		case models.StateDeclined:
			if !acceptDeclined {
				return nil, common.ErrValidation
			}
		default:
			return nil, common.ErrValidation
		}
	}

	shareID := uuid.NewString()
	won, err := repo.Complete(ctx, sessionID, shareID, time.Now())
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, common.ErrAlreadyCompleted
	}

	result := &CompletionResult{ShareID: shareID}
	s.deliverArtifact(ctx, session, shareID, result)
	return result, nil
}

// deliverArtifact runs the post-completion step for the winning caller.
// Failures here are logged, not propagated: the session is completed and
// the artifact can be re-fetched via its share id later.
func (s *QuestionnaireService) deliverArtifact(ctx context.Context, session *models.QuestionnaireSession, shareID string, result *CompletionResult) {
	artifactURL, err := s.artifacts.PresignedArtifactURL(ctx, StorageKeyForShare(shareID))
	if err != nil {
		s.logger.Error(ctx, "artifact presign failed", "session_id", session.ID, "error", err.Error())
		return
	}
	result.ArtifactURL = artifactURL

	if session.UserID == nil {
		return
	}
	user, err := s.repomanager.Users(s.db).GetByID(ctx, *session.UserID)
	if err != nil {
		s.logger.Error(ctx, "completion owner lookup failed", "session_id", session.ID, "error", err.Error())
		return
	}
	email, err := s.enc.Decrypt(user.Email)
	if err != nil {
		s.logger.Error(ctx, "completion email undecryptable", "user_id", user.ID, "error", err.Error())
		return
	}
	if err := s.mailer.SendCompletion(ctx, email, artifactURL); err != nil {
		s.logger.Error(ctx, "completion delivery failed", "session_id", session.ID, "error", err.Error())
	}
}

// ListRecent is the admin view: newest sessions first.
func (s *QuestionnaireService) ListRecent(ctx context.Context, limit int) ([]*models.QuestionnaireSession, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repomanager.Sessions(s.db).ListRecent(ctx, limit)
}

// LinkUser attaches an authenticated user to a pre-auth gate session.
func (s *QuestionnaireService) LinkUser(ctx context.Context, sessionID, userID string) error {
	return s.repomanager.Sessions(s.db).LinkUser(ctx, sessionID, userID)
}

// SetOptIns records reminder/share choices for the session.
func (s *QuestionnaireService) SetOptIns(ctx context.Context, sessionID string, reminder, share bool) error {
	return s.repomanager.Sessions(s.db).SetOptIns(ctx, sessionID, reminder, share)
}

func (s *QuestionnaireService) sessionAndQuestion(ctx context.Context, sessionID string, questionID int) (*models.QuestionnaireSession, *questions.Question, error) {
	session, err := s.repomanager.Sessions(s.db).Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Completed {
		return nil, nil, common.ErrAlreadyCompleted
	}

	question, ok := questions.ByID(questionID)
	if !ok {
		return nil, nil, common.ErrValidation
	}
	inOrder := false
	for _, id := range session.QuestionOrder {
		if id == questionID {
			inOrder = true
			break
		}
	}
	if !inOrder {
		return nil, nil, common.ErrValidation
	}

	return session, &question, nil
}

// advanceIfCurrent moves the position one step when the transition just
// made was for the question at the current position. Transitions made
// during the review pass target earlier positions and leave it alone.
func (s *QuestionnaireService) advanceIfCurrent(ctx context.Context, session *models.QuestionnaireSession, questionID int) error {
	if session.Position >= len(session.QuestionOrder) {
		return nil
	}
	if session.QuestionOrder[session.Position] != questionID {
		return nil
	}

	err := s.repomanager.Sessions(s.db).AdvancePosition(ctx, session.ID, session.Position, session.Position+1)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	// ErrNotFound means a concurrent request already advanced; the stored
	// position is authoritative either way.
	return nil
}
