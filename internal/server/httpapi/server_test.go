package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aformulationoftruth/server/internal/common"
	"github.com/aformulationoftruth/server/internal/logging"
	sc "github.com/aformulationoftruth/server/internal/server/config"
	"github.com/aformulationoftruth/server/internal/server/models"
	"github.com/aformulationoftruth/server/internal/server/questions"
	"github.com/aformulationoftruth/server/internal/server/services"
)

// --- fakes ---

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}
func (l noopLogger) With(...any) logging.Logger          { return l }

type fakeAuth struct {
	requestLinkErr error
	lastEmail      string

	redeemUser *models.User
	redeemErr  error

	sessionToken string
	sessionErr   error

	identities map[string]*services.Identity
}

func (f *fakeAuth) RequestLink(ctx context.Context, email, locale, timezone string) error {
	f.lastEmail = email
	return f.requestLinkErr
}

func (f *fakeAuth) Redeem(ctx context.Context, rawToken string) (*models.User, error) {
	if f.redeemErr != nil {
		return nil, f.redeemErr
	}
	return f.redeemUser, nil
}

func (f *fakeAuth) EstablishSession(user *models.User) (string, time.Time, error) {
	if f.sessionErr != nil {
		return "", time.Time{}, f.sessionErr
	}
	return f.sessionToken, time.Now().Add(time.Hour), nil
}

func (f *fakeAuth) Introspect(ctx context.Context, sessionToken string) (*services.Identity, error) {
	if id, ok := f.identities[sessionToken]; ok {
		return id, nil
	}
	return nil, common.ErrUnauthorized
}

type fakeQuestionnaire struct {
	sessions map[string]*models.QuestionnaireSession

	startOut *models.QuestionnaireSession
	startErr error

	currentOut *services.CurrentQuestion

	answerErr  error
	declineErr error

	reviewOut []services.DeclinedItem

	completeOut *services.CompletionResult
	completeErr error

	linkErr      error
	linkedUserID string

	optIns *[2]bool

	recent []*models.QuestionnaireSession
}

func (f *fakeQuestionnaire) StartSession(ctx context.Context, sessionID string, userID *string, encryptAnswers bool) (*models.QuestionnaireSession, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.startOut, nil
}

func (f *fakeQuestionnaire) Get(ctx context.Context, sessionID string) (*models.QuestionnaireSession, error) {
	if s, ok := f.sessions[sessionID]; ok {
		return s, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeQuestionnaire) Current(ctx context.Context, sessionID string) (*services.CurrentQuestion, error) {
	return f.currentOut, nil
}

func (f *fakeQuestionnaire) Answer(ctx context.Context, sessionID string, questionID int, text string) error {
	return f.answerErr
}

func (f *fakeQuestionnaire) Decline(ctx context.Context, sessionID string, questionID int) error {
	return f.declineErr
}

func (f *fakeQuestionnaire) ReviewDeclined(ctx context.Context, sessionID string) ([]services.DeclinedItem, error) {
	return f.reviewOut, nil
}

func (f *fakeQuestionnaire) Complete(ctx context.Context, sessionID string, acceptDeclined bool) (*services.CompletionResult, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.completeOut, nil
}

func (f *fakeQuestionnaire) LinkUser(ctx context.Context, sessionID, userID string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.linkedUserID = userID
	return nil
}

func (f *fakeQuestionnaire) SetOptIns(ctx context.Context, sessionID string, reminder, share bool) error {
	f.optIns = &[2]bool{reminder, share}
	return nil
}

func (f *fakeQuestionnaire) ListRecent(ctx context.Context, limit int) ([]*models.QuestionnaireSession, error) {
	return f.recent, nil
}

func testConfig() *sc.Config {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	return cfg
}

func newTestServer(auth *fakeAuth, q *fakeQuestionnaire) *Server {
	if auth.identities == nil {
		auth.identities = map[string]*services.Identity{}
	}
	if q.sessions == nil {
		q.sessions = map[string]*models.QuestionnaireSession{}
	}
	return NewServer(testConfig(), auth, q, NewMemoryLimiter(), noopLogger{})
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.RemoteAddr = "192.0.2.10:55555"
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func authCookie(token string) *http.Cookie {
	return &http.Cookie{Name: testConfig().CookieName, Value: token}
}

// --- auth endpoints ---

func TestRequestLink_Ack(t *testing.T) {
	auth := &fakeAuth{}
	srv := newTestServer(auth, &fakeQuestionnaire{})
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/auth/request-link", `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "alice@example.com", auth.lastEmail)
}

func TestRequestLink_UniformAckOnInternalFailure(t *testing.T) {
	auth := &fakeAuth{requestLinkErr: errors.New("smtp down")}
	srv := newTestServer(auth, &fakeQuestionnaire{})

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/auth/request-link", `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRequestLink_BadInput(t *testing.T) {
	srv := newTestServer(&fakeAuth{}, &fakeQuestionnaire{})
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/auth/request-link", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/auth/request-link", `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestLink_EmailRateLimit(t *testing.T) {
	srv := newTestServer(&fakeAuth{}, &fakeQuestionnaire{})
	router := srv.Router()

	// the per-email window admits 5; the per-IP middleware admits 10, so
	// the email key is the one that trips
	var last int
	for i := 0; i < 6; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/auth/request-link", `{"email":"burst@example.com"}`)
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestRedeem_SuccessSetsCookieAndRedirects(t *testing.T) {
	auth := &fakeAuth{
		redeemUser:   &models.User{ID: "u1"},
		sessionToken: "jwt-value",
	}
	srv := newTestServer(auth, &fakeQuestionnaire{})

	w := doJSON(t, srv.Router(), http.MethodGet, "/auth/redeem?token=raw", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testConfig().PostAuthPath, w.Header().Get("Location"))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testConfig().CookieName, cookies[0].Name)
	assert.Equal(t, "jwt-value", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, "/", cookies[0].Path)
}

func TestRedeem_FailureRedirectsGenerically(t *testing.T) {
	auth := &fakeAuth{redeemErr: common.ErrTokenInvalid}
	srv := newTestServer(auth, &fakeQuestionnaire{})

	w := doJSON(t, srv.Router(), http.MethodGet, "/auth/redeem?token=bogus", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testConfig().LoginPath+"?error=link", w.Header().Get("Location"))
	assert.Empty(t, w.Result().Cookies())
}

func TestMe_AnonymousNeverErrors(t *testing.T) {
	srv := newTestServer(&fakeAuth{}, &fakeQuestionnaire{})

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["authenticated"])
}

func TestMe_Authenticated(t *testing.T) {
	auth := &fakeAuth{identities: map[string]*services.Identity{
		"good": {UserID: "u1", Email: "alice@example.com", Role: models.RoleUser},
	}}
	srv := newTestServer(auth, &fakeQuestionnaire{})

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/auth/me", "", authCookie("good"))
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "alice@example.com", body["email"])
}

func TestMe_StaleCookieCleared(t *testing.T) {
	srv := newTestServer(&fakeAuth{}, &fakeQuestionnaire{})

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/auth/me", "", authCookie("expired"))
	assert.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestLogout_Idempotent(t *testing.T) {
	srv := newTestServer(&fakeAuth{}, &fakeQuestionnaire{})
	router := srv.Router()

	for i := 0; i < 2; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/auth/logout", "")
		assert.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Less(t, cookies[0].MaxAge, 0)
	}
}

// --- questionnaire endpoints ---

func gateSession(id string) *models.QuestionnaireSession {
	return &models.QuestionnaireSession{ID: id, QuestionOrder: questions.NewOrder()}
}

func ownedSession(id, userID string) *models.QuestionnaireSession {
	s := gateSession(id)
	s.UserID = &userID
	return s
}

func TestStartSession_Anonymous(t *testing.T) {
	q := &fakeQuestionnaire{startOut: gateSession("s1")}
	srv := newTestServer(&fakeAuth{}, q)

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/questionnaire/session", `{}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	var body sessionJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "s1", body.ID)
	assert.Equal(t, questions.Count(), body.Total)
}

func TestStartSession_ResumeExisting(t *testing.T) {
	existing := gateSession("s1")
	existing.Position = 7
	q := &fakeQuestionnaire{sessions: map[string]*models.QuestionnaireSession{"s1": existing}}
	srv := newTestServer(&fakeAuth{}, q)

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/questionnaire/session", `{"session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var body sessionJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 7, body.Position)
}

func TestStartSession_OptInsRecorded(t *testing.T) {
	q := &fakeQuestionnaire{startOut: gateSession("s1")}
	srv := newTestServer(&fakeAuth{}, q)

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/questionnaire/session", `{"reminder_opt_in":true}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, q.optIns)
	assert.Equal(t, [2]bool{true, false}, *q.optIns)
}

func TestSessionOwnership(t *testing.T) {
	q := &fakeQuestionnaire{sessions: map[string]*models.QuestionnaireSession{
		"owned": ownedSession("owned", "u1"),
	}}
	auth := &fakeAuth{identities: map[string]*services.Identity{
		"owner":    {UserID: "u1"},
		"intruder": {UserID: "u2"},
	}}
	srv := newTestServer(auth, q)
	q.currentOut = &services.CurrentQuestion{Position: 0, Total: questions.Count()}
	router := srv.Router()

	// anonymous
	w := doJSON(t, router, http.MethodGet, "/api/questionnaire/current?session=owned", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// a different user sees the same not-found shape
	w = doJSON(t, router, http.MethodGet, "/api/questionnaire/current?session=owned", "", authCookie("intruder"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// the owner gets through
	w = doJSON(t, router, http.MethodGet, "/api/questionnaire/current?session=owned", "", authCookie("owner"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCurrent_GateSession(t *testing.T) {
	first, _ := questions.ByID(questions.FirstID())
	q := &fakeQuestionnaire{
		sessions:   map[string]*models.QuestionnaireSession{"s1": gateSession("s1")},
		currentOut: &services.CurrentQuestion{Question: &first, Position: 0, Total: questions.Count()},
	}
	srv := newTestServer(&fakeAuth{}, q)

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/questionnaire/current?session=s1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Position int           `json:"position"`
		Question *questionJSON `json:"question"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Question)
	assert.Equal(t, questions.FirstID(), body.Question.ID)
	assert.False(t, body.Question.Declinable)
}

func TestAnswer_ErrorMapping(t *testing.T) {
	q := &fakeQuestionnaire{sessions: map[string]*models.QuestionnaireSession{"s1": gateSession("s1")}}
	srv := newTestServer(&fakeAuth{}, q)
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/questionnaire/answer", `{"session_id":"s1","question_id":1,"text":"an answer"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	q.answerErr = common.ErrValidation
	w = doJSON(t, router, http.MethodPost, "/api/questionnaire/answer", `{"session_id":"s1","question_id":1,"text":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	q.answerErr = common.ErrAlreadyCompleted
	w = doJSON(t, router, http.MethodPost, "/api/questionnaire/answer", `{"session_id":"s1","question_id":1,"text":"an answer"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDecline(t *testing.T) {
	q := &fakeQuestionnaire{sessions: map[string]*models.QuestionnaireSession{"s1": gateSession("s1")}}
	srv := newTestServer(&fakeAuth{}, q)
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/questionnaire/decline", `{"session_id":"s1","question_id":4}`)
	assert.Equal(t, http.StatusOK, w.Code)

	q.declineErr = common.ErrValidation
	w = doJSON(t, router, http.MethodPost, "/api/questionnaire/decline", `{"session_id":"s1","question_id":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReview(t *testing.T) {
	declined, _ := questions.ByID(5)
	q := &fakeQuestionnaire{
		sessions:  map[string]*models.QuestionnaireSession{"s1": gateSession("s1")},
		reviewOut: []services.DeclinedItem{{Question: declined, Position: 2}},
	}
	srv := newTestServer(&fakeAuth{}, q)

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/questionnaire/review?session=s1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Declined []struct {
			Position int          `json:"position"`
			Question questionJSON `json:"question"`
		} `json:"declined"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Declined, 1)
	assert.Equal(t, 5, body.Declined[0].Question.ID)
}

func TestComplete(t *testing.T) {
	q := &fakeQuestionnaire{
		sessions:    map[string]*models.QuestionnaireSession{"s1": gateSession("s1")},
		completeOut: &services.CompletionResult{ShareID: "share-1", ArtifactURL: "https://s3/a"},
	}
	srv := newTestServer(&fakeAuth{}, q)
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/questionnaire/complete", `{"session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "share-1", body["share_id"])
	assert.Equal(t, "https://s3/a", body["artifact_url"])

	q.completeErr = common.ErrAlreadyCompleted
	w = doJSON(t, router, http.MethodPost, "/api/questionnaire/complete", `{"session_id":"s1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLink(t *testing.T) {
	q := &fakeQuestionnaire{sessions: map[string]*models.QuestionnaireSession{"s1": gateSession("s1")}}
	auth := &fakeAuth{identities: map[string]*services.Identity{"good": {UserID: "u1"}}}
	srv := newTestServer(auth, q)
	router := srv.Router()

	// auth required
	w := doJSON(t, router, http.MethodPost, "/api/questionnaire/link", `{"session_id":"s1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/questionnaire/link", `{"session_id":"s1"}`, authCookie("good"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", q.linkedUserID)

	q.linkErr = common.ErrNotFound
	w = doJSON(t, router, http.MethodPost, "/api/questionnaire/link", `{"session_id":"s1"}`, authCookie("good"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

// --- admin ---

func TestAdminSessions(t *testing.T) {
	now := time.Now()
	session := gateSession("s1")
	session.CreatedAt = now
	q := &fakeQuestionnaire{recent: []*models.QuestionnaireSession{session}}
	auth := &fakeAuth{identities: map[string]*services.Identity{
		"admin": {UserID: "a1", Role: models.RoleAdmin},
		"plain": {UserID: "u1", Role: models.RoleUser},
	}}
	srv := newTestServer(auth, q)
	router := srv.Router()

	w := doJSON(t, router, http.MethodGet, "/api/admin/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/admin/sessions", "", authCookie("plain"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/admin/sessions", "", authCookie("admin"))
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sessions []map[string]any `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "s1", body.Sessions[0]["id"])
	assert.Equal(t, false, body.Sessions[0]["linked"])
}

// --- misc ---

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeAuth{}, &fakeQuestionnaire{})
	w := doJSON(t, srv.Router(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "k", 3, time.Hour))
	}
	assert.False(t, l.Allow(ctx, "k", 3, time.Hour))

	// independent keys
	assert.True(t, l.Allow(ctx, "other", 3, time.Hour))
}
