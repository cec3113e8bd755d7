package models

import (
	"time"

	"github.com/aformulationoftruth/server/internal/cryptox"
)

// AnswerState is the per-question progress state.
type AnswerState string

const (
	StateUnanswered AnswerState = "UNANSWERED"
	StateAnswered   AnswerState = "ANSWERED"
	StateDeclined   AnswerState = "DECLINED"
)

// Response is one version of an answer to one question. The current
// response for a (session, question) pair is the row with the highest
// Version; superseded versions are retained for edit history.
//
// Exactly one of Answer / AnswerEnc is populated, depending on whether the
// owning session stores answers encrypted.
type Response struct {
	ID         string
	SessionID  string
	QuestionID int
	Answer     string
	AnswerEnc  *cryptox.EncryptedField
	Declined   bool
	Version    int
	CreatedAt  time.Time
}

// State derives the answer state of a response row.
func (r *Response) State() AnswerState {
	if r == nil {
		return StateUnanswered
	}
	if r.Declined {
		return StateDeclined
	}
	return StateAnswered
}
