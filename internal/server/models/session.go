package models

import "time"

// QuestionnaireSession tracks one respondent's pass through the catalog.
// QuestionOrder is generated once at creation and frozen; regenerating it
// would desynchronize stored answers from the user-facing numbering.
// UserID stays nil for pre-authentication gate sessions until linked.
type QuestionnaireSession struct {
	ID             string
	UserID         *string
	QuestionOrder  []int
	Position       int
	Completed      bool
	CompletedAt    *time.Time
	ShareID        *string
	EncryptAnswers bool
	ReminderOptIn  bool
	ShareOptIn     bool
	CreatedAt      time.Time
}
