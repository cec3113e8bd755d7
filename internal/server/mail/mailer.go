// Package mail declares the outbound delivery port. Actual transport
// (SMTP, provider API) is an external collaborator; the server only ever
// talks to this interface.
package mail

import (
	"context"
	"time"

	"github.com/aformulationoftruth/server/internal/logging"
)

// Sender delivers authentication and completion mail.
type Sender interface {
	// SendLink delivers a magic link to destination. The link embeds the
	// raw token; implementations must not log it.
	SendLink(ctx context.Context, destination, url string, ttl time.Duration) error

	// SendCompletion delivers the completed-questionnaire artifact link.
	SendCompletion(ctx context.Context, destination, artifactURL string) error
}

// LogSender is the development sender: it records that a delivery would
// have happened without the destination or link contents.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "mail")}
}

func (s *LogSender) SendLink(ctx context.Context, destination, url string, ttl time.Duration) error {
	s.logger.Info(ctx, "magic link delivery skipped (dev sender)", "ttl", ttl.String())
	return nil
}

func (s *LogSender) SendCompletion(ctx context.Context, destination, artifactURL string) error {
	s.logger.Info(ctx, "completion delivery skipped (dev sender)")
	return nil
}
