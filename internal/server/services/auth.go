// Package services contains server-side business logic. This file
// implements AuthService: issuing magic links, redeeming them exactly
// once, and establishing the signed session that follows.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/aformulationoftruth/server/internal/common"
	"github.com/aformulationoftruth/server/internal/cryptox"
	"github.com/aformulationoftruth/server/internal/dbx"
	"github.com/aformulationoftruth/server/internal/logging"
	"github.com/aformulationoftruth/server/internal/server/auth"
	"github.com/aformulationoftruth/server/internal/server/config"
	mailx "github.com/aformulationoftruth/server/internal/server/mail"
	"github.com/aformulationoftruth/server/internal/server/models"
	"github.com/aformulationoftruth/server/internal/server/repositories/repomanager"
	"github.com/aformulationoftruth/server/internal/tokenx"
)

// Identity is the single authenticated-identity value produced by session
// introspection. Handlers receive this and nothing else; no ad-hoc user
// shapes flow through the request path.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	Role        string
}

// AuthService handles the passwordless credential lifecycle:
// issue a link, redeem it exactly once, mint a session.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	enc         *cryptox.Service
	mailer      mailx.Sender
	logger      logging.Logger

	sessionSecret []byte
	sessionTTL    time.Duration
	linkTTL       time.Duration
	baseURL       string
}

// NewAuthService constructs an AuthService from repositories and config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, enc *cryptox.Service, mailer mailx.Sender, logger logging.Logger, cfg *config.Config) *AuthService {
	return &AuthService{
		db:            db,
		repomanager:   m,
		enc:           enc,
		mailer:        mailer,
		logger:        logger.With("module", "auth_service"),
		sessionSecret: []byte(cfg.SessionSecret),
		sessionTTL:    cfg.SessionValidityDuration,
		linkTTL:       cfg.LinkValidityDuration,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// NormalizeEmail lower-cases and trims the address and rejects anything
// that does not parse as a bare address.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return "", common.ErrValidation
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", common.ErrValidation
	}
	return normalized, nil
}

// RequestLink upserts the user for the given email, issues a single-use
// token with the configured TTL, and hands the redemption link to the
// mailer. The user record is created at issuance so request-time hints
// (locale, timezone) attach immediately. The raw token exists only in the
// returned link; it is never persisted or logged.
func (s *AuthService) RequestLink(ctx context.Context, email, locale, timezone string) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	encryptedEmail, err := s.enc.Encrypt(normalized)
	if err != nil {
		return fmt.Errorf("email encryption: %w", err)
	}

	user := &models.User{
		EmailHash: cryptox.HashLookup(normalized),
		Email:     encryptedEmail,
		Locale:    locale,
		Timezone:  timezone,
	}
	user, err = s.repomanager.Users(s.db).UpsertByEmail(ctx, user)
	if err != nil {
		return fmt.Errorf("user upsert: %w", err)
	}

	raw, err := tokenx.Issue(tokenx.DefaultByteLength)
	if err != nil {
		return common.ErrInternal
	}

	token := &models.MagicToken{
		TokenHash: tokenx.Hash(raw),
		UserID:    user.ID,
		Purpose:   models.TokenPurposeLogin,
		ExpiresAt: time.Now().Add(s.linkTTL),
	}
	if _, err := s.repomanager.MagicTokens(s.db).Create(ctx, token); err != nil {
		return fmt.Errorf("token create: %w", err)
	}

	link := s.baseURL + "/auth/redeem?token=" + url.QueryEscape(raw)
	if err := s.mailer.SendLink(ctx, normalized, link, s.linkTTL); err != nil {
		return fmt.Errorf("link delivery: %w", err)
	}

	s.logger.Info(ctx, "magic link issued", "user_id", user.ID, "ttl", s.linkTTL.String())
	return nil
}

// Redeem consumes a presented token exactly once. The candidate row is
// selected under an exclusive row lock with the used/expired predicate
// applied in the query, so of two concurrent attempts one marks the row
// used and commits while the other sees zero rows and gets ErrTokenInvalid.
// Never-issued, expired and already-used all collapse into ErrTokenInvalid.
//
// No session side effects happen here: callers establish the session only
// after Redeem returns, which is after the commit.
func (s *AuthService) Redeem(ctx context.Context, rawToken string) (*models.User, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, common.ErrTokenInvalid
	}
	tokenHash := tokenx.Hash(rawToken)

	var user *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.MagicTokens(tx)

		token, err := tokens.FindForRedemption(ctx, tokenHash, time.Now())
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrTokenInvalid
			}
			return err
		}

		// Any failure past this point rolls the whole transaction back,
		// leaving the token redeemable for a legitimate retry.
		user, err = s.repomanager.Users(tx).GetByID(ctx, token.UserID)
		if err != nil {
			return fmt.Errorf("owner lookup: %w", err)
		}

		return tokens.MarkUsed(ctx, token.ID, time.Now())
	})
	if err != nil {
		if errors.Is(err, common.ErrTokenInvalid) {
			return nil, common.ErrTokenInvalid
		}
		s.logger.Error(ctx, "redemption failed", "error", err.Error())
		return nil, common.ErrInternal
	}

	s.logger.Info(ctx, "token redeemed", "user_id", user.ID)
	return user, nil
}

// EstablishSession mints the signed session credential for a user whose
// redemption has already committed.
func (s *AuthService) EstablishSession(user *models.User) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.sessionTTL)
	token, err := auth.GenerateSessionToken(user.ID, s.sessionSecret, s.sessionTTL)
	if err != nil {
		return "", time.Time{}, common.ErrInternal
	}
	return token, expiresAt, nil
}

// Introspect verifies the session credential and re-resolves the current
// user record: role and email come from storage, not from claims embedded
// at issuance.
func (s *AuthService) Introspect(ctx context.Context, sessionToken string) (*Identity, error) {
	userID, err := auth.UserIDFromToken(sessionToken, s.sessionSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, common.ErrInternal
	}

	email, err := s.enc.Decrypt(user.Email)
	if err != nil {
		s.logger.Error(ctx, "stored email undecryptable", "user_id", user.ID, "error", err.Error())
		return nil, common.ErrInternal
	}

	return &Identity{
		UserID:      user.ID,
		Email:       email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	}, nil
}

// SweepSpentTokens deletes expired and used token rows. Best effort: the
// redemption predicate excludes such rows whether or not this ever runs.
func (s *AuthService) SweepSpentTokens(ctx context.Context) (int64, error) {
	n, err := s.repomanager.MagicTokens(s.db).DeleteSpent(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "spent tokens swept", "count", n)
	}
	return n, nil
}
