// Package auth orchestrates the authentication lifecycle: Apple credential
// verification, access token issuance, and the refresh token rotation
// protocol with reuse detection.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwillz7667/verbio-auth/identity"
	"github.com/jwillz7667/verbio-auth/notifier"
	"github.com/jwillz7667/verbio-auth/token"
	"github.com/jwillz7667/verbio-auth/token/refresh"
	"github.com/jwillz7667/verbio-auth/users"
)

// Repos holds the repository dependencies of the Service.
type Repos struct {
	Users users.Repo
}

// ProfileHints are the optional profile fields the client forwards at
// login. Apple includes the user's name only in the very first
// authorization, so the app must hand it to us or it is lost.
type ProfileHints struct {
	DisplayName string
	Email       string
}

// Session is the login/refresh boundary result: the safe user projection
// plus a fresh credential pair. RefreshToken is plaintext the caller sees
// exactly once.
type Session struct {
	User         users.Profile
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Service wires the credential verifier, the token issuer, and the refresh
// rotation manager behind the login, refresh, and logout boundaries.
type Service struct {
	repos    Repos
	verifier identity.Verifier
	issuer   *token.Issuer
	refresh  *refresh.Manager
	notify   notifier.SecurityNotifier
	nowTime  func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithSecurityNotifier routes reuse detections to an out-of-band channel.
func WithSecurityNotifier(n notifier.SecurityNotifier) ServiceOption {
	return func(s *Service) {
		s.notify = n
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(
	repos Repos,
	verifier identity.Verifier,
	issuer *token.Issuer,
	refreshManager *refresh.Manager,
	options ...ServiceOption,
) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewService] verifier is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewService] issuer is required")
	}
	if refreshManager == nil {
		return nil, errors.New("[NewService] refresh manager is required")
	}

	service := &Service{
		repos:    repos,
		verifier: verifier,
		issuer:   issuer,
		refresh:  refreshManager,
		notify:   notifier.Noop{},
		nowTime:  time.Now,
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// Login verifies the Apple identity assertion, finds or creates the user
// for its subject, and opens a new session (fresh token family).
func (s *Service) Login(ctx context.Context, rawIDToken string, hints ProfileHints) (*Session, error) {
	ident, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredential) {
			return nil, InvalidCredentialErr
		}
		return nil, internalFailure("login verify", err)
	}

	user, err := s.findOrCreateUser(ctx, ident, hints)
	if err != nil {
		return nil, err
	}

	return s.openSession(ctx, user)
}

// Refresh drives one step of the rotation protocol on a presented opaque
// refresh token. A reuse detection revokes the whole family before this
// returns; the caller only sees RefreshTokenRevokedErr.
func (s *Service) Refresh(ctx context.Context, presented string) (*Session, error) {
	if presented == "" {
		return nil, InvalidRefreshTokenErr
	}

	result, err := s.refresh.Rotate(ctx, presented)
	if err != nil {
		return nil, internalFailure("refresh rotate", err)
	}

	switch result.Outcome {
	case refresh.OutcomeNotFound:
		return nil, InvalidRefreshTokenErr
	case refresh.OutcomeExpired:
		return nil, RefreshTokenExpiredErr
	case refresh.OutcomeReuse:
		// Server-side telemetry only; the client response stays generic.
		log.Warn().
			Str("user_id", result.Token.UserID).
			Str("family_id", result.Token.FamilyID).
			Msg("refresh token reuse detected, family revoked")
		s.notifyReuse(result.Token.UserID, result.Token.FamilyID)
		return nil, RefreshTokenRevokedErr
	}

	user, err := s.repos.Users.GetByID(ctx, result.Token.UserID)
	if err != nil {
		return nil, internalFailure("refresh load user", err)
	}

	accessToken, err := s.issuer.Issue(user)
	if err != nil {
		return nil, internalFailure("refresh issue access token", err)
	}

	return &Session{
		User:         user.Profile(),
		AccessToken:  accessToken,
		RefreshToken: result.NewPlaintext,
		ExpiresIn:    int(s.issuer.TTL().Seconds()),
	}, nil
}

// Logout revokes the presented token's family, or every family of the user
// when allDevices is set. Idempotent: unknown or already-revoked input is a
// successful no-op, never an error.
func (s *Service) Logout(ctx context.Context, presented string, allDevices bool, userID string) error {
	if allDevices {
		target := userID
		if target == "" && presented != "" {
			tok, err := s.refresh.Lookup(ctx, presented)
			switch {
			case errors.Is(err, refresh.ErrNotFound):
				// benign, falls through to the empty-target no-op
			case err != nil:
				return internalFailure("logout all devices lookup", err)
			default:
				target = tok.UserID
			}
		}
		if target == "" {
			return nil
		}
		if err := s.refresh.RevokeAllForUser(ctx, target); err != nil {
			return internalFailure("logout all devices", err)
		}
		return nil
	}

	if presented == "" {
		return nil
	}

	tok, err := s.refresh.Lookup(ctx, presented)
	if errors.Is(err, refresh.ErrNotFound) {
		return nil
	}
	if err != nil {
		return internalFailure("logout lookup", err)
	}

	if err := s.refresh.RevokeFamily(ctx, tok.FamilyID); err != nil {
		return internalFailure("logout revoke family", err)
	}
	return nil
}

func (s *Service) findOrCreateUser(ctx context.Context, ident *identity.Identity, hints ProfileHints) (*users.User, error) {
	user, err := s.repos.Users.GetByAppleSubject(ctx, ident.Subject)
	if err == nil {
		return s.backfillProfile(ctx, user, ident, hints)
	}
	if !errors.Is(err, users.ErrNotFound) {
		return nil, internalFailure("login load user", err)
	}

	email := ident.Email
	if email == "" {
		email = hints.Email
	}

	user = users.New(ident.Subject, email, hints.DisplayName, s.nowTime())
	if err := s.repos.Users.Create(ctx, user); err != nil {
		return nil, internalFailure("login create user", err)
	}

	log.Info().Str("user_id", user.ID).Msg("created user for new apple subject")
	return user, nil
}

// backfillProfile fills email and display name left empty by earlier logins.
// Apple only sends those claims the first time, so a hint arriving later is
// the last chance to capture them.
func (s *Service) backfillProfile(ctx context.Context, user *users.User, ident *identity.Identity, hints ProfileHints) (*users.User, error) {
	changed := false
	if user.Email == "" && ident.Email != "" {
		user.Email = ident.Email
		changed = true
	}
	if user.DisplayName == "" && hints.DisplayName != "" {
		user.DisplayName = hints.DisplayName
		changed = true
	}
	if !changed {
		return user, nil
	}

	user.UpdatedAt = s.nowTime()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return nil, internalFailure("login update user", err)
	}
	return user, nil
}

func (s *Service) openSession(ctx context.Context, user *users.User) (*Session, error) {
	accessToken, err := s.issuer.Issue(user)
	if err != nil {
		return nil, internalFailure("login issue access token", err)
	}

	refreshPlaintext, _, err := s.refresh.Issue(ctx, user.ID)
	if err != nil {
		return nil, internalFailure("login issue refresh token", err)
	}

	return &Session{
		User:         user.Profile(),
		AccessToken:  accessToken,
		RefreshToken: refreshPlaintext,
		ExpiresIn:    int(s.issuer.TTL().Seconds()),
	}, nil
}

// notifyReuse fires the out-of-band signal without blocking the rotation
// path. Delivery failure is logged and otherwise ignored.
func (s *Service) notifyReuse(userID, familyID string) {
	notify := s.notify
	at := s.nowTime()
	go func() {
		if err := notify.NotifyReuse(context.Background(), userID, familyID, at); err != nil {
			log.Warn().Err(err).Msg("reuse notification failed")
		}
	}()
}

// internalFailure logs the cause server-side and returns an error that
// matches InternalErr. Token values are never part of the log context.
func internalFailure(op string, err error) error {
	log.Error().Err(err).Str("op", op).Msg("auth internal failure")
	return fmt.Errorf("%w: %s", InternalErr, op)
}
