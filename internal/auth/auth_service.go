// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/todosite/todosite/pkg/errutil"
)

const tracerName = "github.com/todosite/todosite/internal/auth"

// Service provides registration, authentication and session operations.
type Service struct {
	credentials CredentialRepository
	transactor  Transactor
	sessions    SessionRepository
	pool        *HashPool
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
	newID       func() ulid.ULID
	now         func() time.Time
	sessionTTL  time.Duration

	// decoyHash is verified whenever there is no real hash to verify, so
	// every failed authentication does the same hashing work.
	decoyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSessions enables Login, Logout, ValidateSession and session
// revocation on password change.
func WithSessions(sessions SessionRepository) Option {
	return func(s *Service) {
		s.sessions = sessions
	}
}

// WithSessionTTL sets how long new sessions live. The default is
// DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.sessionTTL = ttl
	}
}

// WithIDGenerator overrides how new user IDs are generated.
func WithIDGenerator(fn func() ulid.ULID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The default is
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// NewService creates a Service. The decoy hash is computed here with the
// pool's hasher, so construction costs one password hash.
func NewService(credentials CredentialRepository, transactor Transactor, pool *HashPool, opts ...Option) (*Service, error) {
	if credentials == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential repository is required")
	}
	if transactor == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("transactor is required")
	}
	if pool == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("hash pool is required")
	}

	s := &Service{
		credentials: credentials,
		transactor:  transactor,
		pool:        pool,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		newID:       NewID,
		now:         time.Now,
		sessionTTL:  DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("logger is required")
	}
	if s.newID == nil || s.now == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("id generator and clock are required")
	}
	if s.sessionTTL <= 0 {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").
			With("session_ttl", s.sessionTTL.String()).
			Errorf("session TTL must be positive")
	}

	decoy, err := newDecoyHash(pool.hasher)
	if err != nil {
		return nil, err
	}
	s.decoyHash = decoy

	return s, nil
}

// newDecoyHash hashes random bytes with the hasher's current parameters.
// No password can match it.
func newDecoyHash(hasher PasswordHasher) (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", oops.Code("AUTH_DECOY_FAILED").With("operation", "crypto/rand.Read").Wrap(err)
	}
	defer clear(secret)

	hash, err := hasher.Hash(secret)
	if err != nil {
		return "", oops.Code("AUTH_DECOY_FAILED").With("operation", "hash decoy").Wrap(err)
	}
	return hash, nil
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

// Authenticate verifies a username and password.
//
// Every failure caused by the inputs (malformed username or password,
// unknown user, wrong password) returns ErrInvalidCredentials after exactly
// one password verification.
func (s *Service) Authenticate(ctx context.Context, rawUsername, rawPassword string) (Identity, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	cred, err := s.authenticate(ctx, rawUsername, rawPassword)
	if err != nil {
		span.SetStatus(codes.Error, "authentication failed")
		return Identity{}, err
	}
	return cred.Identity(), nil
}

func (s *Service) authenticate(ctx context.Context, rawUsername, rawPassword string) (*StoredCredential, error) {
	username, userErr := ParseUsername(rawUsername)
	password, passErr := ParsePassword(rawPassword)
	defer password.Zero()

	// Malformed names still cost one lookup so they time like unknown users.
	if userErr != nil {
		username = lookupUsername(rawUsername)
	}

	target := s.decoyHash
	cred, err := s.credentials.FindByUsername(ctx, username)
	switch {
	case err == nil:
		target = cred.PasswordHash
	case errors.Is(err, ErrNotFound):
		cred = nil
	default:
		s.metrics.recordAuthentication(resultError)
		return nil, s.unexpected(ctx, "AUTH_FAILED", "find credential by username", err)
	}

	if userErr != nil || passErr != nil {
		s.verifyDecoy(ctx, []byte(rawPassword))
		s.metrics.recordAuthentication(resultInvalid)
		return nil, invalidCredentials()
	}

	valid, err := s.pool.Verify(ctx, password.Expose(), target)
	if err != nil {
		s.metrics.recordAuthentication(resultError)
		return nil, s.unexpected(ctx, "AUTH_FAILED", "verify password", err)
	}

	if cred == nil || !valid {
		s.metrics.recordAuthentication(resultInvalid)
		return nil, invalidCredentials()
	}

	s.upgradeHash(ctx, cred, password)
	s.metrics.recordAuthentication(resultSuccess)
	return cred, nil
}

// verifyDecoy spends one verification on the decoy hash. The outcome is
// irrelevant.
func (s *Service) verifyDecoy(ctx context.Context, secret []byte) {
	if len(secret) == 0 {
		secret = []byte{0}
	}
	_, _ = s.pool.Verify(ctx, secret, s.decoyHash) //nolint:errcheck // timing only
}

// upgradeHash rehashes the password when the stored hash uses outdated
// parameters. Failures are logged and do not fail the login.
func (s *Service) upgradeHash(ctx context.Context, cred *StoredCredential, password Password) {
	if !s.pool.NeedsUpgrade(cred.PasswordHash) {
		return
	}

	newHash, err := s.pool.Hash(ctx, password.Expose())
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed",
			"user_id", cred.ID.String(),
			"error", err)
		return
	}
	if err := s.credentials.UpdatePasswordHash(ctx, cred.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "storing upgraded password hash failed",
			"user_id", cred.ID.String(),
			"error", err)
		return
	}

	cred.PasswordHash = newHash
	cred.UpdatedAt = s.now()
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", cred.ID.String())
}

// unexpected wraps and logs an infrastructure failure.
func (s *Service) unexpected(ctx context.Context, code, operation string, err error) error {
	wrapped := oops.Code(code).With("operation", operation).Wrap(err)
	errutil.LogErrorContext(ctx, s.logger, operation+" failed", wrapped)
	return wrapped
}

// Login authenticates a user and creates a session.
// Returns the session, plaintext token, and any error.
func (s *Service) Login(ctx context.Context, rawUsername, rawPassword, userAgent, ipAddress string) (*Session, string, error) {
	if s.sessions == nil {
		return nil, "", oops.Code("AUTH_SESSIONS_UNAVAILABLE").Errorf("session store is not configured")
	}

	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer span.End()

	cred, err := s.authenticate(ctx, rawUsername, rawPassword)
	if err != nil {
		span.SetStatus(codes.Error, "authentication failed")
		return nil, "", err
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	now := s.now()
	session, err := NewSession(cred.ID, cred.Username.String(), SessionAuthHash(cred.PasswordHash),
		tokenHash, userAgent, ipAddress, now, now.Add(s.sessionTTL))
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		"user_id", cred.ID.String(),
		"session_id", session.ID.String())

	return session, token, nil
}

// Logout invalidates a session.
func (s *Service) Logout(ctx context.Context, sessionID ulid.ULID) error {
	if s.sessions == nil {
		return oops.Code("AUTH_SESSIONS_UNAVAILABLE").Errorf("session store is not configured")
	}

	err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("session_id", sessionID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return nil
}

// ValidateSession resolves a session token.
//
// The session must exist, be unexpired, and belong to a user whose password
// hash is unchanged since login. Sessions failing the latter two checks are
// deleted. All rejections wrap ErrSessionInvalid.
func (s *Service) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if s.sessions == nil {
		return nil, oops.Code("AUTH_SESSIONS_UNAVAILABLE").Errorf("session store is not configured")
	}
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Wrap(ErrSessionInvalid)
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Wrap(ErrSessionInvalid)
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := s.now()
	if session.IsExpiredAt(now) {
		s.discardSession(ctx, session)
		return nil, oops.Code("SESSION_EXPIRED").Wrap(ErrSessionInvalid)
	}

	cred, err := s.credentials.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.discardSession(ctx, session)
			return nil, oops.Code("SESSION_INVALID").Wrap(ErrSessionInvalid)
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "find session user").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}

	current := SessionAuthHash(cred.PasswordHash)
	if subtle.ConstantTimeCompare([]byte(current), []byte(session.AuthHash)) != 1 {
		s.discardSession(ctx, session)
		return nil, oops.Code("SESSION_REVOKED").Wrap(ErrSessionInvalid)
	}

	_ = s.sessions.UpdateLastSeen(ctx, session.ID, now) //nolint:errcheck // Best effort, validation succeeds regardless
	session.LastSeenAt = now

	return session, nil
}

func (s *Service) discardSession(ctx context.Context, session *Session) {
	if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.WarnContext(ctx, "deleting invalid session failed",
			"session_id", session.ID.String(),
			"error", err)
	}
}

// ChangePassword replaces a user's password after verifying the current
// one, then revokes every session of that user.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, rawCurrent, rawNew string) error {
	ctx, span := s.tracer.Start(ctx, "auth.ChangePassword")
	defer span.End()

	cred, err := s.credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("USER_NOT_FOUND").With("user_id", userID.String()).Wrap(err)
		}
		return s.unexpected(ctx, "PASSWORD_CHANGE_FAILED", "find credential by id", err)
	}

	current, err := ParsePassword(rawCurrent)
	defer current.Zero()
	if err != nil {
		s.verifyDecoy(ctx, []byte(rawCurrent))
		return invalidCredentials()
	}

	valid, err := s.pool.Verify(ctx, current.Expose(), cred.PasswordHash)
	if err != nil {
		return s.unexpected(ctx, "PASSWORD_CHANGE_FAILED", "verify current password", err)
	}
	if !valid {
		return invalidCredentials()
	}

	next, err := ParsePassword(rawNew)
	if err != nil {
		return err
	}
	defer next.Zero()

	newHash, err := s.pool.Hash(ctx, next.Expose())
	if err != nil {
		return s.unexpected(ctx, "PASSWORD_CHANGE_FAILED", "hash new password", err)
	}

	if err := s.credentials.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return s.unexpected(ctx, "PASSWORD_CHANGE_FAILED", "update password hash", err)
	}

	if s.sessions != nil {
		if err := s.sessions.DeleteByUser(ctx, userID); err != nil {
			// Sessions still fail validation because their auth hash is stale.
			s.logger.WarnContext(ctx, "revoking sessions after password change failed",
				"user_id", userID.String(),
				"error", err)
		}
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID.String())
	return nil
}

// RevokeSessions deletes every session belonging to the named user.
func (s *Service) RevokeSessions(ctx context.Context, rawUsername string) error {
	if s.sessions == nil {
		return oops.Code("AUTH_SESSIONS_UNAVAILABLE").Errorf("session store is not configured")
	}

	username, err := ParseUsername(rawUsername)
	if err != nil {
		return err
	}

	cred, err := s.credentials.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("USER_NOT_FOUND").With("username", username.String()).Wrap(err)
		}
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "find credential by username").
			Wrap(err)
	}

	if err := s.sessions.DeleteByUser(ctx, cred.ID); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "delete sessions").
			With("user_id", cred.ID.String()).
			Wrap(err)
	}
	return nil
}
