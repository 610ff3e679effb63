package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"tdp/cmd/identity"
	"tdp/cmd/internal/events"
	"tdp/cmd/security/password"
	"tdp/cmd/security/token"

	"github.com/go-playground/validator/v10"
)

// PasswordHasher is the credential contract the service needs. password.Config satisfies it.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(encoded, pw string) bool
	NeedsRehash(encoded string) bool
}

// PermissionSource resolves the permission claim for a user at issuance time.
type PermissionSource interface {
	PermissionsForUser(ctx context.Context, userID string) ([]string, error)
}

// Recorder receives auth outcomes for metrics.
type Recorder interface {
	ObserveAuth(op, outcome string)
}

// Service implements register, login, refresh and logout.
//
// It composes the password hasher, the access-token manager and the refresh-token
// store. Every credential failure surfaces as the same identity.AuthenticationError.
type Service struct {
	cfg    Config
	users  identity.Store
	tokens Store
	access AccessTokenManager
	hasher PasswordHasher

	perms    PermissionSource
	events   events.Publisher
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time

	validate  *validator.Validate
	dummyHash string
}

// Option configures optional collaborators.
type Option func(*Service)

// WithPermissions sets the permission source for the access-token claim.
func WithPermissions(p PermissionSource) Option { return func(s *Service) { s.perms = p } }

// WithEvents sets the domain event publisher.
func WithEvents(p events.Publisher) Option { return func(s *Service) { s.events = p } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService constructs a Service.
//
// A dummy password record is derived once so that logins for unknown users spend
// the same hashing work as logins with a wrong password.
func NewService(cfg Config, users identity.Store, tokens Store, access AccessTokenManager, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil || tokens == nil || access == nil || hasher == nil {
		return nil, fmt.Errorf("%w: missing dependency", ErrConfig)
	}

	s := &Service{
		cfg:      cfg,
		users:    users,
		tokens:   tokens,
		access:   access,
		hasher:   hasher,
		events:   events.Noop{},
		recorder: noopRecorder{},
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	dummy, err := hasher.Hash("dummy-password-for-timing-equalization")
	if err != nil {
		return nil, fmt.Errorf("session: dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// RegisterInput is a registration request.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName *string
}

// LoginInput is a password login request.
type LoginInput struct {
	Email      string
	Password   string
	DeviceInfo *string
}

// RefreshInput is a refresh-token exchange request.
type RefreshInput struct {
	RefreshToken string
	DeviceInfo   *string
}

// Tokens is the credential pair returned by Login and Refresh.
type Tokens struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64 // seconds until AccessExpiresAt
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Register creates an active user and returns its id.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	const op = "session.Register"

	email := identity.NormalizeEmail(in.Email)
	if email == "" {
		return "", identity.ValidationError{Op: op, Field: "email", Msg: "required"}
	}
	if err := s.validate.Var(email, "email,max=254"); err != nil {
		return "", identity.ValidationError{Op: op, Field: "email", Msg: "invalid email"}
	}

	name := identity.NormalizeDisplayName(in.DisplayName)
	if !identity.ValidDisplayName(name) {
		return "", identity.ValidationError{Op: op, Field: "displayName", Msg: "too long"}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if msg, ok := passwordPolicyMessage(err); ok {
			return "", identity.ValidationError{Op: op, Field: "password", Msg: msg}
		}
		s.recorder.ObserveAuth("register", "error")
		return "", fmt.Errorf("%s: hash password: %w", op, err)
	}

	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  name,
		Now:          s.now(),
	})
	if err != nil {
		s.recorder.ObserveAuth("register", outcomeOf(err))
		return "", err
	}

	s.recorder.ObserveAuth("register", "success")
	s.publish(ctx, events.UserRegistered, u.ID)
	s.log.InfoContext(ctx, "auth.register.ok", "user_id", u.ID)
	return u.ID, nil
}

// Login verifies a password and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, in LoginInput) (Tokens, error) {
	const op = "session.Login"

	email := identity.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" || utf8.RuneCountInString(in.Password) > 1024 {
		// Still spend the hashing work.
		_ = s.hasher.Verify(s.dummyHash, in.Password)
		s.recorder.ObserveAuth("login", "failure")
		return Tokens{}, identity.Unauthenticated(op)
	}

	ua, err := retryRead(ctx, func() (identity.UserAuth, error) {
		return s.users.GetUserAuthByEmail(ctx, email)
	})
	if err != nil && !identity.IsNotFound(err) {
		s.recorder.ObserveAuth("login", "error")
		return Tokens{}, err
	}

	found := err == nil && ua.User.IsActive
	record := s.dummyHash
	if found {
		record = ua.PasswordHash
	}
	ok := s.hasher.Verify(record, in.Password)
	if !found || !ok {
		s.recorder.ObserveAuth("login", "failure")
		s.log.InfoContext(ctx, "auth.login.fail")
		return Tokens{}, identity.Unauthenticated(op)
	}

	s.upgradeHash(ctx, ua, in.Password)

	now := s.now()
	out, err := s.issue(ctx, ua.User, now)
	if err != nil {
		return Tokens{}, err
	}

	plain, hash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Tokens{}, err
	}
	rt, err := s.tokens.Create(ctx, RefreshToken{
		UserID:     ua.User.ID,
		TokenHash:  hash,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.RefreshTTL),
		DeviceInfo: in.DeviceInfo,
	})
	if err != nil {
		s.recorder.ObserveAuth("login", "error")
		return Tokens{}, err
	}
	out.RefreshToken = plain
	out.RefreshExpiresAt = rt.ExpiresAt

	s.recorder.ObserveAuth("login", "success")
	s.publish(ctx, events.AuthLogin, ua.User.ID)
	s.log.InfoContext(ctx, "auth.login.ok", "user_id", ua.User.ID)
	return out, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is consumed.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (Tokens, error) {
	const op = "session.Refresh"

	presented := strings.TrimSpace(in.RefreshToken)
	if presented == "" || len(presented) > maxRefreshTokenLen {
		s.recorder.ObserveAuth("refresh", "failure")
		return Tokens{}, identity.Unauthenticated(op)
	}
	oldHash := token.HashRefreshTokenHex(presented)
	now := s.now()

	cur, err := retryRead(ctx, func() (RefreshToken, error) {
		return s.tokens.Validate(ctx, oldHash, now)
	})
	if err != nil {
		s.recorder.ObserveAuth("refresh", outcomeOf(err))
		return Tokens{}, err
	}

	u, err := retryRead(ctx, func() (identity.User, error) {
		return s.users.GetUserByID(ctx, cur.UserID)
	})
	if err != nil && !identity.IsNotFound(err) {
		s.recorder.ObserveAuth("refresh", "error")
		return Tokens{}, err
	}
	if err != nil || !u.IsActive {
		s.recorder.ObserveAuth("refresh", "failure")
		return Tokens{}, identity.Unauthenticated(op)
	}

	// Everything fallible happens before the rotation commits; afterwards the
	// old token is gone and only the new pair can be handed back.
	out, err := s.issue(ctx, u, now)
	if err != nil {
		s.recorder.ObserveAuth("refresh", "error")
		return Tokens{}, err
	}
	plain, newHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Tokens{}, err
	}

	// Not retried: a replayed rotation must lose, never double-issue.
	next, err := s.tokens.Rotate(ctx, oldHash, RefreshToken{
		TokenHash:  newHash,
		ExpiresAt:  now.Add(s.cfg.RefreshTTL),
		DeviceInfo: in.DeviceInfo,
	}, now)
	if err != nil {
		s.recorder.ObserveAuth("refresh", outcomeOf(err))
		if identity.IsUnauthenticated(err) {
			s.log.WarnContext(ctx, "auth.refresh.rejected", "user_id", cur.UserID)
		}
		return Tokens{}, err
	}

	out.RefreshToken = plain
	out.RefreshExpiresAt = next.ExpiresAt

	s.recorder.ObserveAuth("refresh", "success")
	s.publish(ctx, events.AuthRefresh, u.ID)
	return out, nil
}

// Logout revokes the presented refresh token. It reports success for any authenticated caller.
func (s *Service) Logout(ctx context.Context, p Principal, refreshToken string) error {
	presented := strings.TrimSpace(refreshToken)
	if presented != "" && len(presented) <= maxRefreshTokenLen {
		if err := s.tokens.Revoke(ctx, token.HashRefreshTokenHex(presented), s.now()); err != nil {
			s.log.WarnContext(ctx, "auth.logout.revoke_failed", "user_id", p.UserID, "err", err)
		}
	}

	s.recorder.ObserveAuth("logout", "success")
	s.publish(ctx, events.AuthLogout, p.UserID)
	return nil
}

// SetUserActive enables or disables a user account. Disabling also revokes every
// refresh token of the user so no session outlives the account; outstanding access
// tokens still expire on their own.
func (s *Service) SetUserActive(ctx context.Context, userID string, active bool) error {
	const op = "session.SetUserActive"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return identity.ValidationError{Op: op, Field: "userId", Msg: "required"}
	}

	now := s.now()
	if err := s.users.SetActive(ctx, userID, active, now); err != nil {
		return err
	}

	typ := events.UserActivated
	if !active {
		if err := s.tokens.RevokeAllForUser(ctx, userID, now); err != nil {
			return err
		}
		typ = events.UserDeactivated
	}

	s.log.InfoContext(ctx, "auth.user.active_changed", "user_id", userID, "active", active)
	s.publish(ctx, typ, userID)
	return nil
}

// Authenticate verifies a bearer access token.
func (s *Service) Authenticate(accessToken string) (Principal, error) {
	return s.access.Verify(strings.TrimSpace(accessToken), s.now())
}

// issue builds the access half of a token pair.
func (s *Service) issue(ctx context.Context, u identity.User, now time.Time) (Tokens, error) {
	var perms []string
	if s.perms != nil {
		p, err := retryRead(ctx, func() ([]string, error) {
			return s.perms.PermissionsForUser(ctx, u.ID)
		})
		if err != nil {
			return Tokens{}, err
		}
		perms = p
	}

	at, exp, err := s.access.Issue(Subject{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Permissions: perms,
	}, now)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:     at,
		ExpiresIn:       int64(exp.Sub(now).Round(time.Second) / time.Second),
		AccessExpiresAt: exp,
	}, nil
}

// upgradeHash re-derives the stored record when parameters changed. Failures only log.
func (s *Service) upgradeHash(ctx context.Context, ua identity.UserAuth, pw string) {
	if !s.hasher.NeedsRehash(ua.PasswordHash) {
		return
	}
	h, err := s.hasher.Hash(pw)
	if err != nil {
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, ua.User.ID, h, s.now()); err != nil {
		s.log.WarnContext(ctx, "auth.login.rehash_failed", "user_id", ua.User.ID, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, typ, userID string) {
	ev := events.Event{Type: typ, UserID: userID, OccurredAt: s.now()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "events.publish.fail", "type", typ, "err", err)
	}
}

// retryRead runs a read-only lookup, retrying once on a retryable storage error.
func retryRead[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil || !identity.IsRetryable(err) || ctx.Err() != nil {
		return v, err
	}
	return fn()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case identity.IsUnauthenticated(err):
		return "failure"
	case identity.IsConflict(err):
		return "conflict"
	case identity.IsInvalidInput(err):
		return "invalid"
	default:
		return "error"
	}
}

// passwordPolicyMessage maps policy rejections to a field message. Anything
// else (entropy, KDF failures) is not the caller's fault.
func passwordPolicyMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "too short", true
	case errors.Is(err, password.ErrPasswordTooLong):
		return "too long", true
	case errors.Is(err, password.ErrWeakPassword):
		return "too weak", true
	case errors.Is(err, password.ErrPasswordInvalid):
		return "invalid characters", true
	default:
		return "", false
	}
}

type noopRecorder struct{}

func (noopRecorder) ObserveAuth(string, string) {}
