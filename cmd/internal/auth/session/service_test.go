package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tdp/cmd/identity"
	"tdp/cmd/internal/events"
	"tdp/cmd/security/password"
)

type fixture struct {
	svc    *Service
	users  *identity.MemoryStore
	tokens *MemoryStore
	events *events.Capture
	now    time.Time
}

type staticPerms map[string][]string

func (p staticPerms) PermissionsForUser(_ context.Context, userID string) ([]string, error) {
	return p[userID], nil
}

type countingRecorder struct{ n atomic.Int32 }

func (r *countingRecorder) ObserveAuth(string, string) { r.n.Add(1) }

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		users:  identity.NewMemoryStore(),
		tokens: NewMemoryStore(),
		events: &events.Capture{},
		now:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	cfg := DefaultConfig()
	all := append([]Option{
		WithEvents(f.events),
		WithClock(func() time.Time { return f.now }),
	}, opts...)

	svc, err := NewService(cfg, f.users, f.tokens, testAccessManager(t, cfg), fastHasher(), all...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) register(t *testing.T, email, pw string) string {
	t.Helper()
	id, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return id
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "a@x.com", "Secret123!")
	if len(id) != 26 {
		t.Fatalf("expected ulid, got %q", id)
	}

	_, err := f.svc.Register(ctx, RegisterInput{Email: " A@X.com ", Password: "Another123!"})
	var ce identity.ConflictError
	if !errors.As(err, &ce) || ce.Field != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}
}

func TestService_Register_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	long := string(make([]rune, 101))
	cases := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"missing email", RegisterInput{Password: "Secret123!"}, "email"},
		{"bad email", RegisterInput{Email: "not-an-email", Password: "Secret123!"}, "email"},
		{"short password", RegisterInput{Email: "a@x.com", Password: "short"}, "password"},
		{"long display name", RegisterInput{Email: "a@x.com", Password: "Secret123!", DisplayName: &long}, "displayName"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tc.in)
			var ve identity.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
		})
	}
}

func TestService_Login_IssuesTokens(t *testing.T) {
	perms := staticPerms{}
	f := newFixture(t, WithPermissions(perms))
	ctx := context.Background()

	id := f.register(t, "a@x.com", "Secret123!")
	perms[id] = []string{"beta_access"}

	out, err := f.svc.Login(ctx, LoginInput{Email: "A@x.com", Password: "Secret123!", DeviceInfo: strptr("cli")})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		t.Fatalf("missing tokens: %+v", out)
	}
	if out.ExpiresIn != 900 {
		t.Fatalf("expiresIn = %d", out.ExpiresIn)
	}
	if !out.RefreshExpiresAt.Equal(f.now.Add(14 * 24 * time.Hour)) {
		t.Fatalf("refresh exp = %v", out.RefreshExpiresAt)
	}

	p, err := f.svc.Authenticate(out.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.UserID != id || p.Email != "a@x.com" || len(p.Permissions) != 1 || p.Permissions[0] != "beta_access" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestService_Login_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "a@x.com", "Secret123!")
	inactive := f.register(t, "b@x.com", "Secret123!")
	if err := f.users.SetActive(ctx, inactive, false, f.now); err != nil {
		t.Fatal(err)
	}

	attempts := []LoginInput{
		{Email: "nobody@x.com", Password: "Secret123!"},
		{Email: "a@x.com", Password: "wrong-password"},
		{Email: "b@x.com", Password: "Secret123!"},
		{Email: "", Password: ""},
	}

	var first error
	for _, in := range attempts {
		_, err := f.svc.Login(ctx, in)
		if !identity.IsUnauthenticated(err) {
			t.Fatalf("%s: expected authentication error, got %v", in.Email, err)
		}
		if first == nil {
			first = err
			continue
		}
		if err.Error() != first.Error() {
			t.Fatalf("error text differs: %q vs %q", err, first)
		}
	}
}

func TestService_RefreshFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "a@x.com", "Secret123!")
	login, err := f.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.now = f.now.Add(time.Minute)
	next, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == login.RefreshToken || next.AccessToken == "" {
		t.Fatalf("refresh must mint a new pair")
	}

	// Reusing the consumed token fails.
	if _, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: login.RefreshToken}); !identity.IsUnauthenticated(err) {
		t.Fatalf("expected authentication error on reuse, got %v", err)
	}

	// The successor still works.
	if _, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: next.RefreshToken}); err != nil {
		t.Fatalf("successor refresh: %v", err)
	}
}

func TestService_Refresh_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "a@x.com", "Secret123!")
	login, err := f.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	for _, tok := range []string{"", "garbage", string(make([]byte, maxRefreshTokenLen+1))} {
		if _, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: tok}); !identity.IsUnauthenticated(err) {
			t.Fatalf("expected authentication error, got %v", err)
		}
	}

	// Deactivated users cannot refresh.
	if err := f.users.SetActive(ctx, id, false, f.now); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: login.RefreshToken}); !identity.IsUnauthenticated(err) {
		t.Fatalf("expected authentication error for inactive user, got %v", err)
	}
}

func TestService_Refresh_ExpiredAtBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "a@x.com", "Secret123!")
	login, err := f.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.now = login.RefreshExpiresAt
	if _, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: login.RefreshToken}); !identity.IsUnauthenticated(err) {
		t.Fatalf("expected authentication error at expiry, got %v", err)
	}
}

func TestService_Logout_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "a@x.com", "Secret123!")
	login, err := f.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := f.svc.Authenticate(login.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.svc.Logout(ctx, p, login.RefreshToken); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
	}
	if err := f.svc.Logout(ctx, p, "never-issued"); err != nil {
		t.Fatalf("logout with unknown token: %v", err)
	}

	if _, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: login.RefreshToken}); !identity.IsUnauthenticated(err) {
		t.Fatalf("revoked token must not refresh, got %v", err)
	}
}

func TestService_PublishesEvents(t *testing.T) {
	rec := &countingRecorder{}
	f := newFixture(t, WithRecorder(rec))
	ctx := context.Background()

	f.register(t, "a@x.com", "Secret123!")
	login, err := f.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!"})
	if err != nil {
		t.Fatal(err)
	}
	next, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatal(err)
	}
	p, _ := f.svc.Authenticate(next.AccessToken)
	_ = f.svc.Logout(ctx, p, next.RefreshToken)

	want := []string{events.UserRegistered, events.AuthLogin, events.AuthRefresh, events.AuthLogout}
	got := f.events.Types()
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v", got)
		}
	}
	if rec.n.Load() != 4 {
		t.Fatalf("recorder calls = %d", rec.n.Load())
	}
}

func TestService_Login_UpgradesLegacyParameters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := fastHasher()
	old.Params.Iterations = 2
	rec, err := old.Hash("Secret123!")
	if err != nil {
		t.Fatal(err)
	}
	u, err := f.users.CreateUser(ctx, identity.CreateUserInput{Email: "old@x.com", PasswordHash: rec})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Login(ctx, LoginInput{Email: "old@x.com", Password: "Secret123!"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	ua, err := f.users.GetUserAuthByEmail(ctx, "old@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if ua.PasswordHash == rec || fastHasher().NeedsRehash(ua.PasswordHash) {
		t.Fatalf("hash for %s was not upgraded", u.ID)
	}
}

// flakyUsers fails the first read with a retryable storage error.
type flakyUsers struct {
	*identity.MemoryStore
	reads  atomic.Int32
	writes atomic.Int32
}

func (f *flakyUsers) GetUserAuthByEmail(ctx context.Context, email string) (identity.UserAuth, error) {
	if f.reads.Add(1) == 1 {
		return identity.UserAuth{}, identity.StorageError{Op: "test", Retryable: true, Err: errors.New("lock timeout")}
	}
	return f.MemoryStore.GetUserAuthByEmail(ctx, email)
}

func (f *flakyUsers) CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error) {
	f.writes.Add(1)
	return identity.User{}, identity.StorageError{Op: "test", Retryable: true, Err: errors.New("lock timeout")}
}

func TestService_RetriesReadsOnceButNotWrites(t *testing.T) {
	users := &flakyUsers{MemoryStore: identity.NewMemoryStore()}
	h := fastHasher()
	rec, err := h.Hash("Secret123!")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := users.MemoryStore.CreateUser(context.Background(), identity.CreateUserInput{Email: "a@x.com", PasswordHash: rec}); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	svc, err := NewService(cfg, users, NewMemoryStore(), testAccessManager(t, cfg), h)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: "Secret123!"}); err != nil {
		t.Fatalf("login should succeed after one retry: %v", err)
	}
	if users.reads.Load() != 2 {
		t.Fatalf("reads = %d", users.reads.Load())
	}

	_, err = svc.Register(context.Background(), RegisterInput{Email: "b@x.com", Password: "Secret123!"})
	if !identity.IsRetryable(err) {
		t.Fatalf("expected retryable storage error, got %v", err)
	}
	if users.writes.Load() != 1 {
		t.Fatalf("writes must not be retried, got %d", users.writes.Load())
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFrom(ctx); ok {
		t.Fatalf("empty context must not carry a principal")
	}
	ctx = WithPrincipal(ctx, Principal{UserID: "u1"})
	p, ok := PrincipalFrom(ctx)
	if !ok || p.UserID != "u1" {
		t.Fatalf("principal = %+v %v", p, ok)
	}
}

func TestService_SetUserActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "a@x.com", "Secret123!")
	login, err := f.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!"})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.SetUserActive(ctx, id, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: login.RefreshToken}); !identity.IsUnauthenticated(err) {
		t.Fatalf("refresh after deactivate: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!"}); !identity.IsUnauthenticated(err) {
		t.Fatalf("login after deactivate: %v", err)
	}

	if err := f.svc.SetUserActive(ctx, id, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!"}); err != nil {
		t.Fatalf("login after activate: %v", err)
	}

	got := f.events.Types()
	if !contains(got, events.UserDeactivated) || !contains(got, events.UserActivated) {
		t.Fatalf("events = %v", got)
	}

	if err := f.svc.SetUserActive(ctx, "01J00000000000000000000000", false); !identity.IsNotFound(err) {
		t.Fatalf("unknown user: %v", err)
	}
	if err := f.svc.SetUserActive(ctx, " ", false); !identity.IsInvalidInput(err) {
		t.Fatalf("blank id: %v", err)
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

type switchablePerms struct{ down atomic.Bool }

func (p *switchablePerms) PermissionsForUser(context.Context, string) ([]string, error) {
	if p.down.Load() {
		return nil, identity.StorageError{Op: "test", Err: errors.New("db down")}
	}
	return []string{"beta_access"}, nil
}

func TestService_Refresh_PermissionOutageKeepsChain(t *testing.T) {
	perms := &switchablePerms{}
	f := newFixture(t, WithPermissions(perms))
	ctx := context.Background()

	f.register(t, "a@x.com", "Secret123!")
	login, err := f.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!"})
	if err != nil {
		t.Fatal(err)
	}

	perms.down.Store(true)
	if _, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: login.RefreshToken}); err == nil || identity.IsUnauthenticated(err) {
		t.Fatalf("expected storage error during outage, got %v", err)
	}

	perms.down.Store(false)
	next, err := f.svc.Refresh(ctx, RefreshInput{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("refresh token must survive a failed attempt: %v", err)
	}
	if next.RefreshToken == "" || next.RefreshToken == login.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}
}

type failingHasher struct {
	password.Config
	fail atomic.Bool
}

func (h *failingHasher) Hash(pw string) (string, error) {
	if h.fail.Load() {
		return "", errors.New("salt: entropy unavailable")
	}
	return h.Config.Hash(pw)
}

func TestService_Register_HashFailureIsNotValidation(t *testing.T) {
	h := &failingHasher{Config: fastHasher()}
	cfg := DefaultConfig()
	svc, err := NewService(cfg, identity.NewMemoryStore(), NewMemoryStore(), testAccessManager(t, cfg), h)
	if err != nil {
		t.Fatal(err)
	}
	h.fail.Store(true)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "Secret123!"})
	if err == nil || identity.IsInvalidInput(err) {
		t.Fatalf("expected an internal error, got %v", err)
	}

	h.fail.Store(false)
	_, err = svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "x"})
	if !identity.IsInvalidInput(err) {
		t.Fatalf("policy rejection must stay a validation error, got %v", err)
	}
}
