package account_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/infrastructure/memory"
)

/*
Test doubles for the collaborators that are not stores
*/

type plainHasher struct{ fail error }

func (h plainHasher) Hash(password string) (string, error) {
	if h.fail != nil {
		return "", domain.ErrHashFailed(h.fail)
	}
	return "hashed:" + password, nil
}

func (h plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

type stubSigner struct{}

func (stubSigner) SignAccessToken(userID, email, sessionID string, roles []string, ttl time.Duration) (string, error) {
	return "signed:" + userID + ":" + sessionID + ":" + strings.Join(roles, ","), nil
}

type auditLog struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *auditLog) Record(evt domain.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, evt)
}

func (a *auditLog) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action+"/"+string(e.Outcome))
	}
	return out
}

func (a *auditLog) count(action string, outcome domain.AuditOutcome) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Action == action && e.Outcome == outcome {
			n++
		}
	}
	return n
}

func (a *auditLog) last(action string) (domain.AuditEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.events) - 1; i >= 0; i-- {
		if a.events[i].Action == action {
			return a.events[i], true
		}
	}
	return domain.AuditEvent{}, false
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyUsers fails Update when updateErr is set and FindByEmail when findErr is.
type flakyUsers struct {
	*memory.UserRepo
	updateErr error
	findErr   error
}

func (f *flakyUsers) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if f.findErr != nil {
		return domain.User{}, f.findErr
	}
	return f.UserRepo.FindByEmail(ctx, email)
}

func (f *flakyUsers) Update(ctx context.Context, u domain.User) (domain.User, error) {
	if f.updateErr != nil {
		return domain.User{}, f.updateErr
	}
	return f.UserRepo.Update(ctx, u)
}

// flakyTokens fails Save when saveErr is set.
type flakyTokens struct {
	*memory.TokenRepo
	saveErr error
}

func (f *flakyTokens) Save(ctx context.Context, t domain.Token) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.TokenRepo.Save(ctx, t)
}

/*
Harness
*/

type harness struct {
	store    *memory.Store
	users    *flakyUsers
	tokens   *flakyTokens
	clock    *testClock
	audit    *auditLog
	mailer   *memory.Dispatcher
	sessions *memory.SessionStore

	lockout *account.LockoutEngine
	tm      *account.TokenManager
	svc     *account.Service
}

type harnessOpt func(*harnessConfig)

type harnessConfig struct {
	svc     account.Config
	lockout account.LockoutConfig
	tokens  account.TokenConfig
	noSeed  bool
	hasher  plainHasher
}

func withAutoEnable() harnessOpt  { return func(c *harnessConfig) { c.svc.AutoEnable = true } }
func withHardDelete() harnessOpt  { return func(c *harnessConfig) { c.svc.HardDelete = true } }
func withoutRoles() harnessOpt    { return func(c *harnessConfig) { c.noSeed = true } }
func withThreshold(n int) harnessOpt {
	return func(c *harnessConfig) { c.lockout.Threshold = n }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()

	cfg := harnessConfig{
		svc: account.Config{
			VerifyEmailBaseURL:   "https://app.test/registration/confirm?token=",
			PasswordResetBaseURL: "https://app.test/password/reset?token=",
		},
		lockout: account.LockoutConfig{Threshold: 10, Duration: time.Minute},
		tokens:  account.TokenConfig{VerificationTTL: 24 * time.Hour, PasswordResetTTL: 30 * time.Minute},
	}
	for _, o := range opts {
		o(&cfg)
	}

	store := memory.NewStore()
	if !cfg.noSeed {
		store.SeedRoles()
	}

	h := &harness{
		store:    store,
		users:    &flakyUsers{UserRepo: store.Users()},
		tokens:   &flakyTokens{TokenRepo: store.Tokens()},
		clock:    newTestClock(),
		audit:    &auditLog{},
		mailer:   memory.NewDispatcher(),
		sessions: memory.NewSessionStore(),
	}

	h.lockout = account.NewLockoutEngine(store, h.users, h.audit, h.clock.Now, cfg.lockout)
	h.tm = account.NewTokenManager(store, h.tokens, h.clock.Now, cfg.tokens)
	h.svc = account.NewService(account.Deps{
		Tx:       store,
		Users:    h.users,
		Roles:    store.Roles(),
		Tokens:   h.tm,
		Lockout:  h.lockout,
		Hasher:   cfg.hasher,
		Signer:   stubSigner{},
		Sessions: h.sessions,
		Mailer:   h.mailer,
		Audit:    h.audit,
		Clock:    h.clock.Now,
	}, cfg.svc)
	return h
}

// seedUser inserts an enabled user with the default role directly in the store.
func (h *harness) seedUser(t *testing.T, email, password string) domain.User {
	t.Helper()
	ctx := context.Background()
	u, err := h.store.Users().Create(ctx, domain.User{
		ID:           "id-" + email,
		Email:        email,
		PasswordHash: "hashed:" + password,
		Enabled:      true,
		CreatedAt:    h.clock.Now(),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := h.store.Roles().AssignToUser(ctx, u.ID, "role-user"); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	return u
}

func (h *harness) user(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := h.store.Users().FindByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("find user %s: %v", email, err)
	}
	return u
}

// tokenFromURL extracts the token appended to an emailed link.
func tokenFromURL(url string) string {
	i := strings.LastIndex(url, "token=")
	if i < 0 {
		return ""
	}
	return url[i+len("token="):]
}

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error code=%q, got nil", code)
	}
	if !domain.Is(err, code) {
		t.Fatalf("expected code=%q, got err=%v", code, err)
	}
}
