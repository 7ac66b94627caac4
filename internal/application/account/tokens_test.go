package account_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/domain"
)

func TestTokens_ValidateNeverIssued(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, tok := range []string{"", "nope"} {
		st, _, err := h.tm.Validate(context.Background(), tok, domain.TokenVerification)
		require.NoError(t, err)
		assert.Equal(t, account.TokenInvalid, st)
	}
}

func TestTokens_IssueValidateConsumeIsOneShot(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	tok, err := h.tm.Issue(ctx, "u1", domain.TokenVerification)
	require.NoError(t, err)
	assert.Len(t, tok.Token, 43) // 32 bytes, base64url without padding
	assert.Equal(t, h.clock.Now().Add(24*time.Hour), tok.ExpiresAt)

	st, got, err := h.tm.Validate(ctx, tok.Token, domain.TokenVerification)
	require.NoError(t, err)
	assert.Equal(t, account.TokenValid, st)
	assert.Equal(t, "u1", got.UserID)

	// validate is pure
	st, _, err = h.tm.Validate(ctx, tok.Token, domain.TokenVerification)
	require.NoError(t, err)
	assert.Equal(t, account.TokenValid, st)

	require.NoError(t, h.tm.Consume(ctx, tok.Token, domain.TokenVerification))

	st, _, err = h.tm.Validate(ctx, tok.Token, domain.TokenVerification)
	require.NoError(t, err)
	assert.Equal(t, account.TokenInvalid, st)

	requireErrCode(t, h.tm.Consume(ctx, tok.Token, domain.TokenVerification), "token_invalid")
}

func TestTokens_KindsAreIndependent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	tok, err := h.tm.Issue(ctx, "u1", domain.TokenPasswordReset)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(30*time.Minute), tok.ExpiresAt)

	st, _, err := h.tm.Validate(ctx, tok.Token, domain.TokenVerification)
	require.NoError(t, err)
	assert.Equal(t, account.TokenInvalid, st)
}

func TestTokens_ExpiredAtExactExpiry(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	tok, err := h.tm.Issue(ctx, "u1", domain.TokenPasswordReset)
	require.NoError(t, err)

	h.clock.Advance(30*time.Minute - time.Nanosecond)
	st, _, err := h.tm.Validate(ctx, tok.Token, domain.TokenPasswordReset)
	require.NoError(t, err)
	assert.Equal(t, account.TokenValid, st)

	h.clock.Advance(time.Nanosecond)
	st, _, err = h.tm.Validate(ctx, tok.Token, domain.TokenPasswordReset)
	require.NoError(t, err)
	assert.Equal(t, account.TokenExpired, st)
	requireErrCode(t, st.Err(), "token_expired")
}

func TestTokens_ReissueSupersedesPrevious(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.tm.Issue(ctx, "u1", domain.TokenVerification)
	require.NoError(t, err)
	second, err := h.tm.Issue(ctx, "u1", domain.TokenVerification)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	st, _, err := h.tm.Validate(ctx, first.Token, domain.TokenVerification)
	require.NoError(t, err)
	assert.Equal(t, account.TokenInvalid, st)

	st, _, err = h.tm.Validate(ctx, second.Token, domain.TokenVerification)
	require.NoError(t, err)
	assert.Equal(t, account.TokenValid, st)
}

func TestTokens_IssueRejectsBadInput(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.tm.Issue(context.Background(), "", domain.TokenVerification)
	requireErrCode(t, err, "missing_field")
	_, err = h.tm.Issue(context.Background(), "u1", domain.TokenKind("magic"))
	requireErrCode(t, err, "invalid_field")
}

func TestTokens_PurgeExpiredIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	oldVerify, err := h.tm.Issue(ctx, "u1", domain.TokenVerification)
	require.NoError(t, err)
	oldReset, err := h.tm.Issue(ctx, "u1", domain.TokenPasswordReset)
	require.NoError(t, err)

	h.clock.Advance(25 * time.Hour)
	fresh, err := h.tm.Issue(ctx, "u2", domain.TokenVerification)
	require.NoError(t, err)

	now := h.clock.Now()
	res, err := h.tm.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res[domain.TokenVerification])
	assert.EqualValues(t, 1, res[domain.TokenPasswordReset])
	assert.EqualValues(t, 2, res.Total())

	res, err = h.tm.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Total())

	for _, tk := range []domain.Token{oldVerify, oldReset} {
		st, _, err := h.tm.Validate(ctx, tk.Token, tk.Kind)
		require.NoError(t, err)
		assert.Equal(t, account.TokenInvalid, st)
	}
	st, _, err := h.tm.Validate(ctx, fresh.Token, domain.TokenVerification)
	require.NoError(t, err)
	assert.Equal(t, account.TokenValid, st)
}

func TestTokens_ConsumeRacingPurgeHasOneWinner(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	tok, err := h.tm.Issue(ctx, "u1", domain.TokenVerification)
	require.NoError(t, err)
	h.clock.Advance(48 * time.Hour)

	var (
		wg       sync.WaitGroup
		consumed atomic.Int32
		purged   atomic.Int64
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if h.tm.Consume(ctx, tok.Token, domain.TokenVerification) == nil {
			consumed.Add(1)
		}
	}()
	go func() {
		defer wg.Done()
		res, err := h.tm.PurgeExpired(ctx, h.clock.Now())
		if err == nil {
			purged.Add(res.Total())
		}
	}()
	wg.Wait()

	assert.EqualValues(t, 1, int64(consumed.Load())+purged.Load())
}

type countingPurger struct {
	calls atomic.Int32
	last  atomic.Value
}

func (p *countingPurger) PurgeExpired(ctx context.Context, now time.Time) (account.PurgeResult, error) {
	p.calls.Add(1)
	p.last.Store(now)
	return account.PurgeResult{domain.TokenVerification: 1}, nil
}

func TestSweeper_RunsImmediatelyThenOnTicks(t *testing.T) {
	t.Parallel()
	p := &countingPurger{}
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sw := account.NewSweeper(p, 10*time.Millisecond, func() time.Time { return fixed })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
	assert.Equal(t, fixed, p.last.Load())
}

func TestSweeper_PurgesThroughTokenManager(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	tok, err := h.tm.Issue(ctx, "u1", domain.TokenPasswordReset)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	account.NewSweeper(h.tm, time.Hour, h.clock.Now).Sweep(ctx)

	_, err = h.store.Tokens().FindByToken(ctx, domain.TokenPasswordReset, tok.Token)
	requireErrCode(t, err, "token_invalid")
}
