package audit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/account-service/internal/domain"
)

type collector struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (c *collector) Handle(_ context.Context, evt domain.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func evt(action string, outcome domain.AuditOutcome) domain.AuditEvent {
	return domain.AuditEvent{ID: action, Action: action, Outcome: outcome, Timestamp: time.Unix(0, 0)}
}

func TestEmitter_FansOutToAllSubscribers(t *testing.T) {
	e := NewEmitter(16)
	a, b := &collector{}, &collector{}
	e.Subscribe("a", a)
	e.Subscribe("b", b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	for i := 0; i < 5; i++ {
		e.Record(evt(domain.ActionRegistration, domain.OutcomeSuccess))
	}
	e.Close()

	assert.Equal(t, 5, a.len())
	assert.Equal(t, 5, b.len())
	assert.Zero(t, e.Dropped())
}

func TestEmitter_FailingSubscriberIsIsolated(t *testing.T) {
	e := NewEmitter(8)
	good := &collector{}
	e.Subscribe("panics", SubscriberFunc(func(context.Context, domain.AuditEvent) error {
		panic("boom")
	}))
	e.Subscribe("errors", SubscriberFunc(func(context.Context, domain.AuditEvent) error {
		return errors.New("store down")
	}))
	e.Subscribe("good", good)

	go e.Run(context.Background())
	e.Record(evt(domain.ActionLoginFailure, domain.OutcomeFailure))
	e.Record(evt(domain.ActionLoginSuccess, domain.OutcomeSuccess))
	e.Close()

	assert.Equal(t, 2, good.len())
}

func TestEmitter_RecordNeverBlocks(t *testing.T) {
	e := NewEmitter(2)
	block := make(chan struct{})
	e.Subscribe("slow", SubscriberFunc(func(context.Context, domain.AuditEvent) error {
		<-block
		return nil
	}))

	// no Run: the buffer fills and further events are dropped
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			e.Record(evt(domain.ActionRegistration, domain.OutcomeSuccess))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked")
	}
	assert.Equal(t, int64(8), e.Dropped())
	close(block)
}

func TestEmitter_CloseDrainsWithoutRun(t *testing.T) {
	e := NewEmitter(4)
	c := &collector{}
	e.Subscribe("c", c)

	e.Record(evt(domain.ActionPasswordUpdate, domain.OutcomeSuccess))
	e.Record(evt(domain.ActionPasswordUpdate, domain.OutcomeFailure))
	e.Close()
	e.Close()

	assert.Equal(t, 2, c.len())

	e.Record(evt(domain.ActionPasswordUpdate, domain.OutcomeSuccess))
	assert.Equal(t, int64(1), e.Dropped())
}

func TestEmitter_CancelDeliversBuffered(t *testing.T) {
	e := NewEmitter(8)
	c := &collector{}
	e.Subscribe("c", c)

	ctx, cancel := context.WithCancel(context.Background())
	e.Record(evt(domain.ActionAccountLocked, domain.OutcomeSuccess))
	e.Record(evt(domain.ActionAccountUnlocked, domain.OutcomeSuccess))
	cancel()

	e.Run(ctx)
	assert.Equal(t, 2, c.len())
	e.Close()
}

func TestLogSubscriber_MasksEmail(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSubscriber(zerolog.New(&buf))

	e := evt(domain.ActionAccountLocked, domain.OutcomeSuccess)
	e.Subject = &domain.UserSnapshot{ID: "u1", Email: "alice@example.com"}
	e.ClientIP = "10.0.0.1"
	e.Message = "locked"
	require.NoError(t, s.Handle(context.Background(), e))

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"email":"al***@example.com"`)
	assert.NotContains(t, out, "alice@")
	assert.Contains(t, out, `"subject_user_id":"u1"`)
	assert.Contains(t, out, `"audit":true`)
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":                "***",
		"a@b":             "***",
		"a@example.com":   "a***@example.com",
		"bob@example.com": "bo***@example.com",
		"noatsign":        "no***",
	}
	for in, want := range cases {
		assert.Equal(t, want, maskEmail(in), in)
	}
}

func TestMetricsSubscriber_CountsByActionAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsSubscriber(reg)
	ctx := context.Background()

	require.NoError(t, m.Handle(ctx, evt(domain.ActionLoginFailure, domain.OutcomeFailure)))
	require.NoError(t, m.Handle(ctx, evt(domain.ActionLoginFailure, domain.OutcomeFailure)))
	require.NoError(t, m.Handle(ctx, evt(domain.ActionLoginSuccess, domain.OutcomeSuccess)))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues(domain.ActionLoginFailure, "Failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(domain.ActionLoginSuccess, "Success")))
}

type fakeAppender struct {
	got  []domain.AuditEvent
	err  error
	ctxd bool
}

func (f *fakeAppender) Append(ctx context.Context, evt domain.AuditEvent) error {
	_, f.ctxd = ctx.Deadline()
	f.got = append(f.got, evt)
	return f.err
}

func TestStoreSubscriber_AppendsWithDeadline(t *testing.T) {
	t.Parallel()
	f := &fakeAppender{}
	s := NewStoreSubscriber(f, 0)

	require.NoError(t, s.Handle(context.Background(), evt(domain.ActionAccountDelete, domain.OutcomeSuccess)))
	require.Len(t, f.got, 1)
	assert.True(t, f.ctxd)

	f.err = errors.New("insert failed")
	assert.Error(t, s.Handle(context.Background(), evt(domain.ActionAccountDelete, domain.OutcomeSuccess)))
}
