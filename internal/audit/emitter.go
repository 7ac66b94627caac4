package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
)

// Subscriber consumes audit events. A failing subscriber never affects the
// producer or the other subscribers.
type Subscriber interface {
	Handle(ctx context.Context, evt domain.AuditEvent) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, evt domain.AuditEvent) error

func (f SubscriberFunc) Handle(ctx context.Context, evt domain.AuditEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, evt)
}

type subscription struct {
	name string
	sub  Subscriber
}

// Emitter fans audit events out to its subscribers from a single dispatch
// goroutine. Record never blocks: when the buffer is full the event is
// dropped and counted.
type Emitter struct {
	ch   chan domain.AuditEvent
	done chan struct{}

	subsMu sync.RWMutex
	subs   []subscription

	stateMu sync.RWMutex
	closed  bool
	started atomic.Bool
	dropped atomic.Int64

	log zerolog.Logger
}

const defaultBuffer = 1024

func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Emitter{
		ch:   make(chan domain.AuditEvent, buffer),
		done: make(chan struct{}),
		log:  logger.Component("audit"),
	}
}

// Subscribe registers a subscriber under name. Safe to call at any time.
func (e *Emitter) Subscribe(name string, s Subscriber) {
	if s == nil {
		return
	}
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs = append(e.subs, subscription{name: name, sub: s})
}

// Record enqueues evt for delivery.
func (e *Emitter) Record(evt domain.AuditEvent) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.ch <- evt:
	default:
		n := e.dropped.Add(1)
		e.log.Warn().
			Str("action", evt.Action).
			Int64("dropped_total", n).
			Msg("audit buffer full, event dropped")
	}
}

// Dropped returns the number of events discarded so far.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Run dispatches events until Close is called or ctx is cancelled. On
// cancellation whatever is already buffered is still delivered.
func (e *Emitter) Run(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	defer close(e.done)

	for {
		select {
		case evt, ok := <-e.ch:
			if !ok {
				return
			}
			e.dispatch(ctx, evt)
		case <-ctx.Done():
			e.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

// Close stops accepting events and waits until the buffered ones have been
// delivered.
func (e *Emitter) Close() {
	e.stateMu.Lock()
	if e.closed {
		e.stateMu.Unlock()
		return
	}
	e.closed = true
	close(e.ch)
	e.stateMu.Unlock()

	if e.started.Load() {
		<-e.done
	}
	// events recorded after Run returned on cancellation are still buffered
	e.drain(context.Background())
}

func (e *Emitter) drain(ctx context.Context) {
	for {
		select {
		case evt, ok := <-e.ch:
			if !ok {
				return
			}
			e.dispatch(ctx, evt)
		default:
			return
		}
	}
}

func (e *Emitter) dispatch(ctx context.Context, evt domain.AuditEvent) {
	e.subsMu.RLock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.subsMu.RUnlock()

	for _, s := range subs {
		if err := safeHandle(ctx, s.sub, evt); err != nil {
			e.log.Error().
				Err(err).
				Str("subscriber", s.name).
				Str("action", evt.Action).
				Msg("audit subscriber failed")
		}
	}
}

func safeHandle(ctx context.Context, s Subscriber, evt domain.AuditEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Handle(ctx, evt)
}
