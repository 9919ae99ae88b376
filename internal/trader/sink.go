package trader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

// Envelope is a committed event with its position in the exchange history.
type Envelope struct {
	Sequence uint64
	Emitter  common.Address
	Time     time.Time
	Event    model.Event
}

// EventSink receives events after the emitting call has committed. A sink
// error is logged and never undoes the call.
type EventSink interface {
	Publish(ctx context.Context, env Envelope) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, env Envelope) error

func (f SinkFunc) Publish(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Recorder keeps every published envelope in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(ctx context.Context, env Envelope) error {
	r.mu.Lock()
	r.events = append(r.events, env)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded envelopes.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent envelope.
func (r *Recorder) Last() (Envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Envelope{}, false
	}
	return r.events[len(r.events)-1], true
}

// MultiSink publishes to every sink in order and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, env Envelope) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
