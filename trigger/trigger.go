// Package trigger decides when a reconciliation pass should run. Triggers
// push Fire values into a Queue that holds at most one pending signal.
package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/s0up4200/qbit-dedup/metrics"
)

// State is the lifecycle position of a trigger
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFallback
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Source identifies what produced a Fire
type Source string

const (
	SourceStartup Source = "startup"
	SourcePoll    Source = "poll"
	SourceConnect Source = "connect"
	SourceEvent   Source = "event"
)

// Fire asks for one reconciliation pass. When OnChange is set the pass is
// skipped if the torrent set looks the same as after the previous pass.
type Fire struct {
	Source   Source
	Reason   string
	OnChange bool
	At       time.Time
}

// Trigger produces Fires until ctx is cancelled
type Trigger interface {
	Run(ctx context.Context, q *Queue) error
	State() State
}

// Queue holds at most one pending Fire. A Fire arriving while another is
// pending is merged into it.
type Queue struct {
	mu sync.Mutex
	ch chan Fire
}

func NewQueue() *Queue {
	return &Queue{ch: make(chan Fire, 1)}
}

// C returns the channel the consumer receives Fires from
func (q *Queue) C() <-chan Fire {
	return q.ch
}

// Fire enqueues f. It never blocks and reports false when f was merged into
// a pending Fire.
func (q *Queue) Fire(f Fire) bool {
	if f.At.IsZero() {
		f.At = time.Now()
	}
	metrics.FiresTotal.WithLabelValues(string(f.Source)).Inc()

	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.ch <- f:
		return true
	default:
	}

	// Only producers send, and they hold mu, so the sends below cannot block.
	select {
	case pending := <-q.ch:
		q.ch <- merge(pending, f)
		metrics.FiresCoalesced.Inc()
		return false
	default:
		q.ch <- f
		return true
	}
}

// merge keeps the pending Fire unless the incoming one is unconditional and
// the pending one is not.
func merge(pending, incoming Fire) Fire {
	if pending.OnChange && !incoming.OnChange {
		return incoming
	}
	return pending
}

// stateHolder is embedded by triggers to track and publish their state
type stateHolder struct {
	state atomic.Int32
}

func (h *stateHolder) State() State {
	return State(h.state.Load())
}

func (h *stateHolder) setState(s State) State {
	prev := State(h.state.Swap(int32(s)))
	metrics.TriggerState.Set(float64(s))
	return prev
}
