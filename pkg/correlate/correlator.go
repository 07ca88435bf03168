// pkg/correlate/correlator.go
package correlate

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/protocol"
)

var (
	// ErrDuplicateIdentifier means an identifier was registered while still
	// pending. Unreachable under correct identifier generation; checked anyway.
	ErrDuplicateIdentifier = errors.New("correlate: identifier already pending")

	// ErrTimeout settles a request whose deadline elapsed with no response.
	ErrTimeout = errors.New("correlate: request timed out")
)

// DefaultTimeout applies when Register is called with a zero timeout.
const DefaultTimeout = 10 * time.Second

// Result settles a pending request. Err is non-nil only for timeout or a
// RejectAll sweep; everything else arrives as a normalized Outcome.
type Result struct {
	Outcome protocol.Outcome
	Err     error
}

type pending struct {
	ch    chan Result
	timer *time.Timer
}

// Correlator matches asynchronous responses to their originating request by
// identifier. Every pending entry is settled exactly once, by whichever of
// Resolve, Expire, or RejectAll wins; the losing paths become no-ops.
type Correlator struct {
	mu      sync.Mutex
	entries map[string]*pending
	log     *zap.Logger
}

func New(log *zap.Logger) *Correlator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Correlator{entries: make(map[string]*pending), log: log}
}

// Register creates a pending entry and arms its expiry timer. A zero timeout
// selects DefaultTimeout. The returned channel receives exactly one Result.
func (c *Correlator) Register(id string, timeout time.Duration) (<-chan Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.entries[id]; dup {
		return nil, ErrDuplicateIdentifier
	}
	p := &pending{ch: make(chan Result, 1)}
	p.timer = time.AfterFunc(timeout, func() { c.Expire(id) })
	c.entries[id] = p
	return p.ch, nil
}

// Resolve settles id with res and removes the entry. A late or unknown
// identifier is a silent no-op: the request may already have timed out.
func (c *Correlator) Resolve(id string, res Result) bool {
	p := c.take(id)
	if p == nil {
		c.log.Debug("late or unknown response dropped", zap.String("requestId", id))
		return false
	}
	p.ch <- res
	return true
}

// Expire settles id with ErrTimeout if it is still pending.
func (c *Correlator) Expire(id string) bool {
	p := c.take(id)
	if p == nil {
		return false
	}
	p.ch <- Result{Err: ErrTimeout}
	return true
}

// RejectAll sweeps every pending entry with err. Used on session teardown so
// in-flight requests fail immediately instead of waiting out their timers.
func (c *Correlator) RejectAll(err error) int {
	c.mu.Lock()
	swept := make([]*pending, 0, len(c.entries))
	for id, p := range c.entries {
		p.timer.Stop()
		swept = append(swept, p)
		delete(c.entries, id)
	}
	c.mu.Unlock()

	for _, p := range swept {
		p.ch <- Result{Err: err}
	}
	return len(swept)
}

// Len reports the number of in-flight requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// take removes and returns the pending entry for id, stopping its timer.
// Removal under the lock is what makes settlement exactly-once: the first of
// Resolve/Expire to take the entry owns the single buffered send.
func (c *Correlator) take(id string) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[id]
	if !ok {
		return nil
	}
	p.timer.Stop()
	delete(c.entries, id)
	return p
}
