// pkg/transport/pipe.go
package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/protocol"
)

const pipeDepth = 64

type delivery struct {
	raw  []byte
	from string
}

// PipeEnd is an in-process Channel end. Envelopes cross a serialization
// boundary (encode on post, decode on dispatch) so both ends observe the
// same wire shape a browser frame would.
type PipeEnd struct {
	origin string
	peer   *PipeEnd
	log    *zap.Logger

	mu      sync.RWMutex
	handler Handler
	closed  bool

	inbox chan delivery
	done  chan struct{}
	once  sync.Once
}

// NewPipe returns two cross-linked channel ends with the given origins and
// starts their dispatch loops. Dispatch on one end preserves arrival order on
// that end; nothing is promised across the two directions.
func NewPipe(hostOrigin, frameOrigin string, log *zap.Logger) (host, frame *PipeEnd) {
	if log == nil {
		log = zap.NewNop()
	}
	host = &PipeEnd{origin: hostOrigin, log: log, inbox: make(chan delivery, pipeDepth), done: make(chan struct{})}
	frame = &PipeEnd{origin: frameOrigin, log: log, inbox: make(chan delivery, pipeDepth), done: make(chan struct{})}
	host.peer = frame
	frame.peer = host
	go host.dispatch()
	go frame.dispatch()
	return host, frame
}

func (e *PipeEnd) Origin() string { return e.origin }

func (e *PipeEnd) SetHandler(h Handler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

func (e *PipeEnd) Post(ctx context.Context, msg protocol.Message, targetOrigin string) error {
	raw, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return e.peer.accept(ctx, delivery{raw: raw, from: e.origin}, targetOrigin)
}

func (e *PipeEnd) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		close(e.done)
	})
	return nil
}

// accept enqueues an inbound delivery unless this end's origin does not match
// the requested target. A mismatched target is dropped without error, the way
// a page message with the wrong target origin is never delivered.
func (e *PipeEnd) accept(ctx context.Context, d delivery, targetOrigin string) error {
	if targetOrigin != TargetAny && targetOrigin != e.origin {
		return nil
	}
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	select {
	case e.inbox <- d:
		return nil
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *PipeEnd) dispatch() {
	for {
		select {
		case <-e.done:
			return
		case d := <-e.inbox:
			msg, err := protocol.Decode(d.raw)
			if err != nil {
				e.log.Warn("undecodable envelope dropped",
					zap.String("origin", d.from), zap.Error(err))
				continue
			}
			e.mu.RLock()
			h := e.handler
			e.mu.RUnlock()
			if h != nil {
				h(msg, d.from)
			}
		}
	}
}
