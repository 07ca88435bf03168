// pkg/frameclient/client.go
package frameclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/correlate"
	"github.com/framelink/framelink-core/pkg/middleware/metrics"
	"github.com/framelink/framelink-core/pkg/protocol"
	"github.com/framelink/framelink-core/pkg/transport"
)

var (
	// ErrTargetUnavailable means Send was called with no open session. The
	// failure is immediate; nothing is registered with the correlator.
	ErrTargetUnavailable = errors.New("frameclient: no session target")

	// ErrSessionClosed settles requests swept when the session detaches.
	ErrSessionClosed = errors.New("frameclient: session closed")
)

// Client is the frame side of the correlated request/response protocol. One
// Client serves one frame; Attach/Detach follow the session lifecycle.
type Client struct {
	corr    *correlate.Correlator
	timeout time.Duration
	log     *zap.Logger
	seq     atomic.Uint64

	mu          sync.RWMutex
	target      transport.Channel
	metadata    map[string]any
	onMetadata  func(map[string]any)
	onCartState func(map[string]any)
}

// New returns a detached client. timeout 0 selects the correlator default.
func New(log *zap.Logger, timeout time.Duration) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{corr: correlate.New(log), timeout: timeout, log: log}
}

// Attach binds the client to its session channel and starts consuming
// responses from it.
func (c *Client) Attach(ch transport.Channel) {
	c.mu.Lock()
	c.target = ch
	c.mu.Unlock()
	ch.SetHandler(c.onMessage)
}

// Detach drops the channel and sweeps every in-flight request with
// ErrSessionClosed rather than letting them wait out their timers.
func (c *Client) Detach() {
	c.mu.Lock()
	c.target = nil
	c.mu.Unlock()
	if n := c.corr.RejectAll(ErrSessionClosed); n > 0 {
		c.log.Info("pending requests swept on detach", zap.Int("count", n))
	}
}

// OnMetadata registers the consumer for host-delivered session metadata.
func (c *Client) OnMetadata(fn func(map[string]any)) {
	c.mu.Lock()
	c.onMetadata = fn
	c.mu.Unlock()
}

// OnCartState registers the consumer for cart snapshots the host pushes
// outside any request, such as the initial state after ready.
func (c *Client) OnCartState(fn func(map[string]any)) {
	c.mu.Lock()
	c.onCartState = fn
	c.mu.Unlock()
}

// Metadata returns the last metadata snapshot delivered by the host.
func (c *Client) Metadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata
}

// Send transmits one request and blocks for its single settlement: a
// normalized outcome, ErrTimeout, ErrSessionClosed, or ctx cancellation.
// Registration happens before transmission so a response can never race past
// an unregistered identifier.
func (c *Client) Send(ctx context.Context, t protocol.Type, payload any) (protocol.Outcome, error) {
	c.mu.RLock()
	target := c.target
	c.mu.RUnlock()
	if target == nil {
		return protocol.Outcome{}, ErrTargetUnavailable
	}

	id := c.newID()
	ch, err := c.corr.Register(id, c.timeout)
	if err != nil {
		return protocol.Outcome{}, err
	}

	msg, err := protocol.NewRequest(t, id, payload)
	if err != nil {
		c.corr.Resolve(id, correlate.Result{Err: err})
		return protocol.Outcome{}, err
	}
	if err := target.Post(ctx, msg, transport.TargetAny); err != nil {
		c.corr.Resolve(id, correlate.Result{Err: err})
		return protocol.Outcome{}, err
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, correlate.ErrTimeout) {
				metrics.ObserveTimeout()
			}
			return protocol.Outcome{}, res.Err
		}
		return res.Outcome, nil
	case <-ctx.Done():
		c.corr.Resolve(id, correlate.Result{Err: ctx.Err()})
		return protocol.Outcome{}, ctx.Err()
	}
}

// Pending reports in-flight request count. Test and introspection hook.
func (c *Client) Pending() int { return c.corr.Len() }

// AnnounceReady signals the host that the frame finished booting. Lifecycle
// signals carry no identifier and expect no response.
func (c *Client) AnnounceReady(ctx context.Context) error {
	return c.announce(ctx, protocol.Message{Type: protocol.TypeReady})
}

// AnnounceEnd asks the host to tear the session down.
func (c *Client) AnnounceEnd(ctx context.Context, data map[string]any) error {
	msg := protocol.Message{Type: protocol.TypeEnd}
	if data != nil {
		if req, err := protocol.NewRequest(protocol.TypeEnd, "", data); err == nil {
			msg = req
		}
	}
	return c.announce(ctx, msg)
}

func (c *Client) announce(ctx context.Context, msg protocol.Message) error {
	c.mu.RLock()
	target := c.target
	c.mu.RUnlock()
	if target == nil {
		return ErrTargetUnavailable
	}
	return target.Post(ctx, msg, transport.TargetAny)
}

// --- typed helpers over Send ---

func (c *Client) ListCart(ctx context.Context) (protocol.Outcome, error) {
	return c.Send(ctx, protocol.TypeCartListRequest, nil)
}

func (c *Client) AddToCart(ctx context.Context, productID string, qty int) (protocol.Outcome, error) {
	return c.Send(ctx, protocol.TypeCartAddRequest, protocol.CartAddData{ProductID: productID, Qty: qty})
}

func (c *Client) UpdateCart(ctx context.Context, itemID string, qty int) (protocol.Outcome, error) {
	return c.Send(ctx, protocol.TypeCartUpdateRequest, protocol.CartUpdateData{ItemID: itemID, Qty: qty})
}

func (c *Client) RemoveFromCart(ctx context.Context, itemID string) (protocol.Outcome, error) {
	return c.Send(ctx, protocol.TypeCartRemoveRequest, protocol.CartRemoveData{ItemID: itemID})
}

func (c *Client) ClearCart(ctx context.Context) (protocol.Outcome, error) {
	return c.Send(ctx, protocol.TypeCartClearRequest, nil)
}

// RequestCapabilities negotiates the named capabilities, optionally pinning
// the platform adapter.
func (c *Client) RequestCapabilities(ctx context.Context, names []string, adapterHint string) (protocol.CapabilitySet, error) {
	c.mu.RLock()
	target := c.target
	c.mu.RUnlock()
	if target == nil {
		return nil, ErrTargetUnavailable
	}

	id := c.newID()
	ch, err := c.corr.Register(id, c.timeout)
	if err != nil {
		return nil, err
	}
	msg := protocol.NewCapabilityRequest(id, names, adapterHint)
	if err := target.Post(ctx, msg, transport.TargetAny); err != nil {
		c.corr.Resolve(id, correlate.Result{Err: err})
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, correlate.ErrTimeout) {
				metrics.ObserveTimeout()
			}
			return nil, res.Err
		}
		set := make(protocol.CapabilitySet, len(res.Outcome.Data))
		for name, v := range res.Outcome.Data {
			b, _ := v.(bool)
			set[name] = b
		}
		return set, nil
	case <-ctx.Done():
		c.corr.Resolve(id, correlate.Result{Err: ctx.Err()})
		return nil, ctx.Err()
	}
}

// onMessage routes responses into the correlator. Late responses for expired
// identifiers drop silently there.
func (c *Client) onMessage(msg protocol.Message, origin string) {
	switch msg.Type {
	case protocol.TypeCartResponse, protocol.TypeCapabilityResponse:
		if msg.RequestID == "" {
			// Identifier-less cart responses are host-pushed snapshots.
			if msg.Type == protocol.TypeCartResponse {
				c.mu.RLock()
				fn := c.onCartState
				c.mu.RUnlock()
				if fn != nil {
					fn(msg.Outcome().Data)
				}
			}
			return
		}
		c.corr.Resolve(msg.RequestID, correlate.Result{Outcome: msg.Outcome()})
	case protocol.TypeMetadata:
		c.mu.Lock()
		c.metadata = msg.Metadata
		fn := c.onMetadata
		c.mu.Unlock()
		if fn != nil {
			fn(msg.Metadata)
		}
	}
}

// newID combines a random identifier with a timestamp and a process-local
// counter: unique for the process lifetime, not merely unlikely to collide.
func (c *Client) newID() string {
	return fmt.Sprintf("%s-%x-%x", uuid.NewString(), time.Now().UnixNano(), c.seq.Add(1))
}
