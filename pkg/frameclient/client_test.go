package frameclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/correlate"
	"github.com/framelink/framelink-core/pkg/protocol"
	"github.com/framelink/framelink-core/pkg/transport"
)

// echoHost answers every cart request with a success response carrying the
// request type back, so tests can assert correlation.
func echoHost(t *testing.T, host *transport.PipeEnd) {
	t.Helper()
	host.SetHandler(func(msg protocol.Message, _ string) {
		switch {
		case protocol.IsCartRequest(msg.Type):
			resp := protocol.NewCartResponse(msg.RequestID, true,
				map[string]any{"echo": string(msg.Type)}, "")
			_ = host.Post(context.Background(), resp, transport.TargetAny)
		case msg.Type == protocol.TypeCapabilityRequest:
			resp := protocol.NewCapabilityResponse(msg.RequestID,
				protocol.CapabilitySet{"cart": true, "video": false})
			_ = host.Post(context.Background(), resp, transport.TargetAny)
		}
	})
}

func newAttached(t *testing.T, timeout time.Duration) (*Client, *transport.PipeEnd) {
	t.Helper()
	host, frame := transport.NewPipe("https://store.example", "https://widget.example", zap.NewNop())
	t.Cleanup(func() {
		_ = host.Close()
		_ = frame.Close()
	})
	c := New(zap.NewNop(), timeout)
	c.Attach(frame)
	return c, host
}

func TestSend_NoTarget(t *testing.T) {
	c := New(zap.NewNop(), 0)

	_, err := c.ListCart(context.Background())
	require.ErrorIs(t, err, ErrTargetUnavailable)
	assert.Zero(t, c.Pending())
}

func TestSend_RoundTrip(t *testing.T) {
	c, host := newAttached(t, 2*time.Second)
	echoHost(t, host)

	out, err := c.AddToCart(context.Background(), "123", 2)
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Equal(t, string(protocol.TypeCartAddRequest), out.Data["echo"])
	assert.Zero(t, c.Pending())
}

func TestSend_ConcurrentNoCrossTalk(t *testing.T) {
	c, host := newAttached(t, 2*time.Second)
	echoHost(t, host)

	type result struct {
		out protocol.Outcome
		err error
	}
	list := make(chan result, 1)
	clear := make(chan result, 1)
	go func() {
		out, err := c.ListCart(context.Background())
		list <- result{out, err}
	}()
	go func() {
		out, err := c.ClearCart(context.Background())
		clear <- result{out, err}
	}()

	lr := <-list
	cr := <-clear
	require.NoError(t, lr.err)
	require.NoError(t, cr.err)
	assert.Equal(t, string(protocol.TypeCartListRequest), lr.out.Data["echo"])
	assert.Equal(t, string(protocol.TypeCartClearRequest), cr.out.Data["echo"])
}

func TestSend_Timeout(t *testing.T) {
	c, host := newAttached(t, 50*time.Millisecond)
	// Host consumes everything and never answers.
	host.SetHandler(func(protocol.Message, string) {})

	start := time.Now()
	_, err := c.ListCart(context.Background())
	require.ErrorIs(t, err, correlate.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Zero(t, c.Pending())
}

func TestSend_ContextCancel(t *testing.T) {
	c, host := newAttached(t, time.Minute)
	host.SetHandler(func(protocol.Message, string) {})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.ListCart(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Pending())
}

func TestDetach_SweepsPending(t *testing.T) {
	c, host := newAttached(t, time.Minute)
	host.SetHandler(func(protocol.Message, string) {})

	errs := make(chan error, 1)
	go func() {
		_, err := c.ListCart(context.Background())
		errs <- err
	}()

	require.Eventually(t, func() bool { return c.Pending() == 1 },
		time.Second, 5*time.Millisecond)
	c.Detach()

	require.ErrorIs(t, <-errs, ErrSessionClosed)
	assert.Zero(t, c.Pending())

	_, err := c.ListCart(context.Background())
	assert.ErrorIs(t, err, ErrTargetUnavailable)
}

func TestRequestCapabilities(t *testing.T) {
	c, host := newAttached(t, 2*time.Second)
	echoHost(t, host)

	set, err := c.RequestCapabilities(context.Background(), []string{"cart", "video"}, "shoptail")
	require.NoError(t, err)
	assert.Equal(t, protocol.CapabilitySet{"cart": true, "video": false}, set)
}

func TestMetadataDelivery(t *testing.T) {
	c, host := newAttached(t, time.Second)

	got := make(chan map[string]any, 1)
	c.OnMetadata(func(m map[string]any) { got <- m })

	meta := protocol.NewMetadata(map[string]any{"locale": "en-US"})
	require.NoError(t, host.Post(context.Background(), meta, transport.TargetAny))

	select {
	case m := <-got:
		assert.Equal(t, "en-US", m["locale"])
	case <-time.After(time.Second):
		t.Fatal("metadata never delivered")
	}
	assert.Equal(t, "en-US", c.Metadata()["locale"])
}

func TestCartStatePushDelivery(t *testing.T) {
	c, host := newAttached(t, time.Second)

	got := make(chan map[string]any, 1)
	c.OnCartState(func(m map[string]any) { got <- m })

	// No request id: a host-pushed snapshot, not a settlement.
	push := protocol.NewCartResponse("", true, map[string]any{"items": []any{}}, "")
	require.NoError(t, host.Post(context.Background(), push, transport.TargetAny))

	select {
	case m := <-got:
		assert.Contains(t, m, "items")
	case <-time.After(time.Second):
		t.Fatal("cart snapshot never delivered")
	}
	assert.Zero(t, c.Pending())
}

func TestAnnounceLifecycle(t *testing.T) {
	c, host := newAttached(t, time.Second)

	seen := make(chan protocol.Type, 2)
	host.SetHandler(func(msg protocol.Message, _ string) { seen <- msg.Type })

	require.NoError(t, c.AnnounceReady(context.Background()))
	require.NoError(t, c.AnnounceEnd(context.Background(), map[string]any{"reason": "done"}))

	assert.Equal(t, protocol.TypeReady, <-seen)
	assert.Equal(t, protocol.TypeEnd, <-seen)
}
