package capability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/adapter"
	"github.com/framelink/framelink-core/pkg/protocol"
)

type cartStub struct{}

func (cartStub) Platform() string { return "shoptail" }

func (cartStub) ListCart(context.Context) (adapter.CartState, error) {
	return adapter.CartState{}, nil
}

func (cartStub) AddToCart(context.Context, string, int) (adapter.CartState, error) {
	return adapter.CartState{}, nil
}

func registerCounting(t *testing.T, name string, loads *atomic.Int32) {
	t.Helper()
	adapter.Reset()
	t.Cleanup(adapter.Reset)
	adapter.Register(name, func(context.Context) (adapter.Adapter, error) {
		loads.Add(1)
		return cartStub{}, nil
	})
}

func TestResolve_CartAndUnknown(t *testing.T) {
	var loads atomic.Int32
	registerCounting(t, "shoptail", &loads)

	r := NewResolver(zap.NewNop(), nil)
	set := r.Resolve(context.Background(), []string{"cart", "video"}, "shoptail")

	assert.Equal(t, protocol.CapabilitySet{"cart": true, "video": false}, set)
}

func TestResolve_LoaderMemoized(t *testing.T) {
	var loads atomic.Int32
	registerCounting(t, "shoptail", &loads)

	r := NewResolver(zap.NewNop(), nil)
	_ = r.Resolve(context.Background(), []string{"cart"}, "shoptail")
	_ = r.Resolve(context.Background(), []string{"cart", "cart.list"}, "shoptail")

	assert.Equal(t, int32(1), loads.Load())
	require.NotNil(t, r.Engine())
	assert.Equal(t, "shoptail", r.Platform())
}

func TestResolve_DottedOperations(t *testing.T) {
	var loads atomic.Int32
	registerCounting(t, "shoptail", &loads)

	r := NewResolver(zap.NewNop(), nil)
	set := r.Resolve(context.Background(),
		[]string{"cart.list", "cart.add", "cart.update", "cart.bogus"}, "shoptail")

	assert.True(t, set["cart.list"])
	assert.True(t, set["cart.add"])
	assert.False(t, set["cart.update"])
	assert.False(t, set["cart.bogus"])
}

func TestResolve_LoadFailureDegrades(t *testing.T) {
	adapter.Reset()
	t.Cleanup(adapter.Reset)
	adapter.Register("broken", func(context.Context) (adapter.Adapter, error) {
		return nil, errors.New("probe failed")
	})

	r := NewResolver(zap.NewNop(), nil)
	set := r.Resolve(context.Background(), []string{"cart"}, "broken")

	assert.False(t, set["cart"])
	assert.Nil(t, r.Engine())
}

func TestResolve_DetectorFallback(t *testing.T) {
	var loads atomic.Int32
	registerCounting(t, "shoptail", &loads)

	detect := func() (string, bool) { return "shoptail", true }
	r := NewResolver(zap.NewNop(), detect)

	set := r.Resolve(context.Background(), []string{"cart"}, "")
	assert.True(t, set["cart"])
	assert.Equal(t, int32(1), loads.Load())
}

func TestResolve_NoHintNoDetector(t *testing.T) {
	var loads atomic.Int32
	registerCounting(t, "shoptail", &loads)

	r := NewResolver(zap.NewNop(), nil)
	set := r.Resolve(context.Background(), []string{"cart"}, "")

	assert.False(t, set["cart"])
	assert.Zero(t, loads.Load())
}

func TestReset_ReloadsNextSession(t *testing.T) {
	var loads atomic.Int32
	registerCounting(t, "shoptail", &loads)

	r := NewResolver(zap.NewNop(), nil)
	_ = r.Resolve(context.Background(), []string{"cart"}, "shoptail")
	r.Reset()
	assert.Nil(t, r.Engine())
	assert.Empty(t, r.Platform())

	_ = r.Resolve(context.Background(), []string{"cart"}, "shoptail")
	assert.Equal(t, int32(2), loads.Load())
}
