package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/adapter"
	"github.com/framelink/framelink-core/pkg/protocol"
	"github.com/framelink/framelink-core/pkg/transport"
)

// recordingChannel captures engine pushes to the frame.
type recordingChannel struct {
	mu   sync.Mutex
	sent []protocol.Message
}

func (r *recordingChannel) Post(_ context.Context, msg protocol.Message, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingChannel) SetHandler(transport.Handler) {}
func (r *recordingChannel) Origin() string               { return "https://store.example" }
func (r *recordingChannel) Close() error                 { return nil }

func (r *recordingChannel) messages() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.sent...)
}

// fakeCart implements the full operation set and records invocation order.
type fakeCart struct {
	items  []adapter.CartItem
	calls  []string
	failOn string
}

func (f *fakeCart) Platform() string { return "faketail" }

func (f *fakeCart) op(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return errors.New("upstream said no")
	}
	return nil
}

func (f *fakeCart) state() adapter.CartState {
	return adapter.CartState{Items: append([]adapter.CartItem(nil), f.items...)}
}

func (f *fakeCart) ListCart(context.Context) (adapter.CartState, error) {
	return f.state(), f.op("listCart")
}

func (f *fakeCart) AddToCart(_ context.Context, productID string, qty int) (adapter.CartState, error) {
	if err := f.op("addToCart"); err != nil {
		return adapter.CartState{}, err
	}
	f.items = append(f.items, adapter.CartItem{ItemID: "i-" + productID, ProductID: productID, Qty: qty})
	return f.state(), nil
}

func (f *fakeCart) UpdateCart(_ context.Context, itemID string, qty int) (adapter.CartState, error) {
	if err := f.op("updateCart"); err != nil {
		return adapter.CartState{}, err
	}
	for i := range f.items {
		if f.items[i].ItemID == itemID {
			f.items[i].Qty = qty
		}
	}
	return f.state(), nil
}

func (f *fakeCart) RemoveFromCart(_ context.Context, itemID string) (adapter.CartState, error) {
	if err := f.op("removeCart"); err != nil {
		return adapter.CartState{}, err
	}
	kept := f.items[:0]
	for _, it := range f.items {
		if it.ItemID != itemID {
			kept = append(kept, it)
		}
	}
	f.items = kept
	return f.state(), nil
}

// readOnlyCart supports listCart and removeCart only. The inner fake is held
// as a field so none of its other methods leak through.
type readOnlyCart struct{ inner *fakeCart }

func (r *readOnlyCart) Platform() string { return r.inner.Platform() }

func (r *readOnlyCart) ListCart(ctx context.Context) (adapter.CartState, error) {
	return r.inner.ListCart(ctx)
}

func (r *readOnlyCart) RemoveFromCart(ctx context.Context, itemID string) (adapter.CartState, error) {
	return r.inner.RemoveFromCart(ctx, itemID)
}

// listOnlyCart supports listCart and nothing else.
type listOnlyCart struct{ inner *fakeCart }

func (l *listOnlyCart) Platform() string { return l.inner.Platform() }

func (l *listOnlyCart) ListCart(ctx context.Context) (adapter.CartState, error) {
	return l.inner.ListCart(ctx)
}

func newEngine(t *testing.T, a adapter.Adapter) *Cart {
	t.Helper()
	e := NewCart(zap.NewNop())
	require.NoError(t, e.Initialize(context.Background(), a))
	return e
}

func mustRequest(t *testing.T, typ protocol.Type, id string, data any) protocol.Message {
	t.Helper()
	msg, err := protocol.NewRequest(typ, id, data)
	require.NoError(t, err)
	return msg
}

func TestHandleCart_ListSuccess(t *testing.T) {
	fake := &fakeCart{items: []adapter.CartItem{{ItemID: "i1", ProductID: "p1", Qty: 1}}}
	e := newEngine(t, fake)

	resp := e.HandleCartRequest(context.Background(), mustRequest(t, protocol.TypeCartListRequest, "r1", nil))

	require.Equal(t, protocol.TypeCartResponse, resp.Type)
	assert.Equal(t, "r1", resp.RequestID)
	out := resp.Outcome()
	require.True(t, out.Success)
	items, ok := out.Data["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestHandleCart_MissingMethod(t *testing.T) {
	// An adapter limited to reads: addToCart must fail fast, inside the call
	// stack, with the canonical message. No timeout wait.
	e := newEngine(t, &readOnlyCart{inner: &fakeCart{}})

	resp := e.HandleCartRequest(context.Background(),
		mustRequest(t, protocol.TypeCartAddRequest, "r2", protocol.CartAddData{ProductID: "123", Qty: 2}))

	out := resp.Outcome()
	require.False(t, out.Success)
	assert.Equal(t, "addToCart method not available or missing data", out.Err)
}

func TestHandleCart_MissingData(t *testing.T) {
	fake := &fakeCart{}
	e := newEngine(t, fake)

	// Required productId absent: adapter must not be invoked.
	resp := e.HandleCartRequest(context.Background(),
		mustRequest(t, protocol.TypeCartAddRequest, "r3", map[string]any{"qty": 2}))

	out := resp.Outcome()
	require.False(t, out.Success)
	assert.Equal(t, "addToCart method not available or missing data", out.Err)
	assert.Empty(t, fake.calls)
}

func TestHandleCart_UpdateRequiresQty(t *testing.T) {
	fake := &fakeCart{items: []adapter.CartItem{{ItemID: "i1", Qty: 1}}}
	e := newEngine(t, fake)

	resp := e.HandleCartRequest(context.Background(),
		mustRequest(t, protocol.TypeCartUpdateRequest, "r4", map[string]any{"itemId": "i1"}))

	out := resp.Outcome()
	require.False(t, out.Success)
	assert.Equal(t, "updateCart method not available or missing data", out.Err)
}

func TestHandleCart_AdapterErrorVerbatim(t *testing.T) {
	fake := &fakeCart{failOn: "addToCart"}
	e := newEngine(t, fake)

	resp := e.HandleCartRequest(context.Background(),
		mustRequest(t, protocol.TypeCartAddRequest, "r5", protocol.CartAddData{ProductID: "123"}))

	out := resp.Outcome()
	require.False(t, out.Success)
	assert.Equal(t, "upstream said no", out.Err)
}

func TestHandleCart_AddDefaultsQty(t *testing.T) {
	fake := &fakeCart{}
	e := newEngine(t, fake)

	resp := e.HandleCartRequest(context.Background(),
		mustRequest(t, protocol.TypeCartAddRequest, "r6", protocol.CartAddData{ProductID: "123"}))

	require.True(t, resp.Outcome().Success)
	require.Len(t, fake.items, 1)
	assert.Equal(t, 1, fake.items[0].Qty)
}

func TestHandleCart_ClearRemovesSequentially(t *testing.T) {
	fake := &fakeCart{items: []adapter.CartItem{
		{ItemID: "i1", ProductID: "p1", Qty: 1},
		{ItemID: "i2", ProductID: "p2", Qty: 1},
		{ItemID: "i3", ProductID: "p3", Qty: 1},
	}}
	e := newEngine(t, &readOnlyCart{inner: fake})

	resp := e.HandleCartRequest(context.Background(),
		mustRequest(t, protocol.TypeCartClearRequest, "r7", nil))

	out := resp.Outcome()
	require.True(t, out.Success)
	assert.Equal(t, true, out.Data["cleared"])
	assert.Empty(t, fake.items)

	// One list, then exactly three removals in order, then the cache refresh.
	removes := 0
	for _, call := range fake.calls {
		if call == "removeCart" {
			removes++
		}
	}
	assert.Equal(t, 3, removes)
	assert.Equal(t, []string{"listCart", "removeCart", "removeCart", "removeCart", "listCart"}, fake.calls)
}

func TestHandleCart_ClearWithoutSupport(t *testing.T) {
	e := newEngine(t, &listOnlyCart{inner: &fakeCart{}})

	resp := e.HandleCartRequest(context.Background(),
		mustRequest(t, protocol.TypeCartClearRequest, "r8", nil))

	out := resp.Outcome()
	require.False(t, out.Success)
	assert.Equal(t, "clearCart method not available or missing data", out.Err)
}

func TestHandleCart_NoAdapter(t *testing.T) {
	e := NewCart(zap.NewNop())

	resp := e.HandleCartRequest(context.Background(),
		mustRequest(t, protocol.TypeCartListRequest, "r9", nil))

	out := resp.Outcome()
	require.False(t, out.Success)
	assert.Contains(t, out.Err, "listCart")
}

func TestConnect_PushesSnapshotToTarget(t *testing.T) {
	fake := &fakeCart{items: []adapter.CartItem{{ItemID: "i1", ProductID: "p1", Qty: 2}}}
	e := newEngine(t, fake)
	ch := &recordingChannel{}
	e.SetChannelTarget(ch)

	require.NoError(t, e.Connect(context.Background()))

	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeCartResponse, msgs[0].Type)
	assert.Empty(t, msgs[0].RequestID)
	out := msgs[0].Outcome()
	require.True(t, out.Success)
	items, ok := out.Data["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestOnSessionEnd_PushesFinalSnapshot(t *testing.T) {
	fake := &fakeCart{}
	e := newEngine(t, fake)
	ch := &recordingChannel{}
	e.SetChannelTarget(ch)

	e.OnSessionEnd(context.Background())

	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].RequestID)
}

func TestConnect_WarmsCache(t *testing.T) {
	fake := &fakeCart{items: []adapter.CartItem{{ItemID: "i1", Qty: 2}}}
	e := newEngine(t, fake)

	require.NoError(t, e.Connect(context.Background()))

	st, ok := e.LastState()
	require.True(t, ok)
	assert.Len(t, st.Items, 1)
}
