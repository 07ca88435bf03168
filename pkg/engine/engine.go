// pkg/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/adapter"
	"github.com/framelink/framelink-core/pkg/codec"
	"github.com/framelink/framelink-core/pkg/protocol"
	"github.com/framelink/framelink-core/pkg/transport"
)

// Engine is the session-scoped orchestrator that owns the loaded adapter and
// routes cart operations to it. One instance exists per open session.
type Engine interface {
	Initialize(ctx context.Context, a adapter.Adapter) error
	SetChannelTarget(ch transport.Channel)
	Connect(ctx context.Context) error
	OnSessionEnd(ctx context.Context)

	// HandleCartRequest turns one cart request into exactly one normalized
	// response. Adapter failures become structured failure responses; nothing
	// escapes across the channel boundary.
	HandleCartRequest(ctx context.Context, msg protocol.Message) protocol.Message
}

// Cart is the default Engine. It caches the last seen cart state so session
// end can refresh it cheaply.
type Cart struct {
	mu     sync.Mutex
	ad     adapter.Adapter
	target transport.Channel
	last   *adapter.CartState
	log    *zap.Logger
}

func NewCart(log *zap.Logger) *Cart {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cart{log: log}
}

func (e *Cart) Initialize(_ context.Context, a adapter.Adapter) error {
	if a == nil {
		return fmt.Errorf("engine: nil adapter")
	}
	e.mu.Lock()
	e.ad = a
	e.mu.Unlock()
	e.log.Info("engine initialized", zap.String("platform", a.Platform()),
		zap.Any("methods", adapter.Methods(a)))
	return nil
}

func (e *Cart) SetChannelTarget(ch transport.Channel) {
	e.mu.Lock()
	e.target = ch
	e.mu.Unlock()
}

// Connect warms the cart cache when the frame signals ready and pushes the
// initial snapshot so the frame can render without issuing a list.
func (e *Cart) Connect(ctx context.Context) error {
	e.refresh(ctx)
	return nil
}

// OnSessionEnd refreshes the cached cart state one last time so the frame
// observes post-session cart contents without a round trip.
func (e *Cart) OnSessionEnd(ctx context.Context) {
	e.refresh(ctx)
}

// refresh re-lists the cart, caches the snapshot, and pushes it to the frame
// over the channel target. The push carries no request identifier; the frame
// treats it as state, not as a settlement for anything pending.
func (e *Cart) refresh(ctx context.Context) {
	lister, ok := e.adapterRef().(adapter.CartLister)
	if !ok {
		return
	}
	st, err := lister.ListCart(ctx)
	if err != nil {
		e.log.Warn("cart refresh failed", zap.Error(err))
		return
	}
	e.mu.Lock()
	e.last = &st
	target := e.target
	e.mu.Unlock()

	if target != nil {
		push := protocol.NewCartResponse("", true, st, "")
		if err := target.Post(ctx, push, transport.TargetAny); err != nil {
			e.log.Warn("cart snapshot push failed", zap.Error(err))
		}
	}
}

func (e *Cart) adapterRef() adapter.Adapter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ad
}

// LastState returns the most recently cached cart snapshot, if any.
func (e *Cart) LastState() (adapter.CartState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return adapter.CartState{}, false
	}
	return *e.last, true
}

func (e *Cart) HandleCartRequest(ctx context.Context, msg protocol.Message) protocol.Message {
	method := protocol.CartMethod(msg.Type)
	ad := e.adapterRef()
	if ad == nil {
		return failure(msg.RequestID, method)
	}

	switch msg.Type {
	case protocol.TypeCartListRequest:
		lister, ok := ad.(adapter.CartLister)
		if !ok {
			return failure(msg.RequestID, method)
		}
		st, err := lister.ListCart(ctx)
		return e.finish(msg.RequestID, st, err)

	case protocol.TypeCartAddRequest:
		adder, ok := ad.(adapter.CartAdder)
		var data protocol.CartAddData
		if !ok || decodeData(msg, &data) != nil || data.ProductID == "" {
			return failure(msg.RequestID, method)
		}
		qty := data.Qty
		if qty <= 0 {
			qty = 1
		}
		st, err := adder.AddToCart(ctx, data.ProductID, qty)
		return e.finish(msg.RequestID, st, err)

	case protocol.TypeCartUpdateRequest:
		updater, ok := ad.(adapter.CartUpdater)
		var data protocol.CartUpdateData
		if !ok || decodeData(msg, &data) != nil || data.ItemID == "" || data.Qty <= 0 {
			return failure(msg.RequestID, method)
		}
		st, err := updater.UpdateCart(ctx, data.ItemID, data.Qty)
		return e.finish(msg.RequestID, st, err)

	case protocol.TypeCartRemoveRequest:
		remover, ok := ad.(adapter.CartRemover)
		var data protocol.CartRemoveData
		if !ok || decodeData(msg, &data) != nil || data.ItemID == "" {
			return failure(msg.RequestID, method)
		}
		st, err := remover.RemoveFromCart(ctx, data.ItemID)
		return e.finish(msg.RequestID, st, err)

	case protocol.TypeCartClearRequest:
		return e.clear(ctx, msg.RequestID)
	}

	return failure(msg.RequestID, method)
}

// clear prefers a native clearCart. Without one it lists the cart once and
// removes each item in turn, awaiting every removal before starting the next.
// Two concurrent clears racing each other's removals is a known limitation.
func (e *Cart) clear(ctx context.Context, requestID string) protocol.Message {
	ad := e.adapterRef()

	if clearer, ok := ad.(adapter.CartClearer); ok {
		if _, err := clearer.ClearCart(ctx); err != nil {
			return protocol.NewCartResponse(requestID, false, nil, err.Error())
		}
		e.refresh(ctx)
		return protocol.NewCartResponse(requestID, true, map[string]any{"cleared": true}, "")
	}

	lister, hasList := ad.(adapter.CartLister)
	remover, hasRemove := ad.(adapter.CartRemover)
	if !hasList || !hasRemove {
		return failure(requestID, "clearCart")
	}

	st, err := lister.ListCart(ctx)
	if err != nil {
		return protocol.NewCartResponse(requestID, false, nil, err.Error())
	}
	for _, item := range st.Items {
		if _, err := remover.RemoveFromCart(ctx, item.ItemID); err != nil {
			return protocol.NewCartResponse(requestID, false, nil, err.Error())
		}
	}
	e.refresh(ctx)
	return protocol.NewCartResponse(requestID, true, map[string]any{"cleared": true}, "")
}

func (e *Cart) finish(requestID string, st adapter.CartState, err error) protocol.Message {
	if err != nil {
		return protocol.NewCartResponse(requestID, false, nil, err.Error())
	}
	e.mu.Lock()
	e.last = &st
	e.mu.Unlock()
	return protocol.NewCartResponse(requestID, true, st, "")
}

func decodeData(msg protocol.Message, dst any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("engine: missing data")
	}
	return codec.JSONStrict.Unmarshal(msg.Data, dst)
}

func failure(requestID, method string) protocol.Message {
	return protocol.NewCartResponse(requestID, false, nil,
		fmt.Sprintf("%s method not available or missing data", method))
}
