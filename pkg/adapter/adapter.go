// pkg/adapter/adapter.go
package adapter

import "context"

// CartItem is one line in the host platform's cart.
type CartItem struct {
	ItemID    string `json:"itemId"`
	ProductID string `json:"productId"`
	Title     string `json:"title,omitempty"`
	Qty       int    `json:"qty"`
}

// CartState is the cart snapshot an operation resolves with. Adapters return
// the post-operation state so the frame can render without a follow-up list.
type CartState struct {
	Items    []CartItem `json:"items"`
	Currency string     `json:"currency,omitempty"`
}

// Adapter is a platform-specific cart integration. Operations are optional:
// an adapter implements whichever of the narrow interfaces below its platform
// supports, and capability resolution reflects exactly that set.
type Adapter interface {
	Platform() string
}

type CartLister interface {
	ListCart(ctx context.Context) (CartState, error)
}

type CartAdder interface {
	AddToCart(ctx context.Context, productID string, qty int) (CartState, error)
}

type CartUpdater interface {
	UpdateCart(ctx context.Context, itemID string, qty int) (CartState, error)
}

type CartRemover interface {
	RemoveFromCart(ctx context.Context, itemID string) (CartState, error)
}

type CartClearer interface {
	ClearCart(ctx context.Context) (CartState, error)
}

// Methods reports the wire-level method names a concrete adapter implements.
func Methods(a Adapter) map[string]bool {
	m := make(map[string]bool, 5)
	if _, ok := a.(CartLister); ok {
		m["listCart"] = true
	}
	if _, ok := a.(CartAdder); ok {
		m["addToCart"] = true
	}
	if _, ok := a.(CartUpdater); ok {
		m["updateCart"] = true
	}
	if _, ok := a.(CartRemover); ok {
		m["removeCart"] = true
	}
	if _, ok := a.(CartClearer); ok {
		m["clearCart"] = true
	}
	return m
}

// Detector reports the platform adapter name detected from host-page
// characteristics when no explicit hint accompanies a capability request.
type Detector func() (name string, ok bool)
