// pkg/protocol/cart.go
package protocol

// Operation payloads. Required fields mirror what an adapter needs to act;
// the engine refuses to invoke a partially specified operation.

type CartAddData struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty,omitempty"`
}

type CartUpdateData struct {
	ItemID string `json:"itemId"`
	Qty    int    `json:"qty"`
}

type CartRemoveData struct {
	ItemID string `json:"itemId"`
}

// IsCartRequest reports whether t is one of the five cart operation kinds.
func IsCartRequest(t Type) bool {
	switch t {
	case TypeCartListRequest, TypeCartAddRequest, TypeCartUpdateRequest,
		TypeCartRemoveRequest, TypeCartClearRequest:
		return true
	}
	return false
}

// CartMethod maps a cart request kind to the adapter method name used in
// error messages and capability names.
func CartMethod(t Type) string {
	switch t {
	case TypeCartListRequest:
		return "listCart"
	case TypeCartAddRequest:
		return "addToCart"
	case TypeCartUpdateRequest:
		return "updateCart"
	case TypeCartRemoveRequest:
		return "removeCart"
	case TypeCartClearRequest:
		return "clearCart"
	}
	return ""
}
