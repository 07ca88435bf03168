// pkg/transport/channel.go
package transport

import (
	"context"
	"errors"

	"github.com/framelink/framelink-core/pkg/protocol"
)

// TargetAny addresses a post to whatever origin is listening, the page API's
// "*" target. The reference flow answers requests this way; stricter
// deployments narrow it through an OriginPolicy instead of protocol changes.
const TargetAny = "*"

// ErrClosed is returned by Post after the channel end has been closed.
var ErrClosed = errors.New("transport: channel closed")

// Handler consumes one inbound envelope together with the origin string it
// arrived from. Dispatch order is arrival order on this channel only; no
// ordering is guaranteed across distinct logical channels.
type Handler func(msg protocol.Message, origin string)

// Channel is one end of the asynchronous, unordered host<->frame link.
// Messages are delivered at most once per dispatch.
type Channel interface {
	// Post sends msg toward the counter-party. targetOrigin restricts
	// delivery; TargetAny delivers regardless of the peer's origin.
	Post(ctx context.Context, msg protocol.Message, targetOrigin string) error

	// SetHandler installs the inbound consumer, replacing any previous one.
	SetHandler(h Handler)

	// Origin is the origin string this end presents to its peer.
	Origin() string

	Close() error
}

// OriginPolicy is the single configurable origin-check point. The protocol
// layer never inspects origins itself; it asks the policy.
type OriginPolicy func(origin string) bool

// AllowAny accepts every origin, matching the reference behavior.
func AllowAny(string) bool { return true }

// Allowlist accepts only the listed origins.
func Allowlist(origins ...string) OriginPolicy {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}
	return func(origin string) bool {
		_, ok := set[origin]
		return ok
	}
}
