// pkg/relay/events.go
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/codec"
)

// SessionEvent is the telemetry record published per widget lifecycle or
// cart-operation outcome.
type SessionEvent struct {
	Kind      string         `json:"kind"` // "open", "ready", "end", "close", "cart"
	Operation string         `json:"operation,omitempty"`
	Success   *bool          `json:"success,omitempty"`
	Platform  string         `json:"platform,omitempty"`
	At        time.Time      `json:"at"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Emitter publishes SessionEvents on a fixed topic. Publish failures are
// logged and swallowed: telemetry must never affect protocol behavior.
type Emitter struct {
	client Client
	topic  string
	log    *zap.Logger
}

func NewEmitter(client Client, topic string, log *zap.Logger) *Emitter {
	if client == nil {
		client = Noop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{client: client, topic: topic, log: log}
}

func (e *Emitter) Emit(ctx context.Context, ev SessionEvent) {
	if e.topic == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := codec.JSONStrict.Marshal(ev)
	if err != nil {
		e.log.Warn("session event encode failed", zap.Error(err))
		return
	}
	if err := e.client.Publish(ctx, Event{Topic: e.topic, Body: body}); err != nil {
		e.log.Warn("session event publish failed",
			zap.String("kind", ev.Kind), zap.Error(err))
	}
}
