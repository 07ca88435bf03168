// pkg/widget/widget.go
package widget

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/adapter"
	"github.com/framelink/framelink-core/pkg/capability"
	"github.com/framelink/framelink-core/pkg/codec"
	"github.com/framelink/framelink-core/pkg/config"
	"github.com/framelink/framelink-core/pkg/middleware/metrics"
	"github.com/framelink/framelink-core/pkg/protocol"
	"github.com/framelink/framelink-core/pkg/relay"
	"github.com/framelink/framelink-core/pkg/transport"
)

// Widget is the host-side controller: it owns the single open session, the
// message dispatcher, and the capability resolver. One Widget, at most one
// open session.
type Widget struct {
	cfg      config.Config
	log      *zap.Logger
	policy   transport.OriginPolicy
	resolver *capability.Resolver
	events   *emitter
	telem    *relay.Emitter

	mu       sync.Mutex
	frame    transport.Channel
	metadata map[string]any
}

func New(cfg config.Config, log *zap.Logger, relayClient relay.Client, detect adapter.Detector) *Widget {
	if log == nil {
		log = zap.NewNop()
	}
	return &Widget{
		cfg:      cfg,
		log:      log,
		policy:   cfg.Origin.Policy(),
		resolver: capability.NewResolver(log, detect),
		events:   newEmitter(),
		telem:    relay.NewEmitter(relayClient, cfg.Relay.Topic, log),
		metadata: make(map[string]any),
	}
}

// Open binds the widget to a frame channel. Opening while a session is
// already active is a no-op.
func (w *Widget) Open(ctx context.Context, ch transport.Channel) {
	w.mu.Lock()
	if w.frame != nil {
		w.mu.Unlock()
		return
	}
	w.frame = ch
	w.mu.Unlock()

	ch.SetHandler(w.onMessage)
	metrics.ObserveSessionOpen()
	w.telem.Emit(ctx, relay.SessionEvent{Kind: "open"})
	w.log.Info("session opened", zap.String("frameOrigin", ch.Origin()))
}

// Close tears the session down: frame removed, engine instance cleared. An
// already-closed widget ignores the call. Requests still in flight on the
// frame side are not rejected from here; the frame client sweeps its own.
func (w *Widget) Close(ctx context.Context) {
	w.mu.Lock()
	frame := w.frame
	w.frame = nil
	w.mu.Unlock()
	if frame == nil {
		return
	}

	_ = frame.Close()
	w.resolver.Reset()
	metrics.ObserveSessionClose()
	w.telem.Emit(ctx, relay.SessionEvent{Kind: "close"})
	w.log.Info("session closed")
}

// On subscribes fn to a local event and returns the token Off needs.
func (w *Widget) On(ev Event, fn Listener) int { return w.events.on(ev, fn) }

// Off removes a subscription by token.
func (w *Widget) Off(ev Event, token int) { w.events.off(ev, token) }

// UpdateMetadata merges m into session metadata and, when a session is open,
// delivers the full snapshot to the frame.
func (w *Widget) UpdateMetadata(ctx context.Context, m map[string]any) {
	w.mu.Lock()
	for k, v := range m {
		w.metadata[k] = v
	}
	snapshot := w.metadataSnapshotLocked()
	frame := w.frame
	w.mu.Unlock()

	if frame != nil {
		w.post(ctx, frame, protocol.NewMetadata(snapshot))
	}
}

// Session reports current widget state.
func (w *Widget) Session() Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Session{
		Open:         w.frame != nil,
		EngineLoaded: w.resolver.Engine() != nil,
		Metadata:     w.metadataSnapshotLocked(),
	}
}

// onMessage is the host dispatcher. Classification is first-match-wins and
// total; every request-bearing message produces exactly one response.
func (w *Widget) onMessage(msg protocol.Message, origin string) {
	if !w.policy(origin) {
		w.log.Warn("message from disallowed origin dropped", zap.String("origin", origin))
		return
	}

	w.mu.Lock()
	frame := w.frame
	w.mu.Unlock()
	if frame == nil {
		return
	}

	ctx := context.Background()
	metrics.ObserveDispatch(string(msg.Type))

	switch {
	case msg.Type == protocol.TypeCapabilityRequest:
		w.handleCapabilities(ctx, frame, msg)

	case protocol.IsCartRequest(msg.Type):
		w.handleCart(ctx, frame, msg)

	case msg.Type == protocol.TypeReady:
		w.handleReady(ctx, frame)

	case msg.Type == protocol.TypeEnd:
		w.handleEnd(ctx, msg)

	default:
		// Unknown kinds are skipped, not errors: newer frames may speak a
		// superset of this build's protocol.
		w.log.Debug("unhandled message kind", zap.String("type", string(msg.Type)))
	}
}

func (w *Widget) handleCapabilities(ctx context.Context, frame transport.Channel, msg protocol.Message) {
	metrics.ObserveCapabilityRequest()

	names, err := msg.RequestedCapabilities()
	if err != nil {
		w.log.Warn("malformed capability request", zap.Error(err))
		names = nil
	}
	hint := msg.Adapter
	if hint == "" {
		hint = w.cfg.Widget.AdapterHint
	}

	set := w.resolver.Resolve(ctx, names, hint)
	if eng := w.resolver.Engine(); eng != nil {
		eng.SetChannelTarget(frame)
	}

	w.post(ctx, frame, protocol.NewCapabilityResponse(msg.RequestID, set))
}

// handleCart forwards to the engine, or fails fast when none is loaded: a
// synthesized failure beats a ten second timeout for a foregone conclusion.
func (w *Widget) handleCart(ctx context.Context, frame transport.Channel, msg protocol.Message) {
	eng := w.resolver.Engine()

	var resp protocol.Message
	if eng == nil {
		resp = protocol.NewCartResponse(msg.RequestID, false, nil, "engine not available")
	} else {
		resp = eng.HandleCartRequest(ctx, msg)
	}

	success := resp.Success != nil && *resp.Success
	metrics.ObserveCartResponse(success)
	w.telem.Emit(ctx, relay.SessionEvent{
		Kind:      "cart",
		Operation: protocol.CartMethod(msg.Type),
		Success:   &success,
		Platform:  w.resolver.Platform(),
	})

	w.post(ctx, frame, resp)
}

func (w *Widget) handleReady(ctx context.Context, frame transport.Channel) {
	w.mu.Lock()
	snapshot := w.metadataSnapshotLocked()
	w.mu.Unlock()
	w.post(ctx, frame, protocol.NewMetadata(snapshot))

	if eng := w.resolver.Engine(); eng != nil {
		eng.SetChannelTarget(frame)
		if err := eng.Connect(ctx); err != nil {
			w.log.Warn("engine connect failed", zap.Error(err))
		}
	}

	w.telem.Emit(ctx, relay.SessionEvent{Kind: "ready", Platform: w.resolver.Platform()})
	w.events.emit(EventReady, nil)
}

func (w *Widget) handleEnd(ctx context.Context, msg protocol.Message) {
	if eng := w.resolver.Engine(); eng != nil {
		eng.OnSessionEnd(ctx)
	}

	var data map[string]any
	if len(msg.Data) > 0 {
		_ = codec.JSONLenient.Unmarshal(msg.Data, &data)
	}
	w.telem.Emit(ctx, relay.SessionEvent{Kind: "end", Platform: w.resolver.Platform(), Meta: data})
	w.events.emit(EventEnd, data)

	w.Close(ctx)
}

// post sends one envelope back to the frame. The reference flow addresses
// responses to any origin; the origin policy point governs inbound instead.
func (w *Widget) post(ctx context.Context, frame transport.Channel, msg protocol.Message) {
	if err := frame.Post(ctx, msg, transport.TargetAny); err != nil {
		w.log.Warn("post to frame failed",
			zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

func (w *Widget) metadataSnapshotLocked() map[string]any {
	snapshot := make(map[string]any, len(w.metadata))
	for k, v := range w.metadata {
		snapshot[k] = v
	}
	return snapshot
}
