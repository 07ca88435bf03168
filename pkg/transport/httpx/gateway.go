// pkg/transport/httpx/gateway.go
package httpx

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/middleware/auth"
	"github.com/framelink/framelink-core/pkg/middleware/logger"
	"github.com/framelink/framelink-core/pkg/middleware/metrics"
	"github.com/framelink/framelink-core/pkg/protocol"
	"github.com/framelink/framelink-core/pkg/transport"
)

const outboxDepth = 64

// Gateway bridges a remote browser frame onto a transport.Channel. The frame
// POSTs envelopes inbound and long-polls GET for host-to-frame envelopes; the
// widget dispatcher sees an ordinary channel either way.
type Gateway struct {
	origin      string
	pollTimeout time.Duration
	log         *zap.Logger

	mu         sync.RWMutex
	handler    transport.Handler
	lastOrigin string
	closed     bool

	outbox chan protocol.Message
	done   chan struct{}
	once   sync.Once
}

func NewGateway(hostOrigin string, pollTimeout time.Duration, log *zap.Logger) *Gateway {
	if pollTimeout <= 0 {
		pollTimeout = 25 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		origin:      hostOrigin,
		pollTimeout: pollTimeout,
		log:         log,
		outbox:      make(chan protocol.Message, outboxDepth),
		done:        make(chan struct{}),
	}
}

// --- transport.Channel ---

func (g *Gateway) Origin() string { return g.origin }

func (g *Gateway) SetHandler(h transport.Handler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

// Post queues an envelope for the frame's next poll. A targetOrigin other
// than TargetAny must match the origin the frame last presented.
func (g *Gateway) Post(ctx context.Context, msg protocol.Message, targetOrigin string) error {
	g.mu.RLock()
	closed := g.closed
	last := g.lastOrigin
	g.mu.RUnlock()
	if closed {
		return transport.ErrClosed
	}
	if targetOrigin != transport.TargetAny && targetOrigin != last {
		return nil
	}
	select {
	case g.outbox <- msg:
		return nil
	case <-g.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) Close() error {
	g.once.Do(func() {
		g.mu.Lock()
		g.closed = true
		g.mu.Unlock()
		close(g.done)
	})
	return nil
}

// --- HTTP surface ---

// Routes wires the gateway endpoints plus middleware onto r.
func (g *Gateway) Routes(r Router, fa *auth.Middleware, lm *logger.Middleware, metricsHandler http.Handler) http.Handler {
	r.Use(chimd.RequestID, chimd.Recoverer, chimd.Heartbeat("/ping"))
	if lm != nil {
		r.Use(lm.Middleware(fa))
	}
	r.Use(metrics.Collect())
	if fa != nil {
		r.Use(fa.Middleware())
	}

	r.Post("/frame/messages", http.HandlerFunc(g.ingest))
	r.Get("/frame/messages", http.HandlerFunc(g.poll))
	if metricsHandler != nil {
		r.Handle(http.MethodGet, "/metrics", metricsHandler)
	}
	return r.Mux()
}

// ingest accepts one frame-to-host envelope per request.
func (g *Gateway) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}
	msg, err := protocol.Decode(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	origin := r.Header.Get("Origin")

	g.mu.Lock()
	g.lastOrigin = origin
	h := g.handler
	g.mu.Unlock()

	if h == nil {
		http.Error(w, "no session", http.StatusConflict)
		return
	}
	h(msg, origin)
	w.WriteHeader(http.StatusAccepted)
}

// poll drains queued host-to-frame envelopes, blocking up to the poll
// timeout for the first one. No content means try again.
func (g *Gateway) poll(w http.ResponseWriter, r *http.Request) {
	timer := time.NewTimer(g.pollTimeout)
	defer timer.Stop()

	var batch []protocol.Message
	select {
	case msg := <-g.outbox:
		batch = append(batch, msg)
	drain:
		for {
			select {
			case more := <-g.outbox:
				batch = append(batch, more)
			default:
				break drain
			}
		}
	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return
	case <-g.done:
		w.WriteHeader(http.StatusGone)
		return
	case <-r.Context().Done():
		return
	}

	raw, err := protocol.EncodeBatch(batch)
	if err != nil {
		g.log.Error("encode poll batch failed", zap.Error(err))
		http.Error(w, "encode failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}
