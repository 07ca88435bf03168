// pkg/capability/resolver.go
package capability

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/adapter"
	"github.com/framelink/framelink-core/pkg/engine"
	"github.com/framelink/framelink-core/pkg/protocol"
)

// NameCart is the one capability family this build understands. Dotted forms
// ("cart.list", "cart.add", ...) resolve per adapter method; anything else is
// unavailable.
const NameCart = "cart"

var opMethods = map[string]string{
	"list":   "listCart",
	"add":    "addToCart",
	"update": "updateCart",
	"remove": "removeCart",
	"clear":  "clearCart",
}

// Resolver answers capability negotiation by lazily loading the platform
// adapter and its engine. The engine is constructed at most once per session
// and memoized; a later request reuses it without touching the loader again.
type Resolver struct {
	log    *zap.Logger
	detect adapter.Detector

	mu  sync.Mutex
	ad  adapter.Adapter
	eng engine.Engine
}

func NewResolver(log *zap.Logger, detect adapter.Detector) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log, detect: detect}
}

// Resolve produces one CapabilitySet for one request. Load failures of any
// kind degrade to false; they are never surfaced to the caller as errors.
func (r *Resolver) Resolve(ctx context.Context, names []string, hint string) protocol.CapabilitySet {
	set := make(protocol.CapabilitySet, len(names))
	for _, name := range names {
		set[name] = r.available(ctx, name, hint)
	}
	return set
}

func (r *Resolver) available(ctx context.Context, name, hint string) bool {
	if name == NameCart {
		return r.ensure(ctx, hint) != nil
	}
	if op, ok := strings.CutPrefix(name, NameCart+"."); ok {
		method := opMethods[op]
		if method == "" || r.ensure(ctx, hint) == nil {
			return false
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		return adapter.Methods(r.ad)[method]
	}
	return false
}

// ensure loads the adapter and engine on first use and memoizes them for the
// session. Returns nil when no adapter name is known or loading fails.
func (r *Resolver) ensure(ctx context.Context, hint string) engine.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eng != nil {
		return r.eng
	}

	name := hint
	if name == "" && r.detect != nil {
		if detected, ok := r.detect(); ok {
			name = detected
		}
	}
	if name == "" {
		return nil
	}

	ad, err := adapter.Load(ctx, name)
	if err != nil {
		r.log.Warn("adapter load failed", zap.String("adapter", name), zap.Error(err))
		return nil
	}
	eng := engine.NewCart(r.log)
	if err := eng.Initialize(ctx, ad); err != nil {
		r.log.Warn("engine init failed", zap.String("adapter", name), zap.Error(err))
		return nil
	}
	r.ad = ad
	r.eng = eng
	return r.eng
}

// Engine returns the memoized engine, or nil before the first successful load.
func (r *Resolver) Engine() engine.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eng
}

// Platform names the loaded adapter's platform, or "" before a load.
func (r *Resolver) Platform() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ad == nil {
		return ""
	}
	return r.ad.Platform()
}

// Reset drops the memoized adapter and engine. Called on session close so the
// next session loads fresh.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.ad = nil
	r.eng = nil
	r.mu.Unlock()
}
