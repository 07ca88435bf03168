// pkg/relay/relay.go
package relay

// Publish-only telemetry relay implemented with Electrician builder
// primitives. Internals are hidden: no builder.* types are stored on the
// struct. Widget sessions publish lifecycle and cart-operation events here;
// nothing in the request/response path depends on the relay being up.

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joeydtaylor/electrician/pkg/builder"
)

// Event is the byte-level publish envelope.
type Event struct {
	Topic   string
	Body    []byte
	Headers map[string]string
}

// Client is the minimal interface the widget needs.
type Client interface {
	Publish(ctx context.Context, ev Event) error
}

// noopClient accepts publishes and discards them.
type noopClient struct{}

func (noopClient) Publish(context.Context, Event) error { return nil }

// Noop returns a discard-everything Client.
func Noop() Client { return noopClient{} }

type builderClient struct {
	once   sync.Once
	start  error
	submit func(context.Context, []byte) error // captures wire.Submit
}

// NewPublisherFromEnv returns a publish-capable Client powered by
// Electrician's ForwardRelay[[]byte]. It expects:
//
//	FRAMELINK_RELAY_TARGET      = "host:port[,host2:port2]"   (required)
//
// Optional features (all off by default):
//
//	FRAMELINK_RELAY_TLS_ENABLE  = "true" | "false"
//	FRAMELINK_RELAY_TLS_CRT     = path (default: keys/tls/client.crt)
//	FRAMELINK_RELAY_TLS_KEY     = path (default: keys/tls/client.key)
//	FRAMELINK_RELAY_TLS_CA      = path (default: keys/tls/ca.crt)
//	FRAMELINK_RELAY_COMPRESS    = "snappy" | ""
//	FRAMELINK_RELAY_HEADERS     = "k=v,k2=v2"
//
// If FRAMELINK_RELAY_TARGET is absent, it returns a noop Client.
func NewPublisherFromEnv() (Client, error) {
	raw := strings.TrimSpace(os.Getenv("FRAMELINK_RELAY_TARGET"))
	if raw == "" {
		return noopClient{}, nil
	}
	targets := strings.Split(raw, ",")

	useTLS := strings.EqualFold(os.Getenv("FRAMELINK_RELAY_TLS_ENABLE"), "true")
	tlsCrt := envOr("FRAMELINK_RELAY_TLS_CRT", "keys/tls/client.crt")
	tlsKey := envOr("FRAMELINK_RELAY_TLS_KEY", "keys/tls/client.key")
	tlsCA := envOr("FRAMELINK_RELAY_TLS_CA", "keys/tls/ca.crt")

	useSnappy := strings.EqualFold(os.Getenv("FRAMELINK_RELAY_COMPRESS"), "snappy")
	staticHeaders := parseKV(os.Getenv("FRAMELINK_RELAY_HEADERS"))

	logger := builder.NewLogger(builder.LoggerWithDevelopment(true))

	// Build internals (not stored on the struct; captured by closures).
	ctx := context.Background()
	wire := builder.NewWire[[]byte](ctx, builder.WireWithLogger[[]byte](logger))

	perf := builder.NewPerformanceOptions(useSnappy, builder.COMPRESS_SNAPPY)
	sec := builder.NewSecurityOptions(false, builder.ENCRYPTION_AES_GCM)
	tlsCfg := builder.NewTlsClientConfig(
		useTLS,
		tlsCrt, tlsKey, tlsCA,
		tls.VersionTLS13, tls.VersionTLS13,
	)

	fr := builder.NewForwardRelay[[]byte](
		ctx,
		builder.ForwardRelayWithLogger[[]byte](logger),
		builder.ForwardRelayWithTarget[[]byte](targets...),
		builder.ForwardRelayWithPerformanceOptions[[]byte](perf),
		builder.ForwardRelayWithSecurityOptions[[]byte](sec, ""),
		builder.ForwardRelayWithTLSConfig[[]byte](tlsCfg),
		builder.ForwardRelayWithStaticHeaders[[]byte](staticHeaders),
		builder.ForwardRelayWithInput(wire),
	)

	c := &builderClient{
		submit: func(ctx context.Context, b []byte) error { return wire.Submit(ctx, b) },
	}
	c.once.Do(func() {
		if err := wire.Start(ctx); err != nil {
			c.start = fmt.Errorf("relay wire start: %w", err)
			return
		}
		if err := fr.Start(ctx); err != nil {
			c.start = fmt.Errorf("relay start: %w", err)
			return
		}
	})
	if c.start != nil {
		return nil, c.start
	}
	return c, nil
}

// Publish sends bytes into the pipeline. Topic/headers ride the relay path.
func (c *builderClient) Publish(ctx context.Context, ev Event) error {
	if ev.Topic == "" {
		return fmt.Errorf("relay: missing topic")
	}
	if c.start != nil {
		return c.start
	}
	return c.submit(ctx, ev.Body)
}

// --- small helpers ---

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseKV(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		p := strings.SplitN(kv, "=", 2)
		if len(p) == 2 {
			out[strings.TrimSpace(p[0])] = strings.TrimSpace(p[1])
		}
	}
	return out
}
