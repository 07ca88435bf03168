// pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/framelink/framelink-core/pkg/transport"
)

type Config struct {
	Widget  WidgetConfig  `toml:"widget"`
	Origin  OriginConfig  `toml:"origin"`
	Relay   RelayConfig   `toml:"relay"`
	Gateway GatewayConfig `toml:"gateway"`
}

type WidgetConfig struct {
	// RequestTimeoutMS bounds every frame request; 0 picks the correlator
	// default (10s).
	RequestTimeoutMS int `toml:"request_timeout_ms"`

	// AdapterHint names the platform adapter when host-page detection is not
	// wanted. Capability requests may still override it per request.
	AdapterHint string `toml:"adapter_hint"`
}

type OriginConfig struct {
	// Mode is "any" (reference behavior) or "allowlist".
	Mode  string   `toml:"mode"`
	Allow []string `toml:"allow"`
}

type RelayConfig struct {
	// Topic for session/cart telemetry events. Empty disables publishing.
	Topic string `toml:"topic"`
}

type GatewayConfig struct {
	Listen        string `toml:"listen"`
	PollTimeoutMS int    `toml:"poll_timeout_ms"`
}

func Default() Config {
	return Config{
		Origin:  OriginConfig{Mode: "any"},
		Gateway: GatewayConfig{Listen: ":4600", PollTimeoutMS: 25000},
	}
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Origin.Mode {
	case "", "any":
	case "allowlist":
		if len(c.Origin.Allow) == 0 {
			return fmt.Errorf("config: origin.mode allowlist requires origin.allow entries")
		}
	default:
		return fmt.Errorf("config: unknown origin.mode %q", c.Origin.Mode)
	}
	if c.Widget.RequestTimeoutMS < 0 {
		return fmt.Errorf("config: widget.request_timeout_ms must not be negative")
	}
	if c.Gateway.PollTimeoutMS < 0 {
		return fmt.Errorf("config: gateway.poll_timeout_ms must not be negative")
	}
	return nil
}

func (w WidgetConfig) RequestTimeout() time.Duration {
	return time.Duration(w.RequestTimeoutMS) * time.Millisecond
}

func (g GatewayConfig) PollTimeout() time.Duration {
	return time.Duration(g.PollTimeoutMS) * time.Millisecond
}

// Policy materializes the configured origin check.
func (o OriginConfig) Policy() transport.OriginPolicy {
	if o.Mode == "allowlist" {
		return transport.Allowlist(o.Allow...)
	}
	return transport.AllowAny
}
