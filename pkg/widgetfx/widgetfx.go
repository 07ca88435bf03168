// pkg/widgetfx/widgetfx.go
package widgetfx

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/adapter"
	"github.com/framelink/framelink-core/pkg/config"
	"github.com/framelink/framelink-core/pkg/middleware/auth"
	"github.com/framelink/framelink-core/pkg/middleware/logger"
	"github.com/framelink/framelink-core/pkg/middleware/metrics"
	"github.com/framelink/framelink-core/pkg/relay"
	"github.com/framelink/framelink-core/pkg/transport/httpx"
	"github.com/framelink/framelink-core/pkg/widget"
)

// Options allow per-deployment env keys/defaults without code duplication.
type Options struct {
	Service       string // e.g. "storefront-widget"
	ConfigEnv     string // e.g. "FRAMELINK_CONFIG"
	DefaultConfig string // e.g. "framelink.toml"
	ListenAddrEnv string // e.g. "GATEWAY_LISTEN_ADDRESS"
	DefaultListen string // e.g. ":4600"
	TLSCertEnv    string // e.g. "SSL_SERVER_CERTIFICATE"
	TLSKeyEnv     string // e.g. "SSL_SERVER_KEY"

	// Detect resolves the platform adapter from host-page characteristics
	// when capability requests carry no hint. Optional.
	Detect adapter.Detector
}

// ---- Config ----

func provideConfig(opts Options, log *zap.Logger) config.Config {
	path := envOr(opts.ConfigEnv, opts.DefaultConfig)
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("config file missing, using defaults", zap.String("path", path))
			return config.Default()
		}
		log.Fatal("config load failed", zap.Error(err), zap.String("path", path))
	}
	return cfg
}

// ---- Widget + gateway ----

func provideRelay(log *zap.Logger) relay.Client {
	c, err := relay.NewPublisherFromEnv()
	if err != nil {
		log.Error("relay unavailable, telemetry disabled",
			zap.String("FRAMELINK_RELAY_TARGET", os.Getenv("FRAMELINK_RELAY_TARGET")),
			zap.Error(err),
		)
		return relay.Noop()
	}
	return c
}

func provideWidget(opts Options, cfg config.Config, log *zap.Logger, rc relay.Client) *widget.Widget {
	return widget.New(cfg, log, rc, opts.Detect)
}

func provideGateway(opts Options, cfg config.Config, log *zap.Logger) *httpx.Gateway {
	return httpx.NewGateway(opts.Service, cfg.Gateway.PollTimeout(), log)
}

type routerDeps struct {
	fx.In

	Opts Options
	Cfg  config.Config

	AuthMW *auth.Middleware
	LogMW  *logger.Middleware

	Metrics http.Handler `name:"metrics"`

	Gateway *httpx.Gateway
	Widget  *widget.Widget
	R       httpx.Router
	Log     *zap.Logger
}

func provideAppHandler(d routerDeps) http.Handler {
	return d.Gateway.Routes(d.R, d.AuthMW, d.LogMW, d.Metrics)
}

// ---- Server lifecycle ----

type serverDeps struct {
	fx.In
	Opts    Options
	Cfg     config.Config
	Logger  *zap.Logger
	Gateway *httpx.Gateway
	Widget  *widget.Widget
	App     http.Handler `name:"app"`
}

func registerHooks(lc fx.Lifecycle, d serverDeps) {
	addr := envOr(d.Opts.ListenAddrEnv, d.Opts.DefaultListen)
	if addr == "" {
		addr = d.Cfg.Gateway.Listen
	}
	cert := os.Getenv(d.Opts.TLSCertEnv)
	key := os.Getenv(d.Opts.TLSKeyEnv)

	srv := &http.Server{
		Addr:         addr,
		Handler:      d.App,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS13, MaxVersion: tls.VersionTLS13},
	}
	useTLS := fileExists(cert) && fileExists(key)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// The gateway is the session channel; opening the widget on it
			// makes the host side ready before the first frame connects.
			d.Widget.Open(ctx, d.Gateway)

			if useTLS {
				d.Logger.Info("gateway starting (TLS)",
					zap.String("service", d.Opts.Service),
					zap.String("addr", addr),
					zap.String("cert", cert),
				)
				go func() {
					if err := srv.ListenAndServeTLS(cert, key); err != nil && err != http.ErrServerClosed {
						d.Logger.Fatal("gateway failed", zap.Error(err))
					}
				}()
			} else {
				d.Logger.Info("gateway starting (PLAINTEXT)",
					zap.String("service", d.Opts.Service),
					zap.String("addr", addr),
				)
				go func() {
					srv.TLSConfig = nil
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						d.Logger.Fatal("gateway failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("gateway stopping", zap.String("service", d.Opts.Service))
			d.Widget.Close(ctx)
			return srv.Shutdown(ctx)
		},
	})
}

// ---- Public Fx module ----

func Module(opts Options) fx.Option {
	return fx.Options(
		// Supply options to DI.
		fx.Supply(opts),

		// Middleware modules
		auth.Module,
		logger.Module,

		// Metrics (named)
		fx.Provide(fx.Annotate(metrics.ProvideMetrics, fx.ResultTags(`name:"metrics"`))),

		// Router implementation
		fx.Provide(httpx.NewChi),

		// Widget wiring
		fx.Provide(provideConfig),
		fx.Provide(provideRelay),
		fx.Provide(provideWidget),
		fx.Provide(provideGateway),

		// Gateway handler (named "app")
		fx.Provide(
			fx.Annotate(
				provideAppHandler,
				fx.ResultTags(`name:"app"`),
			),
		),

		// App lifecycle (opens the widget session + HTTP server)
		fx.Invoke(registerHooks),
	)
}

// ---- helpers ----

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
