// middleware/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "framelink_gateway_response_time",
			Help:    "frame gateway response time.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	totalHTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "framelink_gateway_requests_total", Help: "gateway requests by code, uri and method"},
		[]string{"code", "uri", "method"},
	)
)

// Collect instruments frame-gateway HTTP traffic.
func Collect() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			startTime := time.Now()

			defer func() {
				if r.URL.Path != "/metrics" {
					code := strconv.Itoa(ww.Status())
					uri := r.URL.Path // path only; avoid cardinality explosion
					totalHTTPRequests.WithLabelValues(code, uri, r.Method).Inc()
					responseTime.Observe(time.Since(startTime).Seconds())
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func NewPromHttpHandler() http.Handler { return promhttp.Handler() }
func ProvideMetrics() http.Handler     { return NewPromHttpHandler() }

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHTTPRequests,
	)
}

var Module = fx.Options(
	fx.Provide(ProvideMetrics),
)
