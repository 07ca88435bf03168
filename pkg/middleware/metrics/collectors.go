// middleware/metrics/collectors.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "framelink_messages_dispatched_total", Help: "messages classified by the host dispatcher"},
		[]string{"type"},
	)

	requestTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "framelink_request_timeouts_total", Help: "frame requests settled by expiry"},
	)

	capabilityRequests = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "framelink_capability_requests_total", Help: "capability negotiations answered"},
	)

	cartResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "framelink_cart_responses_total", Help: "cart responses by result"},
		[]string{"result"},
	)

	sessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "framelink_sessions_open", Help: "currently open widget sessions"},
	)
)

func init() {
	prometheus.MustRegister(
		messagesDispatched,
		requestTimeouts,
		capabilityRequests,
		cartResponses,
		sessionsOpen,
	)
}

func ObserveDispatch(msgType string)   { messagesDispatched.WithLabelValues(msgType).Inc() }
func ObserveTimeout()                  { requestTimeouts.Inc() }
func ObserveCapabilityRequest()        { capabilityRequests.Inc() }
func ObserveSessionOpen()              { sessionsOpen.Inc() }
func ObserveSessionClose()             { sessionsOpen.Dec() }

func ObserveCartResponse(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	cartResponses.WithLabelValues(result).Inc()
}
