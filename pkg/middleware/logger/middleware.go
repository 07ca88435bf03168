package logger

import (
	"net/http"
	"strings"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/framelink/framelink-core/pkg/middleware/auth"
)

type Middleware struct{}

// Middleware logs one line per gateway request. Envelope bodies are never
// logged; they can carry cart contents.
func (m *Middleware) Middleware(fa *auth.Middleware) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := gatewayAccessLogger

			ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)

			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}

			start := time.Now()
			defer func() {
				lat := time.Since(start)

				// nil-safe frame identity lookup
				sessionID := ""
				frameOrigin := ""
				if fa != nil {
					id := fa.Identity(r.Context())
					sessionID = id.SessionID
					frameOrigin = id.Origin
				}

				l.Info("gateway request",
					zap.String("dateTime", start.UTC().Format(time.RFC1123)),
					zap.String("requestId", chimd.GetReqID(r.Context())),
					zap.String("httpScheme", scheme),
					zap.String("sessionId", sessionID),
					zap.String("frameOrigin", frameOrigin),
					zap.String("httpMethod", r.Method),
					zap.String("remoteAddr", remoteHost(r)),
					zap.String("uri", r.URL.Path),
					zap.Duration("lat", lat),
					zap.Int("responseSize", ww.BytesWritten()),
					zap.Int("status", ww.Status()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	if i := strings.LastIndex(r.RemoteAddr, ":"); i > 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
