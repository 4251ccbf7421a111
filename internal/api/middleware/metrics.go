package middleware

import (
	"net/http"
	"strings"
	"sync/atomic"
)

// MetricsCollector counts requests overall and per verification-core
// operation. Counters are monotonic since process start.
type MetricsCollector struct {
	requests    atomic.Int64
	errors      atomic.Int64
	verifies    atomic.Int64
	gateChecks  atomic.Int64
	resolutions atomic.Int64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// MetricsSnapshot is a point-in-time copy of the collector's counters.
type MetricsSnapshot struct {
	Requests    int64 `json:"request_count"`
	Errors      int64 `json:"error_count"`
	Verifies    int64 `json:"verification_count"`
	GateChecks  int64 `json:"gate_check_count"`
	Resolutions int64 `json:"resolution_count"`
}

func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:    mc.requests.Load(),
		Errors:      mc.errors.Load(),
		Verifies:    mc.verifies.Load(),
		GateChecks:  mc.gateChecks.Load(),
		Resolutions: mc.resolutions.Load(),
	}
}

// Middleware counts the request, classifies it by route, and counts 4xx/5xx
// responses as errors.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requests.Add(1)

		if r.Method == http.MethodPost {
			switch {
			case r.URL.Path == "/v1/verify":
				mc.verifies.Add(1)
			case r.URL.Path == "/v1/gate/check":
				mc.gateChecks.Add(1)
			case strings.HasSuffix(r.URL.Path, "/resolve"), strings.HasSuffix(r.URL.Path, "/auto"):
				mc.resolutions.Add(1)
			}
		}

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errors.Add(1)
		}
	})
}
