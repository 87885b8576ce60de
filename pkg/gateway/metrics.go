package gateway

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedopt_gateway_requests_total",
			Help: "Requests sent to the optimization service by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedopt_gateway_request_duration_seconds",
			Help:    "Round-trip latency of optimization service requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func observe(op string, start time.Time, res *response, err error) {
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(op, outcome(res, err)).Inc()
}

func outcome(res *response, err error) string {
	var gerr *Error
	switch {
	case err == nil:
		return "ok"
	case res == nil:
		return "unreachable"
	case errors.As(err, &gerr) && gerr.StatusCode >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}
