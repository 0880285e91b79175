package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

const namespace = "skillmarket"

// Collectors holds every skillmarket metric. It implements marketplace.Recorder.
type Collectors struct {
	transitions  *prometheus.CounterVec
	opErrors     *prometheus.CounterVec
	verification prometheus.Histogram
	releases     prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_transitions_total",
			Help:      "Listing status transitions",
		}, []string{"from", "to"}),
		opErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed marketplace operations by error kind",
		}, []string{"op", "kind"}),
		verification: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_verification_seconds",
			Help:      "Payment rail verification latency",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),
		releases: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escrow_releases_total",
			Help:      "Escrows released on completion",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"method", "route"}),
	}
}

func (c *Collectors) Transition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collectors) OperationError(op, kind string) {
	c.opErrors.WithLabelValues(op, kind).Inc()
}

func (c *Collectors) VerificationDuration(d time.Duration) {
	c.verification.Observe(d.Seconds())
}

func (c *Collectors) EscrowReleased() {
	c.releases.Inc()
}

// Middleware records request counts and latency keyed by the route pattern.
func (c *Collectors) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			c.httpRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Response().Status)).Inc()
			c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

var _ marketplace.Recorder = (*Collectors)(nil)
