package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts remote requests and bulk item outcomes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	rateLimited prometheus.Counter
	items       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mdbulk",
			Name:      "api_requests_total",
			Help:      "Requests sent to the catalog API by method and response status.",
		}, []string{"method", "status"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mdbulk",
			Name:      "api_rate_limited_total",
			Help:      "Responses with status 429.",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mdbulk",
			Name:      "bulk_items_total",
			Help:      "Bulk operation items by action and outcome.",
		}, []string{"action", "outcome"}),
	}
	reg.MustRegister(m.requests, m.rateLimited, m.items)
	return m
}

func (m *Metrics) Request(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) Item(action, outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(action, outcome).Inc()
}

// Serve exposes the registry on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
