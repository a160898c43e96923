// Package metrics exposes delivery counters for Prometheus.
// All methods are safe on nil *Metrics, so tests and disabled setups pass nil.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/radmon/devclient/log2"
)

const namespace = "devclient"

type Metrics struct {
	registry *prometheus.Registry

	Attempts      prometheus.Counter
	Delivered     prometheus.Counter
	Failed        prometheus.Counter
	Buffered      prometheus.Counter
	PersistErrors prometheus.Counter
	LogErrors     prometheus.Counter
	QueueLength   prometheus.Gauge
	SendDuration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "send_attempts_total",
			Help: "Network send attempts, including retries",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "readings_delivered_total",
			Help: "Readings acknowledged by the collection endpoint",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "readings_failed_total",
			Help: "Send calls that exhausted retry budget",
		}),
		Buffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "readings_buffered_total",
			Help: "New readings appended to durable buffer",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "buffer_persist_errors_total",
			Help: "Failed durable buffer writes",
		}),
		LogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "log_errors_total",
			Help: "Error level log messages",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "buffer_length",
			Help: "Readings currently waiting in durable buffer",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "send_duration_seconds",
			Help:    "Duration of Send including retries and backoff",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	m.registry.MustRegister(
		m.Attempts,
		m.Delivered,
		m.Failed,
		m.Buffered,
		m.PersistErrors,
		m.LogErrors,
		m.QueueLength,
		m.SendDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncAttempt() {
	if m != nil {
		m.Attempts.Inc()
	}
}

func (m *Metrics) ObserveSend(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	if ok {
		m.Delivered.Inc()
	} else {
		m.Failed.Inc()
	}
	m.SendDuration.Observe(d.Seconds())
}

func (m *Metrics) IncBuffered() {
	if m != nil {
		m.Buffered.Inc()
	}
}

func (m *Metrics) IncPersistError() {
	if m != nil {
		m.PersistErrors.Inc()
	}
}

// suitable for log2.SetErrorFunc
func (m *Metrics) OnLogError(error) {
	if m != nil {
		m.LogErrors.Inc()
	}
}

func (m *Metrics) SetQueueLength(n int) {
	if m != nil {
		m.QueueLength.Set(float64(n))
	}
}

// Serve blocks until ctx is done. Empty addr disables.
func (m *Metrics) Serve(ctx context.Context, log *log2.Log, addr string) error {
	if m == nil || addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "metrics listen=%s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	log.Infof("metrics serving http://%s/metrics", ln.Addr())
	if err = srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.Annotate(err, "metrics serve")
	}
	return nil
}
