package preview

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for the preview pipeline.
type Observer interface {
	RecordDecode(duration time.Duration, frames, decoded int, err error)
	RecordPageFailure(stage string)
	RecordFormatMismatch()
	RecordTransition(state string)
	RecordResources(delta int)
}

// NopObserver discards all telemetry.
type NopObserver struct{}

func (NopObserver) RecordDecode(time.Duration, int, int, error) {}
func (NopObserver) RecordPageFailure(string)                    {}
func (NopObserver) RecordFormatMismatch()                       {}
func (NopObserver) RecordTransition(string)                     {}
func (NopObserver) RecordResources(int)                         {}

// PrometheusObserver exports pipeline metrics to Prometheus.
type PrometheusObserver struct {
	decodeDuration   *prometheus.HistogramVec
	framesTotal      *prometheus.CounterVec
	pageFailures     *prometheus.CounterVec
	formatMismatches prometheus.Counter
	transitions      *prometheus.CounterVec
	liveResources    prometheus.Gauge
}

// NewPrometheusObserver registers the preview metrics with reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "pms_preview"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	observer := &PrometheusObserver{
		decodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Latency of TIFF decodes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "TIFF frames seen, by whether they decoded.",
		}, []string{"result"}),
		pageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_failures_total",
			Help:      "Pages dropped by the decoder or renderer.",
		}, []string{"stage"}),
		formatMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "format_mismatches_total",
			Help:      "Documents whose declared type disagreed with their content.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Preview session state transitions by target state.",
		}, []string{"state"}),
		liveResources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_resources",
			Help:      "Rendered resources not yet released.",
		}),
	}
	var err error
	if observer.decodeDuration, err = register(reg, observer.decodeDuration); err != nil {
		return nil, err
	}
	if observer.framesTotal, err = register(reg, observer.framesTotal); err != nil {
		return nil, err
	}
	if observer.pageFailures, err = register(reg, observer.pageFailures); err != nil {
		return nil, err
	}
	if observer.formatMismatches, err = register(reg, observer.formatMismatches); err != nil {
		return nil, err
	}
	if observer.transitions, err = register(reg, observer.transitions); err != nil {
		return nil, err
	}
	if observer.liveResources, err = register(reg, observer.liveResources); err != nil {
		return nil, err
	}
	return observer, nil
}

// register adds collector to reg, or returns the collector already
// registered under the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return collector, fmt.Errorf("register preview metric: %w", err)
}

// RecordDecode tracks decode latency and frame outcomes.
func (o *PrometheusObserver) RecordDecode(duration time.Duration, frames, decoded int, err error) {
	if o == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.decodeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	o.framesTotal.WithLabelValues("decoded").Add(float64(decoded))
	if skipped := frames - decoded; skipped > 0 {
		o.framesTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}

func (o *PrometheusObserver) RecordPageFailure(stage string) {
	if o == nil {
		return
	}
	o.pageFailures.WithLabelValues(stage).Inc()
}

func (o *PrometheusObserver) RecordFormatMismatch() {
	if o == nil {
		return
	}
	o.formatMismatches.Inc()
}

func (o *PrometheusObserver) RecordTransition(state string) {
	if o == nil {
		return
	}
	o.transitions.WithLabelValues(state).Inc()
}

func (o *PrometheusObserver) RecordResources(delta int) {
	if o == nil {
		return
	}
	o.liveResources.Add(float64(delta))
}
