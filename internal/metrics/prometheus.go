package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PrometheusBackend collects metrics in a private registry. Flush writes a
// node-exporter textfile and/or pushes to a Pushgateway, whichever is set.
type PrometheusBackend struct {
	reg *prometheus.Registry

	textfile   string
	gatewayURL string
	job        string

	steps     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	records   *prometheus.CounterVec
	rows      prometheus.Counter
	quality   *prometheus.CounterVec
}

// PrometheusOptions configures where Flush sends metrics.
type PrometheusOptions struct {
	Textfile   string
	GatewayURL string
	Job        string
}

// NewPrometheusBackend registers the engine's collectors.
func NewPrometheusBackend(opts PrometheusOptions) (*PrometheusBackend, error) {
	if opts.Job == "" {
		opts.Job = "profit_engine"
	}
	b := &PrometheusBackend{
		reg:        prometheus.NewRegistry(),
		textfile:   opts.Textfile,
		gatewayURL: opts.GatewayURL,
		job:        opts.Job,
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: StepTotal,
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    StepDuration,
			Help:    "Pipeline step duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: RecordsTotal,
			Help: "Volume records by outcome.",
		}, []string{"outcome"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: RowsTotal,
			Help: "Report rows emitted.",
		}),
		quality: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: DataQualityHits,
			Help: "Non-fatal data-quality signals by kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{b.steps, b.durations, b.records, b.rows, b.quality} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register collector: %w", err)
		}
	}
	return b, nil
}

// Gatherer exposes the registry for scraping and tests.
func (b *PrometheusBackend) Gatherer() prometheus.Gatherer {
	return b.reg
}

func (b *PrometheusBackend) IncCounter(name string, delta float64, labels Labels) {
	switch name {
	case StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case RecordsTotal:
		b.records.WithLabelValues(labels["outcome"]).Add(delta)
	case RowsTotal:
		b.rows.Add(delta)
	case DataQualityHits:
		b.quality.WithLabelValues(labels["kind"]).Add(delta)
	}
}

func (b *PrometheusBackend) ObserveHistogram(name string, value float64, labels Labels) {
	if name != StepDuration {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush writes the textfile and pushes to the gateway when configured.
func (b *PrometheusBackend) Flush() error {
	if b.textfile != "" {
		if err := prometheus.WriteToTextfile(b.textfile, b.reg); err != nil {
			return fmt.Errorf("metrics: write textfile: %w", err)
		}
	}
	if b.gatewayURL != "" {
		if err := push.New(b.gatewayURL, b.job).Gatherer(b.reg).Push(); err != nil {
			return fmt.Errorf("metrics: push: %w", err)
		}
	}
	return nil
}
