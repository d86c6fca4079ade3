package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus records observations as Prometheus counters.
type Prometheus struct {
	cacheRequests *prometheus.CounterVec
	cacheErrors   *prometheus.CounterVec
	cacheWrites   *prometheus.CounterVec
	fanOut        *prometheus.CounterVec
	trimmed       prometheus.Counter
}

// NewPrometheus creates the collectors under namespace and registers them with reg.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Read-through cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Cache store errors by layer and operation.",
		}, []string{"layer", "op"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "write_failures_total",
			Help:      "Best-effort cache writes that were dropped.",
		}, []string{"layer"}),
		fanOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "appends_total",
			Help:      "Feed fan-out appends by stream kind and result.",
		}, []string{"stream", "result"}),
		trimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "trimmed_total",
			Help:      "Activity records removed by the retention policy.",
		}),
	}

	for _, c := range []prometheus.Collector{p.cacheRequests, p.cacheErrors, p.cacheWrites, p.fanOut, p.trimmed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) CacheHit(layer string) {
	p.cacheRequests.WithLabelValues(layer, "hit").Inc()
}

func (p *Prometheus) CacheMiss(layer string) {
	p.cacheRequests.WithLabelValues(layer, "miss").Inc()
}

func (p *Prometheus) CacheError(layer, op string) {
	p.cacheErrors.WithLabelValues(layer, op).Inc()
}

func (p *Prometheus) CacheWriteFailure(layer string) {
	p.cacheWrites.WithLabelValues(layer).Inc()
}

func (p *Prometheus) FanOutAppend(stream string) {
	p.fanOut.WithLabelValues(stream, "ok").Inc()
}

func (p *Prometheus) FanOutFailure(stream string) {
	p.fanOut.WithLabelValues(stream, "failed").Inc()
}

func (p *Prometheus) FeedTrimmed(removed int64) {
	if removed > 0 {
		p.trimmed.Add(float64(removed))
	}
}
