package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-graph-cache/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configure NewRouter.
type RouterOptions struct {
	// Namespace prefixes the HTTP metrics.
	Namespace string
	// Registry receives the HTTP metrics and is served on /metrics. Nil
	// disables both.
	Registry *prometheus.Registry
	// TrustHeaders installs TrustedHeaders.
	TrustHeaders bool
	Logger       logger.Logger
	Middleware   []gin.HandlerFunc
}

// NewRouter builds the gin engine serving h.
func NewRouter(h *Handler, opts RouterOptions) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(logger.OrNop(opts.Logger)))

	if opts.Registry != nil {
		mw, err := requestMetrics(opts.Namespace, opts.Registry)
		if err != nil {
			return nil, err
		}
		r.Use(mw)
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}
	if opts.TrustHeaders {
		r.Use(TrustedHeaders())
	}
	r.Use(opts.Middleware...)

	h.RegisterRoutes(r)
	return r, nil
}

func requestMetrics(namespace string, reg prometheus.Registerer) (gin.HandlerFunc, error) {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "HTTP requests being served.",
	})
	for _, c := range []prometheus.Collector{duration, inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		inFlight.Inc()
		defer func() {
			inFlight.Dec()
			route := c.FullPath()
			if route == "" {
				route = "unknown"
			}
			duration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
				Observe(time.Since(start).Seconds())
		}()
		c.Next()
	}, nil
}

func requestLog(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug("request served",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("took", time.Since(start)))
	}
}
