package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"method", "endpoint"},
	)

	// 评分流水线各阶段耗时
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each submission pipeline stage",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 180},
		},
		[]string{"stage"},
	)

	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Submission pipeline runs by outcome and failed stage",
		},
		[]string{"outcome", "stage"},
	)

	// 上传成功但后续阶段失败、没有对应成绩记录的对象
	OrphanedObjects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_orphaned_objects_total",
			Help: "Media objects stored without a recorded attempt",
		},
	)

	ChunksReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_chunks_received_total",
			Help: "Number of upload chunks written to scratch storage",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(PipelineRuns)
	prometheus.MustRegister(OrphanedObjects)
	prometheus.MustRegister(ChunksReceived)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
