package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docspace_http_requests_total",
		Help: "HTTP 请求总数",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docspace_http_request_duration_seconds",
		Help:    "HTTP 请求耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// AccessChecks 按能力和结论统计权限判定
	AccessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docspace_access_checks_total",
		Help: "权限判定次数",
	}, []string{"capability", "decision"})

	QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docspace_quota_rejections_total",
		Help: "因配额不足被拒绝的写入次数",
	})

	// ExportJobs 按终态统计导出任务
	ExportJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docspace_export_jobs_total",
		Help: "导出任务结束次数",
	}, []string{"status"})

	ExportFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docspace_export_files_total",
		Help: "导出时处理的文件数",
	}, []string{"result"})

	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docspace_export_duration_seconds",
		Help:    "导出任务从开始处理到结束的耗时",
		Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900, 3600},
	})
)

func Decision(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}

// GinMiddleware 记录请求数和耗时，path 使用路由模板避免标签爆炸
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
