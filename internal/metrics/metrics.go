// Package metrics 定义 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics 上传、分析、对比与导出的指标
type Metrics struct {
	Uploads          *prometheus.CounterVec
	ActiveUploads    prometheus.Gauge
	AnalyzeDuration  prometheus.Histogram
	SheetsExtracted  *prometheus.CounterVec
	RecordsExtracted prometheus.Counter
	Comparisons      *prometheus.CounterVec
	GroupsCompared   prometheus.Histogram
	Exports          *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New 在 reg 上注册全部指标；reg 为 nil 时使用默认 Registerer
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xuwei_uploads_total",
			Help: "Uploaded workbooks by result",
		}, []string{"result"}),
		ActiveUploads: f.NewGauge(prometheus.GaugeOpts{
			Name: "xuwei_active_uploads",
			Help: "Workbooks currently held in the upload registry",
		}),
		AnalyzeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "xuwei_analyze_duration_seconds",
			Help:    "Duration of workbook analysis (all sheets)",
			Buckets: durationBuckets,
		}),
		SheetsExtracted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xuwei_sheets_extracted_total",
			Help: "Extracted sheets by result",
		}, []string{"result"}),
		RecordsExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "xuwei_records_extracted_total",
			Help: "Records extracted from all sheets",
		}),
		Comparisons: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xuwei_comparisons_total",
			Help: "Comparisons by result",
		}, []string{"result"}),
		GroupsCompared: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "xuwei_compare_groups",
			Help:    "Person groups produced per comparison",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xuwei_exports_total",
			Help: "Exports by mode",
		}, []string{"mode"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xuwei_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xuwei_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: durationBuckets,
		}, []string{"method", "route"}),
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// IncUpload 记录一次上传
func (m *Metrics) IncUpload(ok bool) {
	m.Uploads.WithLabelValues(resultLabel(ok)).Inc()
}

// SetActiveUploads 更新内存中上传文件数量
func (m *Metrics) SetActiveUploads(n int) {
	m.ActiveUploads.Set(float64(n))
}

// ObserveAnalyze 记录一次分析耗时，start 为开始时间
func (m *Metrics) ObserveAnalyze(start time.Time) {
	m.AnalyzeDuration.Observe(time.Since(start).Seconds())
}

// IncSheet 记录单个 Sheet 的抽取结果
func (m *Metrics) IncSheet(ok bool, records int) {
	m.SheetsExtracted.WithLabelValues(resultLabel(ok)).Inc()
	m.RecordsExtracted.Add(float64(records))
}

// ObserveCompare 记录一次对比
func (m *Metrics) ObserveCompare(ok bool, groups int) {
	m.Comparisons.WithLabelValues(resultLabel(ok)).Inc()
	if ok {
		m.GroupsCompared.Observe(float64(groups))
	}
}

// IncExport 记录一次导出
func (m *Metrics) IncExport(mode string) {
	m.Exports.WithLabelValues(mode).Inc()
}

// ObserveHTTP 记录一次 HTTP 请求
func (m *Metrics) ObserveHTTP(method, route string, status int, start time.Time) {
	m.HTTPRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
