package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	uploads        prometheus.Counter
	uploadBytes    prometheus.Counter
	uploadErrors   prometheus.Counter
	downloads      prometheus.Counter
	downloadErrors prometheus.Counter
	shares         *prometheus.CounterVec
	logins         *prometheus.CounterVec
	registrations  prometheus.Counter
}

// NewMetrics registers the collectors. liveSessions backs the live session gauge.
func NewMetrics(liveSessions func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfs_requests_total",
			Help: "Total number of HTTP requests by status class.",
		}, []string{"class"}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_uploads_total",
			Help: "Total number of stored uploads.",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_upload_bytes_total",
			Help: "Total bytes stored by uploads.",
		}),
		uploadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_upload_errors_total",
			Help: "Total number of failed uploads.",
		}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_downloads_total",
			Help: "Total number of served downloads.",
		}),
		downloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_download_errors_total",
			Help: "Total number of failed downloads.",
		}),
		shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfs_shares_total",
			Help: "Total number of share requests by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfs_logins_total",
			Help: "Total number of login attempts by result.",
		}, []string{"result"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_registrations_total",
			Help: "Total number of registered users.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.uploads, m.uploadBytes, m.uploadErrors,
		m.downloads, m.downloadErrors, m.shares, m.logins, m.registrations,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sfs_live_sessions",
			Help: "Number of connected live channel sessions.",
		}, liveSessions),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts a response by status class, e.g. "2xx".
func (m *Metrics) RecordRequest(status int) {
	m.requests.WithLabelValues(strconv.Itoa(status/100) + "xx").Inc()
}

func (m *Metrics) RecordUpload(bytes int64) {
	m.uploads.Inc()
	m.uploadBytes.Add(float64(bytes))
}

func (m *Metrics) RecordUploadError() { m.uploadErrors.Inc() }

func (m *Metrics) RecordDownload() { m.downloads.Inc() }

func (m *Metrics) RecordDownloadError() { m.downloadErrors.Inc() }

func (m *Metrics) RecordShare(duplicate bool) {
	result := "created"
	if duplicate {
		result = "duplicate"
	}
	m.shares.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLogin(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRegistration() { m.registrations.Inc() }
