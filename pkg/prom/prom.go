package prom

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	xhttp "github.com/wavecast/broadcast-gateway/pkg/http"
	"github.com/wavecast/broadcast-gateway/pkg/logger"
)

const (
	SystemDispatch = "dispatch"
	SystemChannel  = "channel"
)

const (
	MetricJobsTotal           = "jobs_total"
	MetricSendDurationSeconds = "send_duration_seconds"
	MetricRetriesTotal        = "retries_total"
	MetricQueueDepth          = "queue_depth"
	MetricSessionStatus       = "session_status"
	MetricInboundTotal        = "inbound_messages_total"
)

var createLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var counterVecs = make(map[string]*prometheus.CounterVec)
var counters = make(map[string]prometheus.Counter)
var histograms = make(map[string]prometheus.Histogram)
var gaugeVecs = make(map[string]*prometheus.GaugeVec)

var defaultLabels prometheus.Labels

// Create registers the gateway's metric set under the given namespace.
func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounterVec(SystemDispatch, MetricJobsTotal, []string{"outcome"}))
	hasError(createHistogram(SystemDispatch, MetricSendDurationSeconds))
	hasError(createCounter(SystemDispatch, MetricRetriesTotal))
	hasError(createGaugeVec(SystemDispatch, MetricQueueDepth, []string{"queue"}))
	hasError(createGaugeVec(SystemChannel, MetricSessionStatus, []string{"workspace", "status"}))
	hasError(createCounter(SystemChannel, MetricInboundTotal))

	return err
}

func ListenAndServer(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

// IncJobOutcome counts one finished dispatch attempt; outcome is
// "success", "retry" or "failed".
func IncJobOutcome(outcome string) {
	if !MetricSystemEnabled {
		return
	}
	if c, ok := counterVecs[SystemDispatch+MetricJobsTotal]; ok {
		c.WithLabelValues(outcome).Inc()
	}
}

func ObserveSendDuration(seconds float64) {
	if !MetricSystemEnabled {
		return
	}
	if h, ok := histograms[SystemDispatch+MetricSendDurationSeconds]; ok {
		h.Observe(seconds)
	}
}

func IncRetries() {
	if !MetricSystemEnabled {
		return
	}
	if c, ok := counters[SystemDispatch+MetricRetriesTotal]; ok {
		c.Inc()
	}
}

func SetQueueDepth(queue string, depth float64) {
	if !MetricSystemEnabled {
		return
	}
	if g, ok := gaugeVecs[SystemDispatch+MetricQueueDepth]; ok {
		g.WithLabelValues(queue).Set(depth)
	}
}

// SetSessionStatus marks exactly one status gauge as 1 for a workspace.
func SetSessionStatus(workspace, status string) {
	if !MetricSystemEnabled {
		return
	}
	g, ok := gaugeVecs[SystemChannel+MetricSessionStatus]
	if !ok {
		return
	}
	for _, s := range []string{"disconnected", "connecting", "qr_ready", "connected"} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		g.WithLabelValues(workspace, s).Set(v)
	}
}

func IncInbound() {
	if !MetricSystemEnabled {
		return
	}
	if c, ok := counters[SystemChannel+MetricInboundTotal]; ok {
		c.Inc()
	}
}

func createCounter(subsystem, name string) error {
	createLock.Lock()
	defer createLock.Unlock()
	counters[subsystem+name] = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	})
	return prometheus.Register(counters[subsystem+name])
}

func createCounterVec(subsystem, name string, labels []string) error {
	createLock.Lock()
	defer createLock.Unlock()
	counterVecs[subsystem+name] = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(counterVecs[subsystem+name])
}

func createHistogram(subsystem, name string) error {
	createLock.Lock()
	defer createLock.Unlock()
	histograms[subsystem+name] = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	})
	return prometheus.Register(histograms[subsystem+name])
}

func createGaugeVec(subsystem, name string, labels []string) error {
	createLock.Lock()
	defer createLock.Unlock()
	gaugeVecs[subsystem+name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(gaugeVecs[subsystem+name])
}
