package stats

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "echoes"

// Gauges maintained by the live hub.
const (
	ActiveClients       = "active_clients"
	ActiveSubscriptions = "active_subscriptions"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

type StatsUpdater struct {
	registry   *prometheus.Registry
	gauges     map[string]prometheus.Gauge
	gaugesLock sync.RWMutex
	updateChan chan *metricsUpdateReq
	stop       chan struct{}
	stopOnce   sync.Once
}

type metricsUpdateReq struct {
	name  string
	value float64
}

// NewStatsUpdater creates a new stats updater instance and exposes its
// registry on GET /metrics.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		registry:   prometheus.NewRegistry(),
		gauges:     make(map[string]prometheus.Gauge),
		updateChan: make(chan *metricsUpdateReq, 512),
		stop:       make(chan struct{}),
	}
	mux.Handle("GET /metrics", su.Handler())
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) Handler() http.Handler {
	return promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{Registry: su.registry})
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started.",
		}, func() float64 {
			return time.Since(startTime).Seconds()
		}),
	)
}

func (su *StatsUpdater) updateMetrics() {
	for {
		select {
		case req := <-su.updateChan:
			su.gaugesLock.RLock()
			g, ok := su.gauges[req.name]
			su.gaugesLock.RUnlock()
			if !ok {
				panic("metric not found: " + req.name)
			}

			g.Add(req.value)
		case <-su.stop:
			return
		}
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.update(&metricsUpdateReq{name: name, value: 1})
}

func (su *StatsUpdater) Decr(name string) {
	su.update(&metricsUpdateReq{name: name, value: -1})
}

// update drops the request once the updater is stopped.
func (su *StatsUpdater) update(req *metricsUpdateReq) {
	select {
	case <-su.stop:
		return
	default:
	}

	select {
	case su.updateChan <- req:
	case <-su.stop:
	}
}

// RegisterMetric adds a gauge under name. Registering the same name twice
// is a no-op.
func (su *StatsUpdater) RegisterMetric(name string) {
	su.gaugesLock.Lock()
	defer su.gaugesLock.Unlock()

	if _, ok := su.gauges[name]; ok {
		return
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
	})
	su.registry.MustRegister(g)
	su.gauges[name] = g
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() {
		close(su.stop)
	})
}
