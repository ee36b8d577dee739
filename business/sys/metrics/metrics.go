// Package metrics constructs the metrics the node exposes to prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
	"github.com/ardanlabs/grokchain/foundation/blockchain/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and the collectors updated by the web
// middleware and on every scrape.
type Metrics struct {
	registry *prometheus.Registry

	mu      sync.Mutex
	collect []func()

	requests *prometheus.CounterVec
	errors   prometheus.Counter
	panics   prometheus.Counter
}

// New constructs the metrics and registers the collectors.
func New() *Metrics {
	m := Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grok_http_requests_total",
			Help: "number of http requests handled by status code.",
		}, []string{"code"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grok_http_errors_total",
			Help: "number of http requests that returned an error.",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grok_http_panics_total",
			Help: "number of http requests that panicked.",
		}),
	}

	m.registry.MustRegister(m.requests)
	m.registry.MustRegister(m.errors)
	m.registry.MustRegister(m.panics)
	m.registry.MustRegister(prometheus.NewGoCollector())

	return &m
}

// RegisterState adds the gauges that are read from the blockchain state.
func (m *Metrics) RegisterState(st *state.State) {
	height := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grok_chain_height",
		Help: "number of the latest block in the chain.",
	})
	mempool := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grok_mempool_transactions",
		Help: "number of transactions waiting to be mined.",
	})
	pohIndex := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grok_poh_index",
		Help: "index of the latest proof of history entry.",
	})
	identities := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grok_admission_identities",
		Help: "number of submitters tracked by admission control.",
	})
	admitted := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grok_admission_admitted_per_window",
		Help: "number of submissions admitted during the last rate window.",
	})
	rateLimited := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "grok_admission_rate_limited_total",
		Help: "number of submissions refused by the rate limit.",
	}, func() float64 {
		return float64(st.RetrieveAdmissionStats().RateLimited)
	})
	bans := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "grok_admission_bans_total",
		Help: "number of submitters that were banned.",
	}, func() float64 {
		return float64(st.RetrieveAdmissionStats().Bans)
	})

	m.registry.MustRegister(height, mempool, pohIndex, identities, admitted, rateLimited, bans)

	m.addCollect(func() {
		height.Set(float64(st.RetrieveLatestBlock().Header.Number))
		mempool.Set(float64(st.QueryMempoolLength()))
		pohIndex.Set(float64(st.QueryPoH().Index))

		stats := st.RetrieveAdmissionStats()
		identities.Set(float64(stats.Identities))
		admitted.Set(float64(stats.AdmittedPerWindow))
	})
}

// RegisterWorker adds the counters of the mining worker.
func (m *Metrics) RegisterWorker(w *worker.Worker) {
	outcomes := []struct {
		name string
		help string
		read func(worker.Stats) int64
	}{
		{"grok_blocks_mined_total", "number of blocks mined by this node.", func(s worker.Stats) int64 { return s.Mined }},
		{"grok_mining_cancelled_total", "number of mining operations cancelled by a submitted block.", func(s worker.Stats) int64 { return s.Cancelled }},
		{"grok_mining_failed_total", "number of mining operations that failed.", func(s worker.Stats) int64 { return s.Failed }},
	}

	for _, o := range outcomes {
		read := o.read
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: o.name,
			Help: o.help,
		}, func() float64 {
			return float64(read(w.Stats()))
		}))
	}
}

// Handler returns the http handler serving the registry. The gauges are
// updated before every scrape.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		for _, collect := range m.collect {
			collect()
		}
		m.mu.Unlock()

		h.ServeHTTP(w, r)
	})
}

// Request counts a handled request with its status code.
func (m *Metrics) Request(code string) {
	m.requests.WithLabelValues(code).Inc()
}

// Error counts a request that returned an error.
func (m *Metrics) Error() {
	m.errors.Inc()
}

// Panic counts a request that panicked.
func (m *Metrics) Panic() {
	m.panics.Inc()
}

func (m *Metrics) addCollect(collect func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.collect = append(m.collect, collect)
}
