// Package antmetrics registers the Prometheus gauges and counters used
// by the store, quoter, replication engine, and transport.
package antmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every gauge/counter a peer process registers at
// startup.
type Metrics struct {
	RecordsStored       prometheus.Gauge
	DiskBytesUsed       prometheus.Gauge
	QuotesIssued        prometheus.Counter
	QuotePrice          prometheus.Gauge
	ReplicationPushes   prometheus.Counter
	ReplicationFetches  prometheus.Counter
	ReplicationInFlight prometheus.Gauge
	TransportRetries    prometheus.Counter
	TransportTimeouts   prometheus.Counter
	StoreRejections     *prometheus.CounterVec
}

// New registers all metrics against reg and returns the bundle,
// failing on the first registration error.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RecordsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ant_store_records_total",
			Help: "Number of records currently held by the local store.",
		}),
		DiskBytesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ant_store_disk_bytes_used",
			Help: "Bytes of disk quota currently consumed by the local store.",
		}),
		QuotesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ant_quoter_quotes_issued_total",
			Help: "Number of quotes issued by the local quoter.",
		}),
		QuotePrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ant_quoter_last_price",
			Help: "Price of the most recently issued quote.",
		}),
		ReplicationPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ant_replication_pushes_total",
			Help: "Number of replication push batches sent.",
		}),
		ReplicationFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ant_replication_fetches_total",
			Help: "Number of replication fetches performed.",
		}),
		ReplicationInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ant_replication_in_flight",
			Help: "Replication batches currently in flight.",
		}),
		TransportRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ant_transport_retries_total",
			Help: "Number of request retries performed by the message plane.",
		}),
		TransportTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ant_transport_timeouts_total",
			Help: "Number of requests that exhausted retries and failed Unreachable.",
		}),
		StoreRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ant_store_rejections_total",
			Help: "Record store admission rejections by reason.",
		}, []string{"reason"}),
	}

	collectors := []prometheus.Collector{
		m.RecordsStored, m.DiskBytesUsed, m.QuotesIssued, m.QuotePrice,
		m.ReplicationPushes, m.ReplicationFetches, m.ReplicationInFlight,
		m.TransportRetries, m.TransportTimeouts, m.StoreRejections,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewUnregistered returns a Metrics bundle backed by a private registry,
// convenient for tests that don't care about a shared /metrics endpoint.
func NewUnregistered() *Metrics {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		panic(err) // a fresh private registry cannot fail to register
	}
	return m
}
