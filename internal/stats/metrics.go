package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/dualcap/internal/domain"
)

// Metrics mirrors snapshots into Prometheus collectors.
type Metrics struct {
	Records   *prometheus.CounterVec
	Bytes     *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
	Resyncs   *prometheus.CounterVec
	Rate      *prometheus.GaugeVec
	FileIndex *prometheus.GaugeVec
	FileSize  *prometheus.GaugeVec
	UnitUp    *prometheus.GaugeVec

	seen map[string]domain.Snapshot
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dualcap_records_total",
			Help: "Records handled per unit",
		}, []string{"stream", "source"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dualcap_bytes_total",
			Help: "Bytes handled per unit",
		}, []string{"stream", "source"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dualcap_dropped_total",
			Help: "Items dropped on a full queue or empty buffer pool",
		}, []string{"stream", "source"}),
		Resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dualcap_resyncs_total",
			Help: "CSI headers rejected and skipped by the parser",
		}, []string{"stream"}),
		Rate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dualcap_record_rate",
			Help: "Records per second over the last report interval",
		}, []string{"stream", "source"}),
		FileIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dualcap_file_index",
			Help: "Index of the log part currently written",
		}, []string{"stream"}),
		FileSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dualcap_file_size_bytes",
			Help: "Size of the log part currently written",
		}, []string{"stream"}),
		UnitUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dualcap_unit_up",
			Help: "1 while a unit is running",
		}, []string{"unit"}),
		seen: make(map[string]domain.Snapshot),
	}
	if reg != nil {
		reg.MustRegister(m.Records, m.Bytes, m.Dropped, m.Resyncs, m.Rate, m.FileIndex, m.FileSize, m.UnitUp)
	}
	return m
}

// Observe applies the counter deltas between s and the previous snapshot of
// the same unit.
func (m *Metrics) Observe(s domain.Snapshot) {
	stream := string(s.Stream)
	prev := m.seen[s.Source]
	m.seen[s.Source] = s

	m.Records.WithLabelValues(stream, s.Source).Add(delta(s.Records, prev.Records))
	m.Bytes.WithLabelValues(stream, s.Source).Add(delta(s.Bytes, prev.Bytes))
	m.Dropped.WithLabelValues(stream, s.Source).Add(delta(s.Dropped, prev.Dropped))
	if d := delta(s.Resyncs, prev.Resyncs); d > 0 {
		m.Resyncs.WithLabelValues(stream).Add(d)
	}
	m.Rate.WithLabelValues(stream, s.Source).Set(s.Rate)

	if s.Writer {
		m.FileIndex.WithLabelValues(stream).Set(float64(s.FileIndex))
		m.FileSize.WithLabelValues(stream).Set(float64(s.FileSize))
	}
}

// SetUp records a unit's liveness.
func (m *Metrics) SetUp(unit string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.UnitUp.WithLabelValues(unit).Set(v)
}

func delta(cur, prev uint64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur - prev)
}
