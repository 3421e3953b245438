package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 同步管线和连接状态的采集器
type Metrics struct {
	Enqueued      *prometheus.CounterVec
	Replayed      *prometheus.CounterVec
	DeadLettered  *prometheus.CounterVec
	Pending       *prometheus.GaugeVec
	DrainDuration prometheus.Histogram
	Online        prometheus.Gauge
}

// New 创建并注册到 reg；reg 为 nil 时不注册（测试用）
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Enqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_enqueued_total",
				Help: "Pending operations queued while offline or after a failed remote call",
			},
			[]string{"kind"},
		),
		Replayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_replayed_total",
				Help: "Replay attempts by outcome",
			},
			[]string{"kind", "result"},
		),
		DeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_dead_letter_total",
				Help: "Operations moved to the dead letter list",
			},
			[]string{"kind"},
		),
		Pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sync_pending",
				Help: "Queued operations per kind",
			},
			[]string{"kind"},
		),
		DrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_drain_duration_seconds",
			Help:    "Duration of a full drain pass",
			Buckets: prometheus.DefBuckets,
		}),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connectivity_online",
			Help: "1 when the remote API is considered reachable",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Enqueued, m.Replayed, m.DeadLettered, m.Pending, m.DrainDuration, m.Online)
	}
	return m
}

// SetOnline 更新连接状态
func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.Online.Set(1)
	} else {
		m.Online.Set(0)
	}
}

func (m *Metrics) ObserveDrain(d time.Duration) {
	if m == nil {
		return
	}
	m.DrainDuration.Observe(d.Seconds())
}
