package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pathguide/pkg/explorer"
)

// Metrics 搜索过程的Prometheus指标
type Metrics struct {
	classified  *prometheus.CounterVec
	steps       prometheus.Counter
	stepErrors  prometheus.Counter
	deadended   prometheus.Counter
	activePaths prometheus.Gauge
}

// NewMetrics 在reg上注册指标；reg为nil时只创建不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		classified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pathguide_classified_total",
			Help: "Total classified paths by disposition",
		}, []string{"disposition"}),
		steps: factory.NewCounter(prometheus.CounterOpts{
			Name: "pathguide_steps_total",
			Help: "Total paths handed to the stepping engine",
		}),
		stepErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pathguide_step_errors_total",
			Help: "Total failed steps",
		}),
		deadended: factory.NewCounter(prometheus.CounterOpts{
			Name: "pathguide_deadended_total",
			Help: "Total paths without successors or at max depth",
		}),
		activePaths: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pathguide_active_paths",
			Help: "Active and in-flight paths at the end of the latest round",
		}),
	}
}

func (m *Metrics) observe(ds []explorer.Disposition) {
	for _, d := range ds {
		m.classified.WithLabelValues(d.String()).Inc()
	}
}
