package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nikitaxru/rowtemplar"
)

type metrics struct {
	batches   *prometheus.CounterVec
	rows      *prometheus.CounterVec
	unmatched prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rowtemplar_batches_total",
			Help: "Processed conversion batches by result.",
		}, []string{"result"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rowtemplar_rows_total",
			Help: "Processed data rows by result.",
		}, []string{"result"}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rowtemplar_unmatched_tokens_total",
			Help: "Template placeholders without a mapped column, summed per row.",
		}),
	}
	reg.MustRegister(m.batches, m.rows, m.unmatched)
	return m
}

func (m *metrics) observe(rep *rowtemplar.Report, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.batches.WithLabelValues(result).Inc()
	if rep == nil {
		return
	}
	m.rows.WithLabelValues("written").Add(float64(rep.Written))
	m.rows.WithLabelValues("failed").Add(float64(len(rep.Failed)))
	for _, w := range rep.Unmatched {
		m.unmatched.Add(float64(len(w.Tokens)))
	}
}
