package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TicketsIssued      prometheus.Counter
	TicketsSettled     prometheus.Counter
	ExitRejections     *prometheus.CounterVec
	EntryTimeFallbacks prometheus.Counter
	StoreErrors        *prometheus.CounterVec
	Fees               prometheus.Histogram
}

// New registers the service collectors on reg. Tests pass a fresh
// prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicketsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "parking_tickets_issued_total",
			Help: "The total number of tickets created by entry calls",
		}),
		TicketsSettled: f.NewCounter(prometheus.CounterOpts{
			Name: "parking_tickets_settled_total",
			Help: "The total number of tickets moved to processed",
		}),
		ExitRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_exit_rejections_total",
			Help: "Exit calls rejected, by reason",
		}, []string{"reason"}),
		EntryTimeFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "parking_entry_time_fallbacks_total",
			Help: "Exits that used the one hour fallback because entry time was unreadable",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_store_errors_total",
			Help: "Ticket store failures, by operation",
		}, []string{"op"}),
		Fees: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "parking_fee_amount",
			Help:    "Charged fees in currency units",
			Buckets: []float64{2.5, 5, 10, 20, 40, 80, 160, 320},
		}),
	}
}
