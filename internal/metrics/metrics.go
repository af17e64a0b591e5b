package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatherly"

// Metrics holds the fulfillment collectors. A nil *Metrics records nothing.
type Metrics struct {
	registrations       *prometheus.CounterVec
	offers              *prometheus.CounterVec
	purchases           *prometheus.CounterVec
	refunds             *prometheus.CounterVec
	checkIns            prometheus.Counter
	outboxDeliveries    *prometheus.CounterVec
	outboxReclaimed     prometheus.Counter
	outboxBatchDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registrations by outcome.",
		}, []string{"outcome"}),
		offers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_offers_total",
			Help:      "Waitlist offer transitions.",
		}, []string{"result"}),
		purchases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Purchase attempts by risk level and outcome.",
		}, []string{"risk_level", "outcome"}),
		refunds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts by outcome.",
		}, []string{"outcome"}),
		checkIns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Successful attendee check-ins.",
		}),
		outboxDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox delivery attempts by resulting status.",
		}, []string{"status"}),
		outboxReclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "reclaimed_total",
			Help:      "Outbox events reclaimed after a stale processing lease.",
		}),
		outboxBatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Duration of outbox dispatch batches.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Registration(waitlisted bool) {
	if m == nil {
		return
	}
	outcome := "confirmed"
	if waitlisted {
		outcome = "waitlisted"
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Offer(result string) {
	if m == nil {
		return
	}
	m.offers.WithLabelValues(result).Inc()
}

func (m *Metrics) Purchase(riskLevel, outcome string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(riskLevel, outcome).Inc()
}

func (m *Metrics) Refund(outcome string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CheckIn() {
	if m == nil {
		return
	}
	m.checkIns.Inc()
}

func (m *Metrics) OutboxDelivery(status string) {
	if m == nil {
		return
	}
	m.outboxDeliveries.WithLabelValues(status).Inc()
}

func (m *Metrics) OutboxReclaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxReclaimed.Add(float64(n))
}

func (m *Metrics) OutboxBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.outboxBatchDuration.Observe(d.Seconds())
}
