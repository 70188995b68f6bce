package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpxtb_transfers_observed_total",
		Help: "Token transfer events forwarded to the reconciler.",
	})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpxtb_reconciliations_total",
		Help: "Reconciliation outcomes by resulting payment status.",
	}, []string{"status"})

	DuplicateTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpxtb_duplicate_transfers_total",
		Help: "Transfer observations skipped because the (tx, payment) pair was already claimed.",
	})

	DustFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpxtb_dust_flagged_total",
		Help: "Payments flagged with a failed security status for dust-level transfers.",
	})

	EmailsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpxtb_confirmation_emails_sent_total",
		Help: "Confirmation emails handed to the mail transport.",
	})

	EmailDuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpxtb_confirmation_emails_suppressed_total",
		Help: "Confirmation sends suppressed by the idempotency log.",
	})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cpxtb_ws_clients",
		Help: "Currently connected live-update WebSocket clients.",
	})
)
