package reconcile

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"cpxtbgateway/internal/metrics"
	"cpxtbgateway/internal/models"
	"cpxtbgateway/internal/store"

	"github.com/shopspring/decimal"
)

// Store is the slice of the durable store the reconciler needs.
type Store interface {
	ListOpenPayments(ctx context.Context) ([]*models.PaymentRequest, error)
	GetMerchant(ctx context.Context, id int64) (*models.Merchant, error)
	CreditTransfer(ctx context.Context, txHash string, paymentID int64, amount decimal.Decimal, decide store.CreditDecision) (store.CreditOutcome, error)
}

// Notifier receives post-reconciliation state for live fan-out. Delivery is
// best-effort; the polling read path is the correctness backstop.
type Notifier interface {
	PaymentUpdated(merchant *models.Merchant, payment *models.PaymentRequest)
}

// EmailSender dispatches the idempotent confirmation email for a completed
// payment.
type EmailSender interface {
	SendPaymentConfirmation(ctx context.Context, merchant *models.Merchant, payment *models.PaymentRequest) error
}

// Reconciler matches transfer observations against the open payment set and
// is the only writer of payment status and amounts.
type Reconciler struct {
	Store    Store
	Notifier Notifier
	Email    EmailSender
}

// Process evaluates one transfer observation against every open payment whose
// merchant wallet matches the recipient. One bad payment never aborts the
// rest of the open set.
func (r *Reconciler) Process(ctx context.Context, obs models.TransferObservation) {
	metrics.TransfersObserved.Inc()
	to := strings.ToLower(obs.To)

	payments, err := r.Store.ListOpenPayments(ctx)
	if err != nil {
		log.Printf("reconcile: list open payments failed: %v", err)
		return
	}

	for _, p := range payments {
		merchant, err := r.Store.GetMerchant(ctx, p.MerchantID)
		if err != nil {
			log.Printf("reconcile: merchant %d not found for payment %s: %v", p.MerchantID, p.Reference, err)
			continue
		}
		if strings.ToLower(merchant.WalletAddress) != to {
			continue
		}
		r.reconcileOne(ctx, merchant, p, obs)
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, merchant *models.Merchant, p *models.PaymentRequest, obs models.TransferObservation) {
	// A zero-value transfer must never advance any state and must leave no
	// trace; this is a hard security rule, not a display concern.
	if obs.Amount.Sign() <= 0 {
		log.Printf("reconcile: zero-value transfer ignored tx=%s payment=%s", obs.TxHash, p.Reference)
		return
	}
	if obs.TxHash == "" {
		log.Printf("reconcile: transfer without hash ignored payment=%s", p.Reference)
		return
	}

	// The cumulative total is computed by the store from the row it locks,
	// never from the snapshot loaded above, so two transfers arriving
	// together both land.
	res, err := r.Store.CreditTransfer(ctx, obs.TxHash, p.ID, obs.Amount,
		func(cur *models.PaymentRequest, total decimal.Decimal) store.ReconciliationUpdate {
			now := time.Now().UTC()
			out := Classify(total, cur.RequiredAmount)
			upd := store.ReconciliationUpdate{
				Status:          out.Status,
				SecurityStatus:  out.SecurityStatus,
				Metadata:        verificationReport(obs, total, cur.RequiredAmount, out, now),
				TransactionHash: &obs.TxHash,
			}
			if out.Status == models.PaymentCompleted {
				upd.CompletedAt = &now
			}
			return upd
		})
	if err != nil {
		log.Printf("reconcile: credit tx=%s payment=%s failed: %v", obs.TxHash, p.Reference, err)
		return
	}
	if res.Duplicate {
		metrics.DuplicateTransfers.Inc()
		log.Printf("reconcile: tx=%s already applied to payment=%s", obs.TxHash, p.Reference)
		return
	}
	if !res.Applied {
		// Raced with a completing writer or the expiry sweep; terminal wins.
		log.Printf("reconcile: payment=%s no longer open, credit skipped", p.Reference)
		return
	}

	p = res.Payment
	if p.SecurityStatus == models.SecurityFailed {
		metrics.DustFlagged.Inc()
		log.Printf("reconcile: dust transfer flagged tx=%s payment=%s amount=%s required=%s",
			obs.TxHash, p.Reference, obs.Amount.String(), p.RequiredAmount.String())
	}

	metrics.Reconciliations.WithLabelValues(string(p.Status)).Inc()
	log.Printf("reconcile: payment=%s -> %s tx=%s received=%s remaining=%s",
		p.Reference, p.Status, obs.TxHash, p.Received().String(), FormatAmount(p.Remaining()))

	if r.Notifier != nil {
		r.Notifier.PaymentUpdated(merchant, p)
	}

	if p.Status == models.PaymentCompleted && r.Email != nil {
		if err := r.Email.SendPaymentConfirmation(ctx, merchant, p); err != nil {
			log.Printf("reconcile: confirmation email payment=%s failed: %v", p.Reference, err)
		}
	}
}

func verificationReport(obs models.TransferObservation, total, required decimal.Decimal, out Outcome, at time.Time) string {
	report := map[string]any{
		"txHash":         obs.TxHash,
		"from":           obs.From,
		"amount":         obs.Amount.String(),
		"totalReceived":  total.String(),
		"requiredAmount": required.String(),
		"status":         out.Status,
		"securityStatus": out.SecurityStatus,
		"verifiedAt":     at.Format(time.RFC3339),
	}
	b, err := json.Marshal(report)
	if err != nil {
		return "{}"
	}
	return string(b)
}
