package reconcile

import (
	"cpxtbgateway/internal/models"

	"github.com/shopspring/decimal"
)

// partialFloor is the fraction of the required amount below which a non-zero
// cumulative total is treated as dust rather than legitimate partial progress.
var partialFloor = decimal.NewFromFloat(0.10)

// Outcome is the result of classifying a cumulative received total against
// the required amount.
type Outcome struct {
	Status         models.PaymentStatus
	SecurityStatus models.SecurityStatus
	Remaining      decimal.Decimal
}

// Classify is the single source of truth for the completion rule. Both the
// reconciler write path and the read-path status projection go through it, so
// the rule cannot drift between the two.
//
//   - total >= required and total > 0  -> completed
//   - 10% of required <= total < required -> partial
//   - 0 < total < 10% of required      -> partial, flagged as failed (dust);
//     a later qualifying transfer re-evaluates the cumulative total and can
//     still complete the payment
//   - total <= 0                       -> pending, nothing to record
func Classify(total, required decimal.Decimal) Outcome {
	remaining := required.Sub(total)
	if remaining.Sign() < 0 {
		remaining = decimal.Zero
	}

	if total.Sign() <= 0 {
		return Outcome{
			Status:         models.PaymentPending,
			SecurityStatus: models.SecurityUnknown,
			Remaining:      remaining,
		}
	}

	if total.GreaterThanOrEqual(required) {
		return Outcome{
			Status:         models.PaymentCompleted,
			SecurityStatus: models.SecurityPassed,
			Remaining:      decimal.Zero,
		}
	}

	floor := required.Mul(partialFloor)
	if total.GreaterThanOrEqual(floor) {
		return Outcome{
			Status:         models.PaymentPartial,
			SecurityStatus: models.SecurityPassed,
			Remaining:      remaining,
		}
	}

	return Outcome{
		Status:         models.PaymentPartial,
		SecurityStatus: models.SecurityFailed,
		Remaining:      remaining,
	}
}

// FormatAmount renders a token amount the way every outward surface displays
// remaining amounts: fixed six decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(6)
}
