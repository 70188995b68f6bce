package reconcile_test

import (
	"testing"

	"cpxtbgateway/internal/models"
	"cpxtbgateway/internal/reconcile"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestClassify(t *testing.T) {
	required := dec("1000")

	cases := []struct {
		name      string
		total     string
		status    models.PaymentStatus
		security  models.SecurityStatus
		remaining string
	}{
		{"exact payment completes", "1000", models.PaymentCompleted, models.SecurityPassed, "0.000000"},
		{"overpayment completes", "1500", models.PaymentCompleted, models.SecurityPassed, "0.000000"},
		{"legitimate partial", "200", models.PaymentPartial, models.SecurityPassed, "800.000000"},
		{"exact ten percent is partial", "100", models.PaymentPartial, models.SecurityPassed, "900.000000"},
		{"dust below floor flagged", "50", models.PaymentPartial, models.SecurityFailed, "950.000000"},
		{"just under floor flagged", "99.999999", models.PaymentPartial, models.SecurityFailed, "900.000001"},
		{"zero stays pending", "0", models.PaymentPending, models.SecurityUnknown, "1000.000000"},
		{"negative stays pending", "-5", models.PaymentPending, models.SecurityUnknown, "1005.000000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := reconcile.Classify(dec(tc.total), required)
			if out.Status != tc.status {
				t.Errorf("status = %s, want %s", out.Status, tc.status)
			}
			if out.SecurityStatus != tc.security {
				t.Errorf("security = %s, want %s", out.SecurityStatus, tc.security)
			}
			if got := reconcile.FormatAmount(out.Remaining); got != tc.remaining {
				t.Errorf("remaining = %s, want %s", got, tc.remaining)
			}
		})
	}
}

func TestClassifyNeverCompletesZeroRequired(t *testing.T) {
	// Zero received against zero required must not classify as completed.
	out := reconcile.Classify(dec("0"), dec("0"))
	if out.Status == models.PaymentCompleted {
		t.Fatal("zero total classified as completed")
	}
}

func TestFormatAmountClampsAtSixPlaces(t *testing.T) {
	if got := reconcile.FormatAmount(dec("0.12345678")); got != "0.123457" {
		t.Errorf("FormatAmount = %s, want 0.123457", got)
	}
	if got := reconcile.FormatAmount(dec("0")); got != "0.000000" {
		t.Errorf("FormatAmount = %s, want 0.000000", got)
	}
}
