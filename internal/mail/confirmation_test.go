package mail_test

import (
	"strings"
	"testing"
	"time"

	"cpxtbgateway/internal/mail"
	"cpxtbgateway/internal/models"

	"github.com/shopspring/decimal"
)

func TestConfirmationBodies(t *testing.T) {
	merchant := &models.Merchant{Name: "Shop", ContactEmail: "shop@example.com"}
	hash := "0xfeed"
	completed := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	payment := &models.PaymentRequest{
		Reference:       "ref-42",
		OrderID:         "order-7",
		AmountUSD:       decimal.RequireFromString("25"),
		AmountCPXTB:     decimal.RequireFromString("1000"),
		TransactionHash: &hash,
		CompletedAt:     &completed,
	}

	text, html := mail.ConfirmationBodies(merchant, payment, "https://basescan.org/tx")

	for _, want := range []string{
		"ref-42",
		"order-7",
		"1000.00000000 CPXTB",
		"25.00 USD",
		"Mar 1, 2025 12:30 UTC",
		"https://basescan.org/tx/0xfeed",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text body missing %q", want)
		}
	}
	if !strings.Contains(html, "https://basescan.org/tx/0xfeed") {
		t.Error("html body missing explorer link")
	}
}

func TestConfirmationOmitsOptionalParts(t *testing.T) {
	merchant := &models.Merchant{Name: "Shop"}
	payment := &models.PaymentRequest{
		Reference:   "ref-43",
		AmountUSD:   decimal.RequireFromString("5"),
		AmountCPXTB: decimal.RequireFromString("200"),
	}

	text, _ := mail.ConfirmationBodies(merchant, payment, "https://basescan.org/tx")
	if strings.Contains(text, "Order:") {
		t.Error("order line present without an order id")
	}
	if strings.Contains(text, "Transaction:") {
		t.Error("explorer line present without a hash")
	}
}
