package mail

import (
	"fmt"
	"strings"
	"time"

	"cpxtbgateway/internal/models"
)

const completedAtLayout = "Jan 2, 2006 15:04 UTC"

// ConfirmationSubject returns the subject line for a payment confirmation.
func ConfirmationSubject(payment *models.PaymentRequest) string {
	return fmt.Sprintf("Payment received: %s", payment.Reference)
}

// ConfirmationBodies renders the text and html bodies of the confirmation
// email. explorerTxURL is a prefix the transaction hash is appended to; an
// empty hash simply omits the link.
func ConfirmationBodies(merchant *models.Merchant, payment *models.PaymentRequest, explorerTxURL string) (string, string) {
	completedAt := time.Now().UTC()
	if payment.CompletedAt != nil {
		completedAt = payment.CompletedAt.UTC()
	}

	var explorerLink string
	if payment.TransactionHash != nil && explorerTxURL != "" {
		explorerLink = strings.TrimRight(explorerTxURL, "/") + "/" + *payment.TransactionHash
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n", merchant.Name)
	fmt.Fprintf(&text, "A payment has been completed.\n\n")
	fmt.Fprintf(&text, "Reference: %s\n", payment.Reference)
	if payment.OrderID != "" {
		fmt.Fprintf(&text, "Order: %s\n", payment.OrderID)
	}
	fmt.Fprintf(&text, "Amount: %s CPXTB (%s USD)\n", payment.AmountCPXTB.StringFixed(8), payment.AmountUSD.StringFixed(2))
	fmt.Fprintf(&text, "Completed: %s\n", completedAt.Format(completedAtLayout))
	if explorerLink != "" {
		fmt.Fprintf(&text, "Transaction: %s\n", explorerLink)
	}

	var html strings.Builder
	fmt.Fprintf(&html, "<p>Hello %s,</p><p>A payment has been completed.</p><ul>", merchant.Name)
	fmt.Fprintf(&html, "<li>Reference: <strong>%s</strong></li>", payment.Reference)
	if payment.OrderID != "" {
		fmt.Fprintf(&html, "<li>Order: %s</li>", payment.OrderID)
	}
	fmt.Fprintf(&html, "<li>Amount: %s CPXTB (%s USD)</li>", payment.AmountCPXTB.StringFixed(8), payment.AmountUSD.StringFixed(2))
	fmt.Fprintf(&html, "<li>Completed: %s</li>", completedAt.Format(completedAtLayout))
	html.WriteString("</ul>")
	if explorerLink != "" {
		fmt.Fprintf(&html, `<p><a href="%s">View the transaction</a></p>`, explorerLink)
	}

	return text.String(), html.String()
}
