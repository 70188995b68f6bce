package notify

import (
	"encoding/json"

	"cpxtbgateway/internal/models"
	"cpxtbgateway/internal/reconcile"
)

// subscribeMessage is the only inbound message clients send. A client stays
// silent (receives nothing) until it subscribes with a merchant or wallet
// filter.
type subscribeMessage struct {
	Type          string `json:"type"`
	MerchantID    int64  `json:"merchantId,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// PaymentStatusUpdate is the live-update payload. The excluded frontend
// depends on these exact field names.
type PaymentStatusUpdate struct {
	Type                string          `json:"type"`
	PaymentReference    string          `json:"paymentReference"`
	Status              string          `json:"status"`
	TransactionHash     string          `json:"transactionHash,omitempty"`
	ReceivedAmount      string          `json:"receivedAmount"`
	RequiredAmount      string          `json:"requiredAmount"`
	RemainingAmount     string          `json:"remainingAmount"`
	SecurityStatus      string          `json:"securityStatus"`
	IsSecureTransaction bool            `json:"isSecureTransaction"`
	VerificationDetails json.RawMessage `json:"verificationDetails,omitempty"`
}

// BuildUpdate projects a payment into the outbound payload. A payload about
// to go out as completed with nothing received is downgraded to pending; a
// reconciler bug must not be able to show a customer a false completion.
func BuildUpdate(payment *models.PaymentRequest) PaymentStatusUpdate {
	received := payment.Received()

	status := payment.Status
	if status == models.PaymentCompleted && received.Sign() <= 0 {
		status = models.PaymentPending
	}

	upd := PaymentStatusUpdate{
		Type:                "paymentStatusUpdate",
		PaymentReference:    payment.Reference,
		Status:              string(status),
		ReceivedAmount:      received.String(),
		RequiredAmount:      payment.RequiredAmount.String(),
		RemainingAmount:     reconcile.FormatAmount(payment.Remaining()),
		SecurityStatus:      string(payment.SecurityStatus),
		IsSecureTransaction: payment.SecurityStatus == models.SecurityPassed && received.Sign() > 0,
	}
	if payment.TransactionHash != nil {
		upd.TransactionHash = *payment.TransactionHash
	}
	if payment.Metadata != "" {
		upd.VerificationDetails = json.RawMessage(payment.Metadata)
	}
	return upd
}
