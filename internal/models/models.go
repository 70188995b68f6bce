package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPartial   PaymentStatus = "partial"
	PaymentCompleted PaymentStatus = "completed"
	PaymentExpired   PaymentStatus = "expired"
)

// IsTerminal reports whether no further status transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentExpired
}

type SecurityStatus string

const (
	SecurityUnknown SecurityStatus = "unknown"
	SecurityPassed  SecurityStatus = "passed"
	SecurityFailed  SecurityStatus = "failed"
)

type PaymentRequest struct {
	ID                 int64
	Reference          string
	MerchantID         int64
	OrderID            string
	Description        string
	AmountUSD          decimal.Decimal
	AmountCPXTB        decimal.Decimal
	ExchangeRate       decimal.Decimal
	RequiredAmount     decimal.Decimal
	ReceivedAmount     *decimal.Decimal
	Status             PaymentStatus
	SecurityStatus     SecurityStatus
	SecurityVerifiedAt *time.Time
	Metadata           string
	TransactionHash    *string
	CompletedAt        *time.Time
	EmailSent          bool
	ExpiresAt          time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Received returns the cumulative received amount, zero when nothing has been
// observed yet.
func (p *PaymentRequest) Received() decimal.Decimal {
	if p.ReceivedAmount == nil {
		return decimal.Zero
	}
	return *p.ReceivedAmount
}

// Remaining is max(0, required - received).
func (p *PaymentRequest) Remaining() decimal.Decimal {
	rem := p.RequiredAmount.Sub(p.Received())
	if rem.Sign() < 0 {
		return decimal.Zero
	}
	return rem
}

type Merchant struct {
	ID            int64
	Name          string
	WalletAddress string
	ContactEmail  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type EmailLogEntry struct {
	ID        int64
	PaymentID int64
	EmailType string
	EmailKey  string
	Recipient string
	SentAt    time.Time
}

// TransferObservation is a decoded token-transfer chain event. It is never
// persisted on its own; it only drives reconciliation.
type TransferObservation struct {
	From   string
	To     string
	Amount decimal.Decimal
	TxHash string
}
