package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cpxtbgateway/internal/models"
	"cpxtbgateway/internal/reconcile"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrInvalidWallet  = errors.New("wallet address is required")
	ErrInvalidContact = errors.New("contact email is required")
)

// Store is the durable-store slice the payment service needs.
type Store interface {
	CreatePaymentRequest(ctx context.Context, p *models.PaymentRequest) error
	GetPaymentByReference(ctx context.Context, reference string) (*models.PaymentRequest, error)
	CreateMerchant(ctx context.Context, m *models.Merchant) error
	GetMerchant(ctx context.Context, id int64) (*models.Merchant, error)
}

// Registrar feeds newly known merchants into the chain listener.
type Registrar interface {
	Register(m *models.Merchant) bool
}

type PaymentService struct {
	Store     Store
	Registrar Registrar
	TTL       time.Duration
}

func (s *PaymentService) CreatePaymentRequest(ctx context.Context, merchantID int64, amountUSD, amountCPXTB, exchangeRate decimal.Decimal, orderID, description string) (*models.PaymentRequest, error) {
	if amountUSD.Sign() <= 0 || amountCPXTB.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.Store.GetMerchant(ctx, merchantID); err != nil {
		return nil, fmt.Errorf("merchant %d: %w", merchantID, err)
	}

	now := time.Now().UTC()
	p := &models.PaymentRequest{
		Reference:      uuid.NewString(),
		MerchantID:     merchantID,
		OrderID:        orderID,
		Description:    description,
		AmountUSD:      amountUSD,
		AmountCPXTB:    amountCPXTB,
		ExchangeRate:   exchangeRate,
		RequiredAmount: amountCPXTB,
		Status:         models.PaymentPending,
		SecurityStatus: models.SecurityUnknown,
		ExpiresAt:      now.Add(s.TTL),
	}
	if err := s.Store.CreatePaymentRequest(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPaymentByReference loads a payment and re-checks its displayed status
// through the same classification rule the reconciler writes with, so the
// read path can never show a completion the numbers do not support.
func (s *PaymentService) GetPaymentByReference(ctx context.Context, reference string) (*models.PaymentRequest, error) {
	p, err := s.Store.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	projectStatus(p)
	return p, nil
}

func projectStatus(p *models.PaymentRequest) {
	if p.Status != models.PaymentCompleted {
		return
	}
	out := reconcile.Classify(p.Received(), p.RequiredAmount)
	if out.Status != models.PaymentCompleted {
		p.Status = out.Status
		return
	}
	if p.TransactionHash == nil {
		// The amounts add up but no transaction backs them; downgrade rather
		// than present an unverifiable completion.
		p.Status = models.PaymentPartial
	}
}

// CreateMerchant stores a merchant and immediately registers its wallet for
// transfer monitoring.
func (s *PaymentService) CreateMerchant(ctx context.Context, name, walletAddress, contactEmail string) (*models.Merchant, error) {
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if walletAddress == "" {
		return nil, ErrInvalidWallet
	}
	if strings.TrimSpace(contactEmail) == "" {
		return nil, ErrInvalidContact
	}

	m := &models.Merchant{
		Name:          name,
		WalletAddress: walletAddress,
		ContactEmail:  contactEmail,
	}
	if err := s.Store.CreateMerchant(ctx, m); err != nil {
		return nil, err
	}
	s.RegisterMerchantForMonitoring(m)
	return m, nil
}

// RegisterMerchantForMonitoring is called for every merchant known at startup
// and for every merchant created afterwards.
func (s *PaymentService) RegisterMerchantForMonitoring(m *models.Merchant) {
	if s.Registrar != nil {
		s.Registrar.Register(m)
	}
}
