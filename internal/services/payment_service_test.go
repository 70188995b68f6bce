package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cpxtbgateway/internal/models"
	"cpxtbgateway/internal/services"

	"github.com/shopspring/decimal"
)

type fakeStore struct {
	payments  map[string]*models.PaymentRequest
	merchants map[int64]*models.Merchant
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:  make(map[string]*models.PaymentRequest),
		merchants: make(map[int64]*models.Merchant),
	}
}

func (f *fakeStore) CreatePaymentRequest(ctx context.Context, p *models.PaymentRequest) error {
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	f.payments[p.Reference] = p
	return nil
}

func (f *fakeStore) GetPaymentByReference(ctx context.Context, reference string) (*models.PaymentRequest, error) {
	p, ok := f.payments[reference]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) CreateMerchant(ctx context.Context, m *models.Merchant) error {
	f.nextID++
	m.ID = f.nextID
	f.merchants[m.ID] = m
	return nil
}

func (f *fakeStore) GetMerchant(ctx context.Context, id int64) (*models.Merchant, error) {
	m, ok := f.merchants[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}

type fakeRegistrar struct {
	registered []string
}

func (f *fakeRegistrar) Register(m *models.Merchant) bool {
	f.registered = append(f.registered, m.WalletAddress)
	return true
}

func setup() (*fakeStore, *fakeRegistrar, *services.PaymentService) {
	st := newFakeStore()
	st.merchants[1] = &models.Merchant{ID: 1, WalletAddress: "0xabc", ContactEmail: "m@example.com"}
	reg := &fakeRegistrar{}
	svc := &services.PaymentService{Store: st, Registrar: reg, TTL: 15 * time.Minute}
	return st, reg, svc
}

func TestCreatePaymentRequest(t *testing.T) {
	_, _, svc := setup()

	before := time.Now().UTC()
	p, err := svc.CreatePaymentRequest(context.Background(), 1,
		decimal.RequireFromString("25.00"),
		decimal.RequireFromString("1000"),
		decimal.RequireFromString("0.025"),
		"order-7", "test invoice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if p.Reference == "" {
		t.Error("reference not assigned")
	}
	if p.Status != models.PaymentPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
	if p.SecurityStatus != models.SecurityUnknown {
		t.Errorf("security = %s, want unknown", p.SecurityStatus)
	}
	if !p.RequiredAmount.Equal(p.AmountCPXTB) {
		t.Error("requiredAmount must snapshot amountCpxtb")
	}
	window := p.ExpiresAt.Sub(before)
	if window < 14*time.Minute || window > 16*time.Minute {
		t.Errorf("expiry window = %s, want ~15m", window)
	}
}

func TestCreatePaymentRejectsBadInput(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	_, err := svc.CreatePaymentRequest(ctx, 1,
		decimal.Zero, decimal.RequireFromString("1000"), decimal.Zero, "", "")
	if !errors.Is(err, services.ErrInvalidAmount) {
		t.Errorf("zero usd: err = %v, want ErrInvalidAmount", err)
	}

	_, err = svc.CreatePaymentRequest(ctx, 99,
		decimal.RequireFromString("1"), decimal.RequireFromString("1"), decimal.Zero, "", "")
	if err == nil {
		t.Error("unknown merchant accepted")
	}
}

func TestGetPaymentProjectionNeverShowsFalseCompletion(t *testing.T) {
	st, _, svc := setup()

	// A corrupted row: completed with nothing received and no hash.
	st.payments["bad"] = &models.PaymentRequest{
		ID:             10,
		Reference:      "bad",
		MerchantID:     1,
		RequiredAmount: decimal.RequireFromString("1000"),
		Status:         models.PaymentCompleted,
		SecurityStatus: models.SecurityPassed,
	}

	p, err := svc.GetPaymentByReference(context.Background(), "bad")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status == models.PaymentCompleted {
		t.Error("projection reported completion unsupported by amounts")
	}
}

func TestGetPaymentProjectionKeepsValidCompletion(t *testing.T) {
	st, _, svc := setup()

	amount := decimal.RequireFromString("1000")
	hash := "0xaa"
	st.payments["ok"] = &models.PaymentRequest{
		ID:              11,
		Reference:       "ok",
		MerchantID:      1,
		RequiredAmount:  amount,
		ReceivedAmount:  &amount,
		TransactionHash: &hash,
		Status:          models.PaymentCompleted,
		SecurityStatus:  models.SecurityPassed,
	}

	p, err := svc.GetPaymentByReference(context.Background(), "ok")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status != models.PaymentCompleted {
		t.Errorf("status = %s, want completed", p.Status)
	}
}

func TestGetPaymentProjectionRequiresTransactionHash(t *testing.T) {
	st, _, svc := setup()

	// Amounts support completion but no transaction hash was ever recorded.
	amount := decimal.RequireFromString("1000")
	st.payments["nohash"] = &models.PaymentRequest{
		ID:             12,
		Reference:      "nohash",
		MerchantID:     1,
		RequiredAmount: amount,
		ReceivedAmount: &amount,
		Status:         models.PaymentCompleted,
		SecurityStatus: models.SecurityPassed,
	}

	p, err := svc.GetPaymentByReference(context.Background(), "nohash")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status == models.PaymentCompleted {
		t.Error("projection reported completion without a transaction hash")
	}
	if p.Status != models.PaymentPartial {
		t.Errorf("status = %s, want partial", p.Status)
	}
}

func TestCreateMerchantRegistersWallet(t *testing.T) {
	_, reg, svc := setup()

	m, err := svc.CreateMerchant(context.Background(), "Shop", "0xDEADbeef", "shop@example.com")
	if err != nil {
		t.Fatalf("create merchant: %v", err)
	}
	if m.WalletAddress != "0xdeadbeef" {
		t.Errorf("wallet = %s, want lower-cased", m.WalletAddress)
	}
	if len(reg.registered) != 1 || reg.registered[0] != "0xdeadbeef" {
		t.Errorf("registered = %v, want [0xdeadbeef]", reg.registered)
	}

	if _, err := svc.CreateMerchant(context.Background(), "Bad", "", "x@example.com"); !errors.Is(err, services.ErrInvalidWallet) {
		t.Errorf("empty wallet: err = %v, want ErrInvalidWallet", err)
	}
}
