package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cpxtbgateway/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const paymentColumns = `
	id, reference, merchant_id, order_id, description,
	amount_usd, amount_cpxtb, exchange_rate,
	required_amount, received_amount,
	status, security_status, security_verified_at, metadata,
	transaction_hash, completed_at, email_sent,
	expires_at, created_at, updated_at`

func (s *Store) CreatePaymentRequest(ctx context.Context, p *models.PaymentRequest) error {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO payment_requests (
			reference, merchant_id, order_id, description,
			amount_usd, amount_cpxtb, exchange_rate,
			required_amount, status, security_status, metadata,
			email_sent, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at
	`,
		p.Reference,
		p.MerchantID,
		p.OrderID,
		p.Description,
		p.AmountUSD,
		p.AmountCPXTB,
		p.ExchangeRate,
		p.RequiredAmount,
		p.Status,
		p.SecurityStatus,
		p.Metadata,
		p.EmailSent,
		p.ExpiresAt,
	)
	return row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (*models.PaymentRequest, error) {
	row := s.Pool.QueryRow(ctx, `SELECT`+paymentColumns+` FROM payment_requests WHERE reference=$1`, reference)
	return scanPayment(row)
}

func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.PaymentRequest, error) {
	row := s.Pool.QueryRow(ctx, `SELECT`+paymentColumns+` FROM payment_requests WHERE id=$1`, id)
	return scanPayment(row)
}

// ListOpenPayments returns every payment still eligible to receive funds.
func (s *Store) ListOpenPayments(ctx context.Context) ([]*models.PaymentRequest, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT`+paymentColumns+`
		FROM payment_requests
		WHERE status IN ('pending','partial')
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.PaymentRequest
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ReconciliationUpdate carries the outcome fields a credit decision writes.
// The cumulative received amount is owned by CreditTransfer, not the caller.
type ReconciliationUpdate struct {
	Status          models.PaymentStatus
	SecurityStatus  models.SecurityStatus
	Metadata        string
	TransactionHash *string
	CompletedAt     *time.Time
}

// CreditDecision derives the reconciliation outcome for a locked open payment
// given the cumulative total after the new transfer.
type CreditDecision func(p *models.PaymentRequest, total decimal.Decimal) ReconciliationUpdate

// CreditOutcome reports what CreditTransfer did.
type CreditOutcome struct {
	Applied   bool
	Duplicate bool
	Payment   *models.PaymentRequest
}

// CreditTransfer claims (txHash, paymentID) and applies the resulting credit
// in a single transaction. The payment row is locked before the cumulative
// total is computed, so concurrent transfers to the same payment serialize
// and every credit lands. The claim commits only together with the credit: a
// failed or skipped update rolls the claim back too, leaving redelivery free
// to retry.
func (s *Store) CreditTransfer(ctx context.Context, txHash string, paymentID int64, amount decimal.Decimal, decide CreditDecision) (CreditOutcome, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return CreditOutcome{}, err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `
		INSERT INTO processed_transfers (tx_hash, payment_id)
		VALUES ($1, $2)
		ON CONFLICT (tx_hash, payment_id) DO NOTHING
	`, txHash, paymentID)
	if err != nil {
		return CreditOutcome{}, err
	}
	if res.RowsAffected() == 0 {
		return CreditOutcome{Duplicate: true}, nil
	}

	row := tx.QueryRow(ctx, `
		SELECT`+paymentColumns+`
		FROM payment_requests
		WHERE id=$1 AND status IN ('pending','partial')
		FOR UPDATE
	`, paymentID)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Terminal or expired; the rollback discards the claim as well.
		return CreditOutcome{}, nil
	}
	if err != nil {
		return CreditOutcome{}, err
	}

	total := p.Received().Add(amount)
	u := decide(p, total)

	if _, err := tx.Exec(ctx, `
		UPDATE payment_requests
		SET received_amount=$2, status=$3,
			security_status=$4, security_verified_at=now(), metadata=$5,
			transaction_hash=COALESCE($6, transaction_hash),
			completed_at=COALESCE($7, completed_at),
			updated_at=now()
		WHERE id=$1
	`, paymentID, total, u.Status, u.SecurityStatus, u.Metadata, u.TransactionHash, u.CompletedAt); err != nil {
		return CreditOutcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CreditOutcome{}, err
	}

	now := time.Now().UTC()
	p.ReceivedAmount = &total
	p.Status = u.Status
	p.SecurityStatus = u.SecurityStatus
	p.SecurityVerifiedAt = &now
	p.Metadata = u.Metadata
	if u.TransactionHash != nil {
		p.TransactionHash = u.TransactionHash
	}
	if u.CompletedAt != nil {
		p.CompletedAt = u.CompletedAt
	}
	p.UpdatedAt = now
	return CreditOutcome{Applied: true, Payment: p}, nil
}

// MarkExpired sweeps open payments past their expiry window. Terminal
// statuses are untouched by construction.
func (s *Store) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payment_requests
		SET status='expired', updated_at=now()
		WHERE status IN ('pending','partial') AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// InsertEmailLog inserts an idempotency-log row. A duplicate email_key
// resolves to "no row inserted", never to an error.
func (s *Store) InsertEmailLog(ctx context.Context, entry *models.EmailLogEntry) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		INSERT INTO email_log (payment_id, email_type, email_key, recipient)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email_key) DO NOTHING
	`, entry.PaymentID, entry.EmailType, entry.EmailKey, entry.Recipient)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) MarkEmailSent(ctx context.Context, paymentID int64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE payment_requests SET email_sent=true, updated_at=now() WHERE id=$1
	`, paymentID)
	return err
}

// ListUnsentConfirmations returns completed payments whose confirmation email
// flag never flipped, for the operator resend path.
func (s *Store) ListUnsentConfirmations(ctx context.Context) ([]*models.PaymentRequest, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT`+paymentColumns+`
		FROM payment_requests
		WHERE status='completed' AND email_sent=false
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.PaymentRequest
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.PaymentRequest, error) {
	var p models.PaymentRequest
	var orderID, description sql.NullString
	var received decimal.NullDecimal
	var verifiedAt, completedAt sql.NullTime
	var txHash sql.NullString
	var metadata sql.NullString

	err := row.Scan(
		&p.ID,
		&p.Reference,
		&p.MerchantID,
		&orderID,
		&description,
		&p.AmountUSD,
		&p.AmountCPXTB,
		&p.ExchangeRate,
		&p.RequiredAmount,
		&received,
		&p.Status,
		&p.SecurityStatus,
		&verifiedAt,
		&metadata,
		&txHash,
		&completedAt,
		&p.EmailSent,
		&p.ExpiresAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.OrderID = orderID.String
	p.Description = description.String
	p.Metadata = metadata.String
	if received.Valid {
		p.ReceivedAmount = &received.Decimal
	}
	if verifiedAt.Valid {
		p.SecurityVerifiedAt = &verifiedAt.Time
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	if txHash.Valid {
		p.TransactionHash = &txHash.String
	}
	return &p, nil
}
