package email

import (
	"context"
	"fmt"
	"log"

	"cpxtbgateway/internal/mail"
	"cpxtbgateway/internal/metrics"
	"cpxtbgateway/internal/models"
)

const confirmationType = "payment_confirmation"

// Key derives the idempotency key for a payment's confirmation email. The
// storage-level uniqueness constraint on this key is what makes dispatch
// at-most-once under concurrent triggers.
func Key(paymentID int64) string {
	return fmt.Sprintf("payment_%d_confirmation", paymentID)
}

// Store is the slice of the durable store the email path needs.
type Store interface {
	GetPaymentByID(ctx context.Context, id int64) (*models.PaymentRequest, error)
	GetMerchant(ctx context.Context, id int64) (*models.Merchant, error)
	InsertEmailLog(ctx context.Context, entry *models.EmailLogEntry) (bool, error)
	MarkEmailSent(ctx context.Context, paymentID int64) error
	ListUnsentConfirmations(ctx context.Context) ([]*models.PaymentRequest, error)
}

// Service dispatches confirmation emails at most once per payment. Every
// caller, automatic or operator-run, goes through SendPaymentConfirmation;
// nothing in the codebase bypasses the idempotency log.
type Service struct {
	Store         Store
	Sender        mail.Sender
	ExplorerTxURL string
}

// SendPaymentConfirmation sends the confirmation for a completed payment.
//
// A duplicate trigger is a success, not an error: losing the log-insert race
// means someone else sent (or is sending) the email. A transport failure
// leaves the log row in place, which blocks automatic retries of the same
// key; recovery is the operator's call, not the code's.
func (s *Service) SendPaymentConfirmation(ctx context.Context, merchant *models.Merchant, payment *models.PaymentRequest) error {
	// The caller may hold a stale copy; the durable flag is authoritative.
	current, err := s.Store.GetPaymentByID(ctx, payment.ID)
	if err != nil {
		return fmt.Errorf("reload payment %s: %w", payment.Reference, err)
	}
	if current.EmailSent {
		return nil
	}

	entry := &models.EmailLogEntry{
		PaymentID: current.ID,
		EmailType: confirmationType,
		EmailKey:  Key(current.ID),
		Recipient: merchant.ContactEmail,
	}
	inserted, err := s.Store.InsertEmailLog(ctx, entry)
	if err != nil {
		return fmt.Errorf("email log insert payment=%s: %w", current.Reference, err)
	}
	if !inserted {
		metrics.EmailDuplicatesSuppressed.Inc()
		log.Printf("email: confirmation already logged payment=%s", current.Reference)
		if err := s.Store.MarkEmailSent(ctx, current.ID); err != nil {
			log.Printf("email: mark sent payment=%s failed: %v", current.Reference, err)
		}
		return nil
	}

	text, html := mail.ConfirmationBodies(merchant, current, s.ExplorerTxURL)
	if err := s.Sender.Send(merchant.ContactEmail, mail.ConfirmationSubject(current), text, html); err != nil {
		return fmt.Errorf("confirmation send payment=%s: %w", current.Reference, err)
	}

	metrics.EmailsSent.Inc()
	log.Printf("email: confirmation sent payment=%s to=%s", current.Reference, merchant.ContactEmail)
	if err := s.Store.MarkEmailSent(ctx, current.ID); err != nil {
		// The mail went out; the flag catches up on the next trigger.
		log.Printf("email: mark sent payment=%s failed: %v", current.Reference, err)
	}
	return nil
}

// Report summarizes one ResendMissingConfirmations run.
type Report struct {
	Scanned   int
	Sent      int
	Failed    int
	Excluded  int
	FailedRef []string
}

// ResendMissingConfirmations is the operator maintenance operation for
// completed payments whose email flag never flipped. It reuses the exact
// idempotency path of the automatic trigger: a payment whose log row exists
// from an earlier failed send is resolved to "already sent" and only its
// flag is repaired, never a second email.
func (s *Service) ResendMissingConfirmations(ctx context.Context, excludeIDs []int64) (*Report, error) {
	exclude := make(map[int64]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}

	payments, err := s.Store.ListUnsentConfirmations(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Scanned: len(payments)}
	for _, p := range payments {
		if _, ok := exclude[p.ID]; ok {
			report.Excluded++
			continue
		}
		merchant, err := s.Store.GetMerchant(ctx, p.MerchantID)
		if err != nil {
			log.Printf("email: resend merchant %d for payment %s: %v", p.MerchantID, p.Reference, err)
			report.Failed++
			report.FailedRef = append(report.FailedRef, p.Reference)
			continue
		}
		if err := s.SendPaymentConfirmation(ctx, merchant, p); err != nil {
			log.Printf("email: resend payment %s: %v", p.Reference, err)
			report.Failed++
			report.FailedRef = append(report.FailedRef, p.Reference)
			continue
		}
		report.Sent++
	}
	return report, nil
}
