package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrAlreadyFinalized marks a payment whose SUCCESS state is already
	// committed. Callers treat it as an idempotent no-op, not a failure.
	ErrAlreadyFinalized = errors.New("payment already finalized")
	// ErrNotInitiated marks a payment sitting in a terminal failed state;
	// a retry needs a fresh payment record.
	ErrNotInitiated = errors.New("payment is not awaiting verification")
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*Payment, error)
	// FinalizeSuccess moves the payment INITIATED -> SUCCESS and the owning
	// order to PAID/CONFIRMED in one transaction. The status filter in the
	// update makes concurrent duplicate callbacks race-safe.
	FinalizeSuccess(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) error
	// MarkFailed moves the payment INITIATED -> FAILED or
	// FAILED_VERIFICATION. The order is left untouched.
	MarkFailed(ctx context.Context, id uuid.UUID, status Status, providerPaymentID string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const paymentColumns = `id, order_id, provider, amount, currency, provider_order_id,
		provider_payment_id, provider_signature, status, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, p *Payment) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO payments (id, order_id, provider, amount, currency, provider_order_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.OrderID,
		p.Provider,
		p.Amount,
		p.Currency,
		p.ProviderOrderID,
		string(p.Status),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert payment: %w", err)
	}

	p.CreatedAt = now
	p.UpdatedAt = now

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = $1
	`
	return r.getOne(ctx, query, id)
}

func (r *postgresRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE provider_order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, providerOrderID)
}

func (r *postgresRepository) getOne(ctx context.Context, query string, arg any) (*Payment, error) {
	var p Payment
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.OrderID,
		&p.Provider,
		&p.Amount,
		&p.Currency,
		&p.ProviderOrderID,
		&p.ProviderPaymentID,
		&p.ProviderSignature,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment: %w", err)
	}

	return &p, nil
}

func (r *postgresRepository) FinalizeSuccess(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("payment_id", id).Msg("repository: failed to rollback payment finalization")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit payment finalization: %w", commitErr)
		}
	}()

	now := time.Now().UTC()

	// Conditional update: under concurrent verify calls only one of them
	// sees RowsAffected == 1.
	updatePayment := `
		UPDATE payments
		SET status = $2, provider_payment_id = $3, provider_signature = $4, updated_at = $5
		WHERE id = $1 AND status = $6
		RETURNING order_id, provider_order_id
	`
	var orderID uuid.UUID
	var providerOrderID string
	err = tx.QueryRow(ctx, updatePayment, id, string(StatusSuccess), providerPaymentID, providerSignature, now, string(StatusInitiated)).
		Scan(&orderID, &providerOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifySkippedUpdate(ctx, id)
		}
		return fmt.Errorf("repository: failed to update payment %s: %w", id, err)
	}

	updateOrder := `
		UPDATE orders
		SET payment_status = $2, order_status = $3,
			razorpay_order_id = $4, razorpay_payment_id = $5, razorpay_signature = $6,
			updated_at = $7
		WHERE id = $1
	`
	cmdTag, err := tx.Exec(ctx, updateOrder,
		orderID,
		"PAID",
		"CONFIRMED",
		providerOrderID,
		providerPaymentID,
		providerSignature,
		now,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s for payment %s: %w", orderID, id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("repository: order %s missing while finalizing payment %s", orderID, id)
	}

	return nil
}

// classifySkippedUpdate explains why the conditional update matched nothing.
func (r *postgresRepository) classifySkippedUpdate(ctx context.Context, id uuid.UUID) error {
	var status Status
	err := r.db.QueryRow(ctx, `SELECT status FROM payments WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("repository: failed to read payment %s status: %w", id, err)
	}

	if status == StatusSuccess {
		return ErrAlreadyFinalized
	}
	return ErrNotInitiated
}

func (r *postgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, status Status, providerPaymentID string) error {
	if status != StatusFailed && status != StatusFailedVerification {
		return fmt.Errorf("repository: %s is not a failure status", status)
	}

	query := `
		UPDATE payments
		SET status = $2,
			provider_payment_id = CASE WHEN $3 <> '' THEN $3 ELSE provider_payment_id END,
			updated_at = $4
		WHERE id = $1 AND status = $5
	`
	cmdTag, err := r.db.Exec(ctx, query, id, string(status), providerPaymentID, time.Now().UTC(), string(StatusInitiated))
	if err != nil {
		return fmt.Errorf("repository: failed to mark payment %s failed: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return r.classifySkippedUpdate(ctx, id)
	}

	return nil
}
