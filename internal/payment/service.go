package payment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/satvik-basket/backend/internal/messaging"
	"github.com/satvik-basket/backend/internal/order"
)

const (
	providerName = "razorpay"
	currencyINR  = "INR"

	// EventsTopic carries the payment audit feed, keyed by order id.
	EventsTopic = "payment-events"

	EventCaptured               = "payment.captured"
	EventVerificationFailed     = "payment.verification_failed"
	EventReconciliationRequired = "payment.reconciliation_required"
)

var (
	ErrOrderNotPayable = errors.New("order is not awaiting payment")
	// ErrProviderUnavailable wraps transient provider failures; the order
	// stays payable and the caller may retry.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrSignatureInvalid    = errors.New("payment signature verification failed")
	// ErrPersistenceFailure marks a write failure after a valid signature.
	// The money moved; the record must be reconciled, never reported as a
	// failed payment.
	ErrPersistenceFailure = errors.New("payment captured but persistence failed")
)

// Gateway is the provider boundary. It is injected at construction so tests
// substitute a fake.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (ProviderOrder, error)
	VerifySignature(providerOrderID, providerPaymentID, signature string) bool
}

// OrderStore is the narrow slice of the order subsystem the orchestrator
// reads from. All order mutation happens inside Repository.FinalizeSuccess.
type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

// Event is one entry of the payment audit feed.
type Event struct {
	Type              string `json:"type"`
	OrderID           string `json:"order_id"`
	PaymentID         string `json:"payment_id"`
	ProviderOrderID   string `json:"provider_order_id,omitempty"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	Amount            int64  `json:"amount,omitempty"`
	Currency          string `json:"currency,omitempty"`
}

// CheckoutSession is handed to the client to open the hosted checkout.
type CheckoutSession struct {
	PaymentID     uuid.UUID
	ProviderOrder ProviderOrder
}

type VerifyInput struct {
	PaymentID         uuid.UUID
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
}

type Service interface {
	CreatePayment(ctx context.Context, orderID uuid.UUID) (*CheckoutSession, error)
	VerifyPayment(ctx context.Context, input VerifyInput) error
	ReportFailure(ctx context.Context, paymentID uuid.UUID) error
}

type service struct {
	payments  Repository
	orders    OrderStore
	gateway   Gateway
	publisher messaging.Publisher
}

func NewService(payments Repository, orders OrderStore, gateway Gateway, publisher messaging.Publisher) Service {
	return &service{
		payments:  payments,
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
	}
}

// CreatePayment mints a provider order for the order's server-trusted total
// and records an INITIATED payment attempt. The caller never supplies an
// amount. A retry after a failed attempt creates a fresh record.
func (s *service) CreatePayment(ctx context.Context, orderID uuid.UUID) (*CheckoutSession, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, order.ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to load order for payment")
		return nil, fmt.Errorf("service: failed to load order: %w", err)
	}

	if !o.Payable() {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("payment_status", o.PaymentStatus).
			Stringer("order_status", o.Status).
			Msg("service: payment requested for non-payable order")
		return nil, ErrOrderNotPayable
	}

	amount := int64(math.Round(o.TotalAmount * 100))

	providerOrder, err := s.gateway.CreateOrder(ctx, amount, currencyINR, "order_rcpt_"+o.ID.String())
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: provider order creation failed")
		return nil, fmt.Errorf("service: %w: %v", ErrProviderUnavailable, err)
	}

	paymentID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate payment id: %w", err)
	}

	p := &Payment{
		ID:              paymentID,
		OrderID:         o.ID,
		Provider:        providerName,
		Amount:          amount,
		Currency:        providerOrder.Currency,
		ProviderOrderID: providerOrder.ID,
		Status:          StatusInitiated,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to persist payment record")
		return nil, fmt.Errorf("service: failed to persist payment record: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("payment_id", p.ID).
		Str("provider_order_id", providerOrder.ID).
		Int64("amount", amount).
		Msg("service: payment initiated")

	return &CheckoutSession{PaymentID: p.ID, ProviderOrder: providerOrder}, nil
}

// VerifyPayment validates the provider callback and drives the payment and
// order to their terminal states. It runs to a terminal outcome once
// signature validation begins; duplicate deliveries of a valid callback are
// acknowledged without re-mutating anything.
func (s *service) VerifyPayment(ctx context.Context, input VerifyInput) error {
	p, err := s.loadPayment(ctx, input)
	if err != nil {
		return err
	}

	// Fast path for redelivered callbacks. The conditional update in
	// FinalizeSuccess remains the authority under races.
	if p.Status == StatusSuccess {
		log.Info().Stringer("payment_id", p.ID).Msg("service: duplicate verify for finalized payment")
		return nil
	}

	// The signature binds the provider order we minted, not whatever order
	// id the client claims.
	if !s.gateway.VerifySignature(p.ProviderOrderID, input.ProviderPaymentID, input.Signature) {
		s.recordVerificationFailure(ctx, p, input.ProviderPaymentID)
		return ErrSignatureInvalid
	}

	err = s.payments.FinalizeSuccess(ctx, p.ID, input.ProviderPaymentID, input.Signature)
	switch {
	case err == nil:
		log.Info().
			Stringer("payment_id", p.ID).
			Stringer("order_id", p.OrderID).
			Str("provider_payment_id", input.ProviderPaymentID).
			Msg("service: payment captured")
		s.publish(ctx, Event{
			Type:              EventCaptured,
			OrderID:           p.OrderID.String(),
			PaymentID:         p.ID.String(),
			ProviderOrderID:   p.ProviderOrderID,
			ProviderPaymentID: input.ProviderPaymentID,
			Amount:            p.Amount,
			Currency:          p.Currency,
		})
		return nil
	case errors.Is(err, ErrAlreadyFinalized):
		// A concurrent verify won the race; same terminal state.
		return nil
	case errors.Is(err, ErrNotInitiated):
		return ErrNotInitiated
	default:
		// Signature was valid: the money moved. Flag for reconciliation
		// instead of reporting a failed payment.
		log.Error().Err(err).
			Stringer("payment_id", p.ID).
			Stringer("order_id", p.OrderID).
			Str("provider_payment_id", input.ProviderPaymentID).
			Msg("service: persistence failed after valid signature, reconciliation required")
		s.publish(ctx, Event{
			Type:              EventReconciliationRequired,
			OrderID:           p.OrderID.String(),
			PaymentID:         p.ID.String(),
			ProviderOrderID:   p.ProviderOrderID,
			ProviderPaymentID: input.ProviderPaymentID,
			Amount:            p.Amount,
			Currency:          p.Currency,
		})
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
}

// ReportFailure records an explicit failure report from the checkout widget
// (payment abandoned or declined). Terminal states are left untouched.
func (s *service) ReportFailure(ctx context.Context, paymentID uuid.UUID) error {
	err := s.payments.MarkFailed(ctx, paymentID, StatusFailed, "")
	switch {
	case err == nil:
		log.Info().Stringer("payment_id", paymentID).Msg("service: payment marked failed")
		return nil
	case errors.Is(err, ErrNotInitiated):
		// Already in a terminal failed state.
		return nil
	case errors.Is(err, ErrAlreadyFinalized):
		return ErrAlreadyFinalized
	case errors.Is(err, ErrPaymentNotFound):
		return ErrPaymentNotFound
	default:
		return fmt.Errorf("service: failed to mark payment failed: %w", err)
	}
}

func (s *service) loadPayment(ctx context.Context, input VerifyInput) (*Payment, error) {
	var (
		p   *Payment
		err error
	)
	if input.PaymentID != uuid.Nil {
		p, err = s.payments.GetByID(ctx, input.PaymentID)
	} else {
		p, err = s.payments.GetByProviderOrderID(ctx, input.ProviderOrderID)
	}
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, ErrPaymentNotFound
		}
		log.Error().Err(err).Msg("service: failed to load payment for verification")
		return nil, fmt.Errorf("service: failed to load payment: %w", err)
	}

	return p, nil
}

// recordVerificationFailure persists the rejection before the caller
// responds, so the audit trail survives a crash after the response.
func (s *service) recordVerificationFailure(ctx context.Context, p *Payment, providerPaymentID string) {
	log.Warn().
		Stringer("payment_id", p.ID).
		Stringer("order_id", p.OrderID).
		Str("provider_payment_id", providerPaymentID).
		Msg("service: payment signature mismatch")

	if err := s.payments.MarkFailed(ctx, p.ID, StatusFailedVerification, providerPaymentID); err != nil &&
		!errors.Is(err, ErrNotInitiated) {
		log.Error().Err(err).Stringer("payment_id", p.ID).Msg("service: failed to persist verification failure")
	}

	s.publish(ctx, Event{
		Type:              EventVerificationFailed,
		OrderID:           p.OrderID.String(),
		PaymentID:         p.ID.String(),
		ProviderOrderID:   p.ProviderOrderID,
		ProviderPaymentID: providerPaymentID,
	})
}

// publish is fire-and-forget: the audit feed never affects the HTTP outcome.
func (s *service) publish(ctx context.Context, event Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, EventsTopic, event.OrderID, event); err != nil {
		log.Error().Err(err).Str("event_type", event.Type).Msg("service: failed to publish payment event")
	}
}
