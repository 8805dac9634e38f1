package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/satvik-basket/backend/internal/order"
	"github.com/satvik-basket/backend/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPaymentRepository struct {
	createFunc               func(ctx context.Context, p *payment.Payment) error
	getByIDFunc              func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	getByProviderOrderIDFunc func(ctx context.Context, providerOrderID string) (*payment.Payment, error)
	finalizeSuccessFunc      func(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) error
	markFailedFunc           func(ctx context.Context, id uuid.UUID, status payment.Status, providerPaymentID string) error
}

func (m *mockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return m.createFunc(ctx, p)
}

func (m *mockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockPaymentRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*payment.Payment, error) {
	return m.getByProviderOrderIDFunc(ctx, providerOrderID)
}

func (m *mockPaymentRepository) FinalizeSuccess(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) error {
	return m.finalizeSuccessFunc(ctx, id, providerPaymentID, providerSignature)
}

func (m *mockPaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, status payment.Status, providerPaymentID string) error {
	return m.markFailedFunc(ctx, id, status, providerPaymentID)
}

type mockOrderStore struct {
	getByIDFunc func(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

func (m *mockOrderStore) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

type mockGateway struct {
	createOrderFunc     func(ctx context.Context, amount int64, currency, receipt string) (payment.ProviderOrder, error)
	verifySignatureFunc func(providerOrderID, providerPaymentID, signature string) bool
}

func (m *mockGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (payment.ProviderOrder, error) {
	return m.createOrderFunc(ctx, amount, currency, receipt)
}

func (m *mockGateway) VerifySignature(providerOrderID, providerPaymentID, signature string) bool {
	return m.verifySignatureFunc(providerOrderID, providerPaymentID, signature)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func payableOrder(id uuid.UUID, total float64) *order.Order {
	return &order.Order{
		ID:            id,
		TotalAmount:   total,
		PaymentStatus: order.PaymentStatusPending,
		Status:        order.StatusCreated,
	}
}

func TestService_CreatePayment(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())

	t.Run("success_amount_in_minor_units", func(t *testing.T) {
		var gotAmount int64
		var gotCurrency string
		gateway := &mockGateway{
			createOrderFunc: func(ctx context.Context, amount int64, currency, receipt string) (payment.ProviderOrder, error) {
				gotAmount = amount
				gotCurrency = currency
				return payment.ProviderOrder{ID: "order_FtH8visQ3PDrNM", Amount: amount, Currency: currency}, nil
			},
		}

		var persisted *payment.Payment
		repo := &mockPaymentRepository{
			createFunc: func(ctx context.Context, p *payment.Payment) error {
				persisted = p
				return nil
			},
		}
		orders := &mockOrderStore{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return payableOrder(orderID, 200), nil
			},
		}

		svc := payment.NewService(repo, orders, gateway, nil)
		session, err := svc.CreatePayment(context.Background(), orderID)
		require.NoError(t, err)

		// 200 rupees become 20000 paise, taken from the stored order, never
		// from the caller.
		assert.Equal(t, int64(20000), gotAmount)
		assert.Equal(t, "INR", gotCurrency)
		assert.Equal(t, "order_FtH8visQ3PDrNM", session.ProviderOrder.ID)
		assert.NotEqual(t, uuid.Nil, session.PaymentID)

		require.NotNil(t, persisted)
		assert.Equal(t, payment.StatusInitiated, persisted.Status)
		assert.Equal(t, int64(20000), persisted.Amount)
		assert.Equal(t, orderID, persisted.OrderID)
		assert.Equal(t, "razorpay", persisted.Provider)
	})

	t.Run("order_not_found", func(t *testing.T) {
		orders := &mockOrderStore{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
		}

		svc := payment.NewService(&mockPaymentRepository{}, orders, &mockGateway{}, nil)
		_, err := svc.CreatePayment(context.Background(), orderID)
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})

	t.Run("order_not_payable", func(t *testing.T) {
		tests := []struct {
			name          string
			paymentStatus order.PaymentStatus
			orderStatus   order.Status
		}{
			{name: "already_paid", paymentStatus: order.PaymentStatusPaid, orderStatus: order.StatusConfirmed},
			{name: "cancelled", paymentStatus: order.PaymentStatusPending, orderStatus: order.StatusCancelled},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				orders := &mockOrderStore{
					getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
						o := payableOrder(orderID, 200)
						o.PaymentStatus = tt.paymentStatus
						o.Status = tt.orderStatus
						return o, nil
					},
				}

				svc := payment.NewService(&mockPaymentRepository{}, orders, &mockGateway{}, nil)
				_, err := svc.CreatePayment(context.Background(), orderID)
				assert.ErrorIs(t, err, payment.ErrOrderNotPayable)
			})
		}
	})

	t.Run("provider_unavailable_order_stays_payable", func(t *testing.T) {
		gateway := &mockGateway{
			createOrderFunc: func(ctx context.Context, amount int64, currency, receipt string) (payment.ProviderOrder, error) {
				return payment.ProviderOrder{}, errors.New("connection refused")
			},
		}
		repo := &mockPaymentRepository{
			createFunc: func(ctx context.Context, p *payment.Payment) error {
				t.Fatal("no payment record must be created when the provider call fails")
				return nil
			},
		}
		orders := &mockOrderStore{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return payableOrder(orderID, 200), nil
			},
		}

		svc := payment.NewService(repo, orders, gateway, nil)
		_, err := svc.CreatePayment(context.Background(), orderID)
		assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
	})
}

func initiatedPayment(orderID uuid.UUID) *payment.Payment {
	return &payment.Payment{
		ID:              uuid.Must(uuid.NewV4()),
		OrderID:         orderID,
		Provider:        "razorpay",
		Amount:          20000,
		Currency:        "INR",
		ProviderOrderID: "order_FtH8visQ3PDrNM",
		Status:          payment.StatusInitiated,
	}
}

func TestService_VerifyPayment_Success(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	p := initiatedPayment(orderID)

	finalized := false
	repo := &mockPaymentRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
			return p, nil
		},
		finalizeSuccessFunc: func(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) error {
			finalized = true
			assert.Equal(t, p.ID, id)
			assert.Equal(t, "pay_LmP0c2ViRqhJwz", providerPaymentID)
			return nil
		},
	}
	gateway := &mockGateway{
		verifySignatureFunc: func(providerOrderID, providerPaymentID, signature string) bool {
			// The stored provider order id is what gets signed, not the
			// client-supplied one.
			assert.Equal(t, p.ProviderOrderID, providerOrderID)
			return true
		},
	}
	publisher := &recordingPublisher{}

	svc := payment.NewService(repo, &mockOrderStore{}, gateway, publisher)
	err := svc.VerifyPayment(context.Background(), payment.VerifyInput{
		PaymentID:         p.ID,
		ProviderOrderID:   "order_FtH8visQ3PDrNM",
		ProviderPaymentID: "pay_LmP0c2ViRqhJwz",
		Signature:         "good-signature",
	})
	require.NoError(t, err)
	assert.True(t, finalized)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0].(payment.Event)
	assert.Equal(t, payment.EventCaptured, event.Type)
	assert.Equal(t, orderID.String(), event.OrderID)
}

func TestService_VerifyPayment_InvalidSignature(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	p := initiatedPayment(orderID)

	var markedStatus payment.Status
	var markedProviderPaymentID string
	repo := &mockPaymentRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
			return p, nil
		},
		finalizeSuccessFunc: func(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) error {
			t.Fatal("finalize must not run on signature mismatch")
			return nil
		},
		markFailedFunc: func(ctx context.Context, id uuid.UUID, status payment.Status, providerPaymentID string) error {
			markedStatus = status
			markedProviderPaymentID = providerPaymentID
			return nil
		},
	}
	gateway := &mockGateway{
		verifySignatureFunc: func(providerOrderID, providerPaymentID, signature string) bool {
			return false
		},
	}
	publisher := &recordingPublisher{}

	svc := payment.NewService(repo, &mockOrderStore{}, gateway, publisher)
	err := svc.VerifyPayment(context.Background(), payment.VerifyInput{
		PaymentID:         p.ID,
		ProviderOrderID:   p.ProviderOrderID,
		ProviderPaymentID: "pay_forged",
		Signature:         "tampered-signature",
	})
	assert.ErrorIs(t, err, payment.ErrSignatureInvalid)

	// Failure is persisted with the provider payment id for audit.
	assert.Equal(t, payment.StatusFailedVerification, markedStatus)
	assert.Equal(t, "pay_forged", markedProviderPaymentID)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0].(payment.Event)
	assert.Equal(t, payment.EventVerificationFailed, event.Type)
}

func TestService_VerifyPayment_Idempotent(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())

	t.Run("already_success_fast_path", func(t *testing.T) {
		p := initiatedPayment(orderID)
		p.Status = payment.StatusSuccess

		repo := &mockPaymentRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
				return p, nil
			},
			finalizeSuccessFunc: func(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) error {
				t.Fatal("finalize must not run for an already finalized payment")
				return nil
			},
		}
		gateway := &mockGateway{
			verifySignatureFunc: func(providerOrderID, providerPaymentID, signature string) bool {
				t.Fatal("signature must not be rechecked for an already finalized payment")
				return false
			},
		}

		svc := payment.NewService(repo, &mockOrderStore{}, gateway, nil)
		err := svc.VerifyPayment(context.Background(), payment.VerifyInput{PaymentID: p.ID})
		assert.NoError(t, err)
	})

	t.Run("lost_race_to_concurrent_verify", func(t *testing.T) {
		p := initiatedPayment(orderID)

		repo := &mockPaymentRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
				return p, nil
			},
			finalizeSuccessFunc: func(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) error {
				return payment.ErrAlreadyFinalized
			},
		}
		gateway := &mockGateway{
			verifySignatureFunc: func(providerOrderID, providerPaymentID, signature string) bool { return true },
		}

		svc := payment.NewService(repo, &mockOrderStore{}, gateway, nil)
		err := svc.VerifyPayment(context.Background(), payment.VerifyInput{
			PaymentID:         p.ID,
			ProviderPaymentID: "pay_LmP0c2ViRqhJwz",
			Signature:         "good-signature",
		})
		assert.NoError(t, err)
	})
}

func TestService_VerifyPayment_PersistenceFailure(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	p := initiatedPayment(orderID)

	repo := &mockPaymentRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
			return p, nil
		},
		finalizeSuccessFunc: func(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) error {
			return errors.New("connection reset")
		},
	}
	gateway := &mockGateway{
		verifySignatureFunc: func(providerOrderID, providerPaymentID, signature string) bool { return true },
	}
	publisher := &recordingPublisher{}

	svc := payment.NewService(repo, &mockOrderStore{}, gateway, publisher)
	err := svc.VerifyPayment(context.Background(), payment.VerifyInput{
		PaymentID:         p.ID,
		ProviderPaymentID: "pay_LmP0c2ViRqhJwz",
		Signature:         "good-signature",
	})
	assert.ErrorIs(t, err, payment.ErrPersistenceFailure)
	assert.NotErrorIs(t, err, payment.ErrSignatureInvalid)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0].(payment.Event)
	assert.Equal(t, payment.EventReconciliationRequired, event.Type)
}

func TestService_VerifyPayment_PaymentNotFound(t *testing.T) {
	repo := &mockPaymentRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
			return nil, payment.ErrPaymentNotFound
		},
	}

	svc := payment.NewService(repo, &mockOrderStore{}, &mockGateway{}, nil)
	err := svc.VerifyPayment(context.Background(), payment.VerifyInput{PaymentID: uuid.Must(uuid.NewV4())})
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound)
}

func TestService_VerifyPayment_LookupByProviderOrderID(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	p := initiatedPayment(orderID)

	repo := &mockPaymentRepository{
		getByProviderOrderIDFunc: func(ctx context.Context, providerOrderID string) (*payment.Payment, error) {
			assert.Equal(t, p.ProviderOrderID, providerOrderID)
			return p, nil
		},
		finalizeSuccessFunc: func(ctx context.Context, id uuid.UUID, providerPaymentID, providerSignature string) error {
			return nil
		},
	}
	gateway := &mockGateway{
		verifySignatureFunc: func(providerOrderID, providerPaymentID, signature string) bool { return true },
	}

	svc := payment.NewService(repo, &mockOrderStore{}, gateway, nil)
	err := svc.VerifyPayment(context.Background(), payment.VerifyInput{
		ProviderOrderID:   p.ProviderOrderID,
		ProviderPaymentID: "pay_LmP0c2ViRqhJwz",
		Signature:         "good-signature",
	})
	assert.NoError(t, err)
}

func TestService_ReportFailure(t *testing.T) {
	paymentID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name       string
		markFailed func(ctx context.Context, id uuid.UUID, status payment.Status, providerPaymentID string) error
		wantErrIs  error
	}{
		{
			name: "marks_initiated_payment_failed",
			markFailed: func(ctx context.Context, id uuid.UUID, status payment.Status, providerPaymentID string) error {
				assert.Equal(t, payment.StatusFailed, status)
				return nil
			},
		},
		{
			name: "already_failed_is_noop",
			markFailed: func(ctx context.Context, id uuid.UUID, status payment.Status, providerPaymentID string) error {
				return payment.ErrNotInitiated
			},
		},
		{
			name: "successful_payment_cannot_be_failed",
			markFailed: func(ctx context.Context, id uuid.UUID, status payment.Status, providerPaymentID string) error {
				return payment.ErrAlreadyFinalized
			},
			wantErrIs: payment.ErrAlreadyFinalized,
		},
		{
			name: "unknown_payment",
			markFailed: func(ctx context.Context, id uuid.UUID, status payment.Status, providerPaymentID string) error {
				return payment.ErrPaymentNotFound
			},
			wantErrIs: payment.ErrPaymentNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPaymentRepository{markFailedFunc: tt.markFailed}
			svc := payment.NewService(repo, &mockOrderStore{}, &mockGateway{}, nil)

			err := svc.ReportFailure(context.Background(), paymentID)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			assert.NoError(t, err)
		})
	}
}
