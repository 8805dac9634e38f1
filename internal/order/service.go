package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/satvik-basket/backend/internal/product"
)

// Fulfillment transitions are driven by administrative action only. Payment
// status is owned by the payment orchestrator and never set here.
var allowedTransitions = map[Status]map[Status]bool{
	StatusCreated: {
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

var (
	ErrNoItems                 = errors.New("order must contain at least one item")
	ErrInvalidQuantity         = errors.New("order item quantity must be at least one")
	ErrIncompleteAddress       = errors.New("complete delivery address is required")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

type CreateOrderInput struct {
	Items           []ItemInput
	ShippingAddress Address
	PaymentMethod   string
}

// Catalog provides the server-trusted prices used to compute order totals.
type Catalog interface {
	ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]product.Product, error)
}

type Service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetLatestPendingOrder(ctx context.Context, userID uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error
}

type service struct {
	repo    Repository
	catalog Catalog
}

func NewService(repo Repository, catalog Catalog) Service {
	return &service{repo: repo, catalog: catalog}
}

// CreateOrder builds the order from the current catalog. The total amount is
// always recomputed here from catalog prices; any total the client sent is
// never consulted.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*Order, error) {
	if len(input.Items) == 0 {
		log.Warn().Stringer("user_id", userID).Msg("service: attempt to create order with no items")
		return nil, ErrNoItems
	}

	if err := validateAddress(input.ShippingAddress); err != nil {
		return nil, err
	}

	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("service: product %s: %w", item.ProductID, ErrInvalidQuantity)
		}
		if item.ProductID == uuid.Nil {
			return nil, errors.New("service: product id in order item cannot be nil")
		}
		productIDs = append(productIDs, item.ProductID)
	}

	catalogProducts, err := s.catalog.ProductsByIDs(ctx, productIDs)
	if err != nil {
		if errors.Is(err, product.ErrProductNotFound) {
			return nil, err
		}
		log.Error().Err(err).Msg("service: failed to resolve catalog prices")
		return nil, fmt.Errorf("service: failed to resolve catalog prices: %w", err)
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	totalAmount := 0.0
	items := make([]OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		p := catalogProducts[item.ProductID]
		items = append(items, OrderItem{
			ProductID: item.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  item.Quantity,
		})
		totalAmount += p.Price * float64(item.Quantity)
	}

	paymentMethod := input.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "RAZORPAY"
	}

	o := &Order{
		ID:              orderID,
		UserID:          userID,
		Items:           items,
		ShippingAddress: input.ShippingAddress,
		TotalAmount:     totalAmount,
		PaymentMethod:   paymentMethod,
		PaymentStatus:   PaymentStatusPending,
		Status:          StatusCreated,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("user_id", userID).
		Float64("total_amount", totalAmount).
		Msg("service: order created")

	return o, nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return o, nil
}

// GetLatestPendingOrder returns the caller's newest order still awaiting
// payment, ErrOrderNotFound when there is none.
func (s *service) GetLatestPendingOrder(ctx context.Context, userID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetLatestPendingByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch pending order")
		return nil, fmt.Errorf("service: failed to fetch pending order: %w", err)
	}

	return o, nil
}

func (s *service) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	return orders, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error {
	current, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if current.Status == newStatus {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order status already set")
		return nil
	}

	if !allowedTransitions[current.Status][newStatus] {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("current_status", current.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return fmt.Errorf("service: transition from %s to %s: %w", current.Status, newStatus, ErrInvalidStatusTransition)
	}

	if err := s.repo.UpdateStatus(ctx, orderID, newStatus); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to update order status")
		return fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("old_status", current.Status).
		Stringer("new_status", newStatus).
		Msg("service: order status updated")

	return nil
}

func validateAddress(a Address) error {
	required := []string{a.FullName, a.Phone, a.AddressLine1, a.City, a.State, a.Pincode, a.Country}
	for _, field := range required {
		if field == "" {
			return ErrIncompleteAddress
		}
	}
	return nil
}
