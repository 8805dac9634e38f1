package order

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

var ErrOrderNotFound = errors.New("order not found")

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetLatestPendingByUserID(ctx context.Context, userID uuid.UUID) (*Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, user_id, total_amount, payment_method, payment_status, order_status,
		shipping_full_name, shipping_phone, shipping_address_line1, shipping_address_line2,
		shipping_city, shipping_state, shipping_pincode, shipping_country,
		razorpay_order_id, razorpay_payment_id, razorpay_signature, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, o *Order) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback order creation")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	now := time.Now().UTC()

	queryOrder := `
		INSERT INTO orders (id, user_id, total_amount, payment_method, payment_status, order_status,
			shipping_full_name, shipping_phone, shipping_address_line1, shipping_address_line2,
			shipping_city, shipping_state, shipping_pincode, shipping_country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = tx.Exec(ctx, queryOrder,
		o.ID,
		o.UserID,
		o.TotalAmount,
		o.PaymentMethod,
		string(o.PaymentStatus),
		string(o.Status),
		o.ShippingAddress.FullName,
		o.ShippingAddress.Phone,
		o.ShippingAddress.AddressLine1,
		o.ShippingAddress.AddressLine2,
		o.ShippingAddress.City,
		o.ShippingAddress.State,
		o.ShippingAddress.Pincode,
		o.ShippingAddress.Country,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, name, price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i := range o.Items {
		item := &o.Items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order item id: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = o.ID

		_, err = tx.Exec(ctx, queryItem,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
		item.CreatedAt = now
		item.UpdatedAt = now
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1
	`
	return r.getOne(ctx, query, id)
}

// GetLatestPendingByUserID returns the user's newest order still awaiting its
// first payment, so an interrupted checkout can be resumed.
func (r *postgresRepository) GetLatestPendingByUserID(ctx context.Context, userID uuid.UUID) (*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1 AND payment_status = 'PENDING' AND order_status = 'CREATED'
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, userID)
}

func (r *postgresRepository) getOne(ctx context.Context, query string, arg any) (*Order, error) {
	var o Order
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&o.ID,
		&o.UserID,
		&o.TotalAmount,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.Status,
		&o.ShippingAddress.FullName,
		&o.ShippingAddress.Phone,
		&o.ShippingAddress.AddressLine1,
		&o.ShippingAddress.AddressLine2,
		&o.ShippingAddress.City,
		&o.ShippingAddress.State,
		&o.ShippingAddress.Pincode,
		&o.ShippingAddress.Country,
		&o.PaymentResult.RazorpayOrderID,
		&o.PaymentResult.RazorpayPaymentID,
		&o.PaymentResult.RazorpaySignature,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order: %w", err)
	}

	items, err := r.itemsForOrders(ctx, []uuid.UUID{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = make([]OrderItem, 0)
	}

	return &o, nil
}

func (r *postgresRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var o Order
		err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.TotalAmount,
			&o.PaymentMethod,
			&o.PaymentStatus,
			&o.Status,
			&o.ShippingAddress.FullName,
			&o.ShippingAddress.Phone,
			&o.ShippingAddress.AddressLine1,
			&o.ShippingAddress.AddressLine2,
			&o.ShippingAddress.City,
			&o.ShippingAddress.State,
			&o.ShippingAddress.Pincode,
			&o.ShippingAddress.Country,
			&o.PaymentResult.RazorpayOrderID,
			&o.PaymentResult.RazorpayPaymentID,
			&o.PaymentResult.RazorpaySignature,
			&o.CreatedAt,
			&o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for user %s: %w", userID, err)
		}
		o.Items = make([]OrderItem, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders for user %s: %w", userID, err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	items, err := r.itemsForOrders(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for orderID, orderItems := range items {
		if o, ok := ordersMap[orderID]; ok {
			o.Items = orderItems
		}
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}

	return result, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error {
	query := `
		UPDATE orders
		SET order_status = $1, updated_at = $2
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, string(newStatus), time.Now().UTC(), orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status for %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) itemsForOrders(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, name, price, quantity, created_at, updated_at
		FROM order_items
		WHERE order_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]OrderItem)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return items, nil
}
