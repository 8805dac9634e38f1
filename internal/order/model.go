package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) String() string {
	return string(s)
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

func (ps PaymentStatus) String() string {
	return string(ps)
}

// Address is a denormalized copy of the delivery address taken at checkout.
// Later edits to the customer's address book never alter past orders.
type Address struct {
	FullName     string `json:"full_name" db:"shipping_full_name"`
	Phone        string `json:"phone" db:"shipping_phone"`
	AddressLine1 string `json:"address_line1" db:"shipping_address_line1"`
	AddressLine2 string `json:"address_line2,omitempty" db:"shipping_address_line2"`
	City         string `json:"city" db:"shipping_city"`
	State        string `json:"state" db:"shipping_state"`
	Pincode      string `json:"pincode" db:"shipping_pincode"`
	Country      string `json:"country" db:"shipping_country"`
}

// OrderItem snapshots the product name and unit price at order-creation time.
type OrderItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Name      string    `json:"name" db:"name"`
	Price     float64   `json:"price" db:"price"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PaymentResult is the last-known provider correlation triple, kept on the
// order for audit. The payments table holds the full attempt history.
type PaymentResult struct {
	RazorpayOrderID   string `json:"razorpay_order_id,omitempty" db:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id,omitempty" db:"razorpay_payment_id"`
	RazorpaySignature string `json:"-" db:"razorpay_signature"`
}

type Order struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	UserID          uuid.UUID     `json:"user_id" db:"user_id"`
	Items           []OrderItem   `json:"items" db:"-"`
	ShippingAddress Address       `json:"shipping_address"`
	TotalAmount     float64       `json:"total_amount" db:"total_amount"`
	PaymentMethod   string        `json:"payment_method" db:"payment_method"`
	PaymentStatus   PaymentStatus `json:"payment_status" db:"payment_status"`
	Status          Status        `json:"order_status" db:"order_status"`
	PaymentResult   PaymentResult `json:"payment_result,omitempty"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// Payable reports whether the order is still awaiting its first successful
// payment.
func (o *Order) Payable() bool {
	return o.Status == StatusCreated && o.PaymentStatus == PaymentStatusPending
}
