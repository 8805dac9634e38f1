package payment

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusInitiated          Status = "INITIATED"
	StatusSuccess            Status = "SUCCESS"
	StatusFailed             Status = "FAILED"
	StatusFailedVerification Status = "FAILED_VERIFICATION"
)

func (s Status) String() string {
	return string(s)
}

// Payment is a single payment attempt against an order. Retries create new
// records; a record never leaves a terminal status.
type Payment struct {
	ID       uuid.UUID `json:"id" db:"id"`
	OrderID  uuid.UUID `json:"order_id" db:"order_id"`
	Provider string    `json:"provider" db:"provider"`
	// Amount is in minor units (paise), copied from the order at creation
	// and immutable afterwards.
	Amount            int64     `json:"amount" db:"amount"`
	Currency          string    `json:"currency" db:"currency"`
	ProviderOrderID   string    `json:"provider_order_id" db:"provider_order_id"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty" db:"provider_payment_id"`
	ProviderSignature string    `json:"-" db:"provider_signature"`
	Status            Status    `json:"status" db:"status"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// ProviderOrder is the provider-side order handle handed to the hosted
// checkout widget.
type ProviderOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
