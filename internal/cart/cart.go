package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Carts expire after thirty idle days.
const cartTTL = 30 * 24 * time.Hour

var ErrInvalidQuantity = errors.New("cart item quantity must be at least one")

type Item struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// Store keeps one Redis hash per user: product id -> quantity.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func cartKey(userID uuid.UUID) string {
	return "cart:" + userID.String()
}

func (s *Store) Get(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	fields, err := s.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cart: failed to read cart for user %s: %w", userID, err)
	}

	items := make([]Item, 0, len(fields))
	for field, value := range fields {
		productID, err := uuid.FromString(field)
		if err != nil {
			log.Warn().Str("field", field).Stringer("user_id", userID).Msg("cart: skipping malformed cart entry")
			continue
		}
		quantity, err := strconv.Atoi(value)
		if err != nil || quantity < 1 {
			log.Warn().Str("value", value).Stringer("user_id", userID).Msg("cart: skipping malformed cart quantity")
			continue
		}
		items = append(items, Item{ProductID: productID, Quantity: quantity})
	}

	return items, nil
}

// Replace overwrites the whole cart with the given items.
func (s *Store) Replace(ctx context.Context, userID uuid.UUID, items []Item) error {
	for _, item := range items {
		if item.Quantity < 1 {
			return fmt.Errorf("cart: product %s: %w", item.ProductID, ErrInvalidQuantity)
		}
	}

	key := cartKey(userID)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(items) > 0 {
		fields := make(map[string]interface{}, len(items))
		for _, item := range items {
			fields[item.ProductID.String()] = item.Quantity
		}
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, cartTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cart: failed to replace cart for user %s: %w", userID, err)
	}

	return nil
}

func (s *Store) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("cart: failed to clear cart for user %s: %w", userID, err)
	}
	return nil
}
