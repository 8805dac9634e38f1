package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

type Service interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	// ProductsByIDs returns the current catalog entries for the given ids.
	// Every id must resolve to an active product, otherwise ErrProductNotFound.
	ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) List(ctx context.Context) ([]Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list products")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}

	return products, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to fetch product")
		return nil, fmt.Errorf("service: failed to fetch product: %w", err)
	}

	return p, nil
}

func (s *service) ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	products, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to fetch products by ids")
		return nil, fmt.Errorf("service: failed to fetch products by ids: %w", err)
	}

	byID := make(map[uuid.UUID]Product, len(products))
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		byID[p.ID] = p
	}

	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("service: product %s: %w", id, ErrProductNotFound)
		}
	}

	return byID, nil
}
