package promotion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for promotions. Implementations return
// promotions already normalized to a product id list, whatever the storage layout.
type Repository interface {
	ActivePromotions(ctx context.Context, storeID string, now time.Time) ([]Promotion, error)
	CreatePromotion(ctx context.Context, p Promotion) (Promotion, error)
}

// Service exposes promotion lookups and creation.
type Service struct {
	Repo Repository
	Now  func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Running returns the promotions of a store that are active at the current instant.
func (s *Service) Running(ctx context.Context, storeID string) ([]Promotion, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("promotion service not configured")
	}
	now := s.now()
	promos, err := s.Repo.ActivePromotions(ctx, storeID, now)
	if err != nil {
		return nil, err
	}
	out := promos[:0:0]
	for _, p := range promos {
		if p.Running(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Create validates and persists a new promotion.
func (s *Service) Create(ctx context.Context, p Promotion) (Promotion, error) {
	if s == nil || s.Repo == nil {
		return Promotion{}, errors.New("promotion service not configured")
	}
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return Promotion{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()
	p.StartsAt = p.StartsAt.UTC()
	p.EndsAt = p.EndsAt.UTC()
	return s.Repo.CreatePromotion(ctx, p)
}
