// Package profile serves customer aggregate profiles on the prediction path.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultTTL bounds profile staleness between labeling runs.
const DefaultTTL = 10 * time.Minute

// Service looks up customer history aggregates with a cache in front of
// the labeled table. Predictions for customers the batch pipeline has
// never seen fall back to a zero aggregate.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates a new profile service.
func NewService(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// Get returns the aggregate profile for a customer. Cache hits skip the
// database. An unknown customer returns a zero-valued aggregate rather
// than an error.
func (s *Service) Get(ctx context.Context, customerID string) (*domain.CustomerAggregate, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", domain.ErrInvalidInput)
	}

	if s.cache != nil {
		agg, err := s.cache.GetProfile(ctx, customerID)
		if err == nil && agg != nil {
			return agg, nil
		}
	}

	agg, err := s.repo.CustomerStats(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.CustomerAggregate{}, nil
		}
		return nil, fmt.Errorf("failed to load customer stats: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetProfile(ctx, customerID, agg, s.ttl)
	}

	return agg, nil
}

// Invalidate drops a cached profile, typically after a labeling run
// rewrites the aggregates.
func (s *Service) Invalidate(ctx context.Context, customerID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, "profile:"+customerID)
}
