package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

func priceCacheKey(companyID, productID int64) string {
	return fmt.Sprintf("price:%d:%d", companyID, productID)
}

// ResolvePrice returns the effective price of a product for a company.
// Precedence: active unified pricing entry, then the default price list,
// then the product base price. Results are cached in Redis; a cache miss or
// a Redis outage falls through to the database.
func (s *Service) ResolvePrice(ctx context.Context, companyID, productID int64) (*ResolvedPrice, error) {
	key := priceCacheKey(companyID, productID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var resolved ResolvedPrice
			if err := json.Unmarshal(cached, &resolved); err == nil {
				return &resolved, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("price cache read", "key", key, "error", err)
		}
	}

	resolved, err := s.resolveFromStore(ctx, companyID, productID, time.Now())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(resolved); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("price cache write", "key", key, "error", err)
			}
		}
	}
	return resolved, nil
}

func (s *Service) resolveFromStore(ctx context.Context, companyID, productID int64, at time.Time) (*ResolvedPrice, error) {
	if entry, err := s.repo.FindActivePricing(ctx, companyID, productID, at); err == nil {
		return &ResolvedPrice{
			ProductID: productID,
			CompanyID: companyID,
			Price:     entry.Price,
			Source:    ResolvedFromPricing,
		}, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if price, err := s.repo.FindDefaultListPrice(ctx, companyID, productID, at); err == nil {
		return &ResolvedPrice{
			ProductID: productID,
			CompanyID: companyID,
			Price:     price,
			Source:    ResolvedFromPriceList,
		}, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	price, err := s.repo.GetBasePrice(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &ResolvedPrice{
		ProductID: productID,
		CompanyID: companyID,
		Price:     price,
		Source:    ResolvedFromBasePrice,
	}, nil
}

// invalidatePrice drops the cached resolution after any price mutation.
// Deletion failures are logged, not returned; the TTL bounds staleness.
func (s *Service) invalidatePrice(ctx context.Context, companyID, productID int64) {
	if s.cache == nil {
		return
	}
	key := priceCacheKey(companyID, productID)
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("price cache invalidate", "key", key, "error", err)
	}
}
