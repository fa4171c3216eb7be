package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type cachedProductService struct {
	next        ProductService
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewCachedProductService serves product reads from Redis. Prices on existing order lines
// are snapshots, so a stale cached price only affects lines added within cacheTTL.
func NewCachedProductService(next ProductService, redisClient *redis.Client, cacheTTL time.Duration, logger *zap.Logger) ProductService {
	return &cachedProductService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func (s *cachedProductService) Create(ctx context.Context, in CreateProductInput) (*domain.Product, error) {
	return s.next.Create(ctx, in)
}

func (s *cachedProductService) GetByID(ctx context.Context, productID int64) (*domain.Product, error) {
	key := productKey(productID)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var product domain.Product
		if err := json.Unmarshal(val, &product); err == nil {
			return &product, nil
		}
		mylogger.Warn(ctx, s.logger, "Dropping unreadable cache entry", zap.String("key", key))
		s.redisClient.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		mylogger.Warn(ctx, s.logger, "Product cache unavailable", zap.Error(err))
	}

	product, err := s.next.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to cache product", zap.Int64("product_id", productID), zap.Error(err))
		}
	}

	return product, nil
}
