package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"go.uber.org/zap"
)

// cachedOrderStore reads single orders through redis. Cache failures are
// logged and never fail the call.
//
// Every write bumps a per-order generation next to the entry. A reader only
// fills the cache if the generation is still the one it saw before going to
// Postgres, so a slow read cannot put back a row a writer already replaced.
type cachedOrderStore struct {
	next     OrderStore
	rdb      redis.Cmdable
	cacheTTL time.Duration
	logger   *zap.Logger
}

// minGenerationTTL bounds how long a reader may sit between its generation
// read and its cache fill.
const minGenerationTTL = time.Minute

// fillScript: KEYS[1] entry, KEYS[2] generation; ARGV[1] generation seen,
// ARGV[2] payload, ARGV[3] ttl in ms (0 keeps the entry without expiry).
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if gen == false then gen = '' end
if gen ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// invalidateScript: KEYS[1] entry, KEYS[2] generation; ARGV[1] generation ttl in ms.
var invalidateScript = redis.NewScript(`
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
redis.call('DEL', KEYS[1])
return 1
`)

func NewCachedOrderStore(next OrderStore, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) OrderStore {
	return &cachedOrderStore{
		next:     next,
		rdb:      rdb,
		cacheTTL: ttl,
		logger:   logger,
	}
}

func orderKey(id int64) string {
	return fmt.Sprintf("order:%d", id)
}

func generationKey(id int64) string {
	return fmt.Sprintf("order:%d:gen", id)
}

func (s *cachedOrderStore) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	return s.next.Create(ctx, order)
}

func (s *cachedOrderStore) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	key := orderKey(id)

	val, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var order domain.Order
		if err := json.Unmarshal(val, &order); err == nil {
			return &order, nil
		}
		mylogger.Warn(ctx, s.logger, "Dropping unreadable cache entry", zap.String("key", key))
		s.invalidate(ctx, id)
	case !errors.Is(err, redis.Nil):
		mylogger.Warn(ctx, s.logger, "Cache read failed", zap.String("key", key), zap.Error(err))
	}

	gen, genErr := s.rdb.Get(ctx, generationKey(id)).Result()
	if errors.Is(genErr, redis.Nil) {
		gen, genErr = "", nil
	}

	order, err := s.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if genErr != nil {
		mylogger.Warn(ctx, s.logger, "Cache generation read failed", zap.Int64("order_id", id), zap.Error(genErr))
		return order, nil
	}

	s.fill(ctx, id, gen, order)
	return order, nil
}

func (s *cachedOrderStore) fill(ctx context.Context, id int64, gen string, order *domain.Order) {
	data, err := json.Marshal(order)
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to encode order for cache", zap.Error(err))
		return
	}

	keys := []string{orderKey(id), generationKey(id)}
	stored, err := fillScript.Run(ctx, s.rdb, keys, gen, data, s.cacheTTL.Milliseconds()).Int()
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Cache write failed", zap.String("key", keys[0]), zap.Error(err))
		return
	}
	if stored == 0 {
		mylogger.Debug(ctx, s.logger, "Skipped cache fill after concurrent write", zap.Int64("order_id", id))
	}
}

func (s *cachedOrderStore) List(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.next.List(ctx, params)
}

func (s *cachedOrderStore) Update(ctx context.Context, id int64, input *domain.Order) (*domain.Order, error) {
	order, err := s.next.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	return order, nil
}

func (s *cachedOrderStore) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.next.Delete(ctx, id)
	if err != nil {
		return false, err
	}

	s.invalidate(ctx, id)
	return deleted, nil
}

func (s *cachedOrderStore) UpdateStatus(ctx context.Context, id int64, status domain.Status) (*domain.Order, domain.Status, error) {
	order, previous, err := s.next.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, "", err
	}

	s.invalidate(ctx, id)
	return order, previous, nil
}

func (s *cachedOrderStore) invalidate(ctx context.Context, id int64) {
	genTTL := max(s.cacheTTL, minGenerationTTL)

	keys := []string{orderKey(id), generationKey(id)}
	if err := invalidateScript.Run(context.WithoutCancel(ctx), s.rdb, keys, genTTL.Milliseconds()).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Cache invalidation failed", zap.Int64("order_id", id), zap.Error(err))
	}
}
