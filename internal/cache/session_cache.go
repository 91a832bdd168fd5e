// Package cache read-through кэш сессий в Redis поверх основного хранилища.
// Кэш никогда не источник истины: ошибки Redis логируются и запрос идёт в хранилище.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store хранилище, которое оборачивает кэш
type Store interface {
	CreateBatch(ctx context.Context, instances []*model.SessionInstance) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*model.SessionInstance, error)
	ListByMentor(ctx context.Context, mentorID int64) ([]*model.SessionInstance, error)
	UpdateCapacity(ctx context.Context, id int64, capacity int) (*model.SessionInstance, error)
	Delete(ctx context.Context, id int64) error
}

type SessionCache struct {
	inner  Store
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewSessionCache(inner Store, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *SessionCache {
	return &SessionCache{
		inner:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func sessionKey(id int64) string {
	return fmt.Sprintf("session:%d", id)
}

func mentorSessionsKey(mentorID int64) string {
	return fmt.Sprintf("sessions:mentor:%d", mentorID)
}

func (c *SessionCache) CreateBatch(ctx context.Context, instances []*model.SessionInstance) ([]int64, error) {
	ids, err := c.inner.CreateBatch(ctx, instances)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, 1)
	seen := make(map[int64]struct{})
	for _, inst := range instances {
		if _, ok := seen[inst.MentorID]; ok {
			continue
		}
		seen[inst.MentorID] = struct{}{}
		keys = append(keys, mentorSessionsKey(inst.MentorID))
	}
	c.invalidate(ctx, keys...)

	return ids, nil
}

func (c *SessionCache) GetByID(ctx context.Context, id int64) (*model.SessionInstance, error) {
	key := sessionKey(id)

	var cached model.SessionInstance
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	s, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, s)
	return s, nil
}

func (c *SessionCache) ListByMentor(ctx context.Context, mentorID int64) ([]*model.SessionInstance, error) {
	key := mentorSessionsKey(mentorID)

	var cached []*model.SessionInstance
	if c.load(ctx, key, &cached) {
		return cached, nil
	}

	sessions, err := c.inner.ListByMentor(ctx, mentorID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, sessions)
	return sessions, nil
}

func (c *SessionCache) UpdateCapacity(ctx context.Context, id int64, capacity int) (*model.SessionInstance, error) {
	s, err := c.inner.UpdateCapacity(ctx, id, capacity)
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, sessionKey(id), mentorSessionsKey(s.MentorID))
	return s, nil
}

func (c *SessionCache) Delete(ctx context.Context, id int64) error {
	s, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}

	c.invalidate(ctx, sessionKey(id), mentorSessionsKey(s.MentorID))
	return nil
}

func (c *SessionCache) load(ctx context.Context, key string, dest any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Session cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("Corrupted session cache entry", zap.String("key", key), zap.Error(err))
		return false
	}

	return true
}

func (c *SessionCache) store(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode session cache entry", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Session cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *SessionCache) invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Session cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
