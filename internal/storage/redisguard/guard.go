package redisguard

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	lockKeyPrefix = "cadm:stock:adjust:"
	lockTTL       = 7 * 24 * time.Hour
)

// Guard отмечает применённые корректировки стока в Redis, чтобы ретрай
// одного и того же adjustmentID не прошёл второй раз сквозь бэкенд.
type Guard struct {
	rdb    *rd.Client
	logger *log.Entry
}

// New создаёт гвард поверх готового Redis-клиента.
func New(rdb *rd.Client, logger *log.Entry) *Guard {
	if logger == nil {
		logger = log.New().WithField("component", "redis-guard")
	}
	return &Guard{rdb: rdb, logger: logger}
}

// Open подключается к Redis и проверяет доступность.
func Open(ctx context.Context, addr string, logger *log.Entry) (*Guard, error) {
	rdb := rd.NewClient(&rd.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return New(rdb, logger), nil
}

// Acquire помечает adjustmentID применённым. Первый вызов возвращает
// true; повтор того же идентификатора в пределах TTL — false.
func (g *Guard) Acquire(ctx context.Context, adjustmentID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, lockKeyPrefix+adjustmentID, "1", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire adjustment lock: %w", err)
	}
	if !ok {
		g.logger.WithField("adjustment_id", adjustmentID).Debug("duplicate stock adjustment suppressed")
	}
	return ok, nil
}

// Release снимает отметку, чтобы откатившийся батч можно было повторить.
func (g *Guard) Release(ctx context.Context, adjustmentID string) error {
	if err := g.rdb.Del(ctx, lockKeyPrefix+adjustmentID).Err(); err != nil {
		return fmt.Errorf("release adjustment lock: %w", err)
	}
	return nil
}

// Close закрывает подключение к Redis.
func (g *Guard) Close() error {
	return g.rdb.Close()
}
