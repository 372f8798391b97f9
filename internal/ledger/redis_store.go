package ledger

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"

	"tradehook/internal/model"
	"tradehook/pkg/errors"
	"tradehook/pkg/errors/ecode"
)

// RedisStore 多实例部署时共享账本
// 记录以JSON存储，TTL即保留期，到期由redis自己清理

const redisKeyPrefix = "tradehook:ledger:"

type RedisStore struct {
	rdb       *redis.Client
	retention time.Duration
}

func NewRedisStore(rdb *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, retention: retention}
}

func (s *RedisStore) key(signalID string) string {
	return redisKeyPrefix + signalID
}

// Reserve 用SETNX原子占位
func (s *RedisStore) Reserve(ctx context.Context, signalID string) (ReserveResult, error) {
	now := time.Now()
	rec := model.LedgerRecord{
		SignalID:      signalID,
		Status:        model.LedgerPending,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return ReserveResult{}, err
	}

	ok, err := s.rdb.SetNX(ctx, s.key(signalID), data, s.retention).Result()
	if err != nil {
		return ReserveResult{}, err
	}
	if ok {
		return ReserveResult{Fresh: true}, nil
	}

	existing, found, err := s.Get(ctx, signalID)
	if err != nil {
		return ReserveResult{}, err
	}
	if !found {
		// 占位键刚好过期，重试一次就能拿到Fresh，这里直接按竞态报错
		return ReserveResult{}, errors.WithCode(ecode.Unknown, "ledger reserve race lost")
	}
	return ReserveResult{Fresh: false, Existing: existing}, nil
}

func (s *RedisStore) Commit(ctx context.Context, signalID string, out Outcome) error {
	// WATCH保证读改写期间记录没有被并发改掉
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, s.key(signalID)).Bytes()
		if err == redis.Nil {
			return errors.WithCode(ecode.NotFoundErr, "ledger record not found: "+signalID)
		}
		if err != nil {
			return err
		}

		var rec model.LedgerRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if rec.Terminal() {
			return errors.WithCode(ecode.ValidateErr, "ledger record already terminal")
		}

		rec.Status = out.Status
		rec.ExchangeOrderID = out.ExchangeOrderID
		rec.ErrCode = out.ErrCode
		rec.ErrMessage = out.ErrMessage
		rec.Retryable = out.Retryable
		rec.LastUpdatedAt = time.Now()

		updated, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key(signalID), updated, s.retention)
			return nil
		})
		return err
	}
	return s.rdb.Watch(ctx, txf, s.key(signalID))
}

func (s *RedisStore) Get(ctx context.Context, signalID string) (*model.LedgerRecord, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(signalID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec model.LedgerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}
