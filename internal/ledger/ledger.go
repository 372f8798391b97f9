package ledger

import (
	"context"
	"sync"
	"time"

	"tradehook/internal/model"
	"tradehook/pkg/errors"
	"tradehook/pkg/errors/ecode"
	"tradehook/pkg/logger"
)

// 幂等账本：signal_id -> 首次提交的结果
// Reserve+Commit必须保证同一signal_id最多触发一次真实下单

// Outcome 一次订单提交的终态
type Outcome struct {
	Status          model.LedgerStatus
	ExchangeOrderID string
	ErrCode         int
	ErrMessage      string
	Retryable       bool
}

// ReserveResult Fresh=true表示占位成功，调用方继续下单
// Fresh=false表示重复信号，Existing是先前的记录
type ReserveResult struct {
	Fresh    bool
	Existing *model.LedgerRecord
}

type Store interface {
	Reserve(ctx context.Context, signalID string) (ReserveResult, error)
	Commit(ctx context.Context, signalID string, out Outcome) error
	Get(ctx context.Context, signalID string) (*model.LedgerRecord, bool, error)
}

// MemoryStore 进程内账本，单个互斥锁保护map
// 进程重启后账本清空，重启后的重投会被当作新信号（接受的局限）
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*model.LedgerRecord
	retention time.Duration
	nowFn     func() time.Time
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*model.LedgerRecord),
		retention: retention,
		nowFn:     time.Now,
	}
}

func (s *MemoryStore) Reserve(_ context.Context, signalID string) (ReserveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[signalID]; ok {
		cp := *rec
		return ReserveResult{Fresh: false, Existing: &cp}, nil
	}

	now := s.nowFn()
	s.records[signalID] = &model.LedgerRecord{
		SignalID:      signalID,
		Status:        model.LedgerPending,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
	return ReserveResult{Fresh: true}, nil
}

func (s *MemoryStore) Commit(_ context.Context, signalID string, out Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[signalID]
	if !ok {
		return errors.WithCode(ecode.NotFoundErr, "ledger record not found: "+signalID)
	}
	// 终态不可逆转
	if rec.Terminal() {
		return errors.WithCode(ecode.ValidateErr, "ledger record already terminal")
	}

	rec.Status = out.Status
	rec.ExchangeOrderID = out.ExchangeOrderID
	rec.ErrCode = out.ErrCode
	rec.ErrMessage = out.ErrMessage
	rec.Retryable = out.Retryable
	rec.LastUpdatedAt = s.nowFn()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, signalID string) (*model.LedgerRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[signalID]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

// Sweep 清理超过保留期的终态记录，返回清理数量
// PENDING记录不清理，避免在途订单失去幂等保护
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.nowFn().Add(-s.retention)
	n := 0
	for id, rec := range s.records {
		if rec.Terminal() && rec.LastUpdatedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n
}

// StartSweeper 周期清理，ctx取消后退出
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					logger.Debugf("ledger sweep: evicted %d records", n)
				}
			}
		}
	}()
}
