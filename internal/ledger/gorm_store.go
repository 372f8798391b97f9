package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradehook/internal/model"
	"tradehook/pkg/errors"
	"tradehook/pkg/errors/ecode"
)

// GormStore MySQL持久化账本，进程重启后幂等保证仍然有效
type GormStore struct {
	db        *gorm.DB
	retention time.Duration
}

func NewGormStore(db *gorm.DB, retention time.Duration) (*GormStore, error) {
	if err := db.AutoMigrate(&model.LedgerRecord{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, retention: retention}, nil
}

// Reserve 依赖signal_id的唯一索引做原子占位
// 冲突时RowsAffected为0，再把已存在的记录读出来
func (s *GormStore) Reserve(ctx context.Context, signalID string) (ReserveResult, error) {
	now := time.Now()
	rec := model.LedgerRecord{
		SignalID:      signalID,
		Status:        model.LedgerPending,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "signal_id"}},
			DoNothing: true,
		}).
		Create(&rec)
	if res.Error != nil {
		return ReserveResult{}, res.Error
	}
	if res.RowsAffected > 0 {
		return ReserveResult{Fresh: true}, nil
	}

	existing, found, err := s.Get(ctx, signalID)
	if err != nil {
		return ReserveResult{}, err
	}
	if !found {
		// 插入冲突但又查不到，只能让调用方按重复处理再试
		return ReserveResult{}, errors.WithCode(ecode.Unknown, "ledger reserve race lost")
	}
	return ReserveResult{Fresh: false, Existing: existing}, nil
}

func (s *GormStore) Commit(ctx context.Context, signalID string, out Outcome) error {
	res := s.db.WithContext(ctx).
		Model(&model.LedgerRecord{}).
		Where("signal_id = ? AND status = ?", signalID, model.LedgerPending).
		Updates(map[string]interface{}{
			"status":            out.Status,
			"exchange_order_id": out.ExchangeOrderID,
			"err_code":          out.ErrCode,
			"err_message":       out.ErrMessage,
			"retryable":         out.Retryable,
			"last_updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.WithCode(ecode.ValidateErr, "ledger record missing or already terminal")
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, signalID string) (*model.LedgerRecord, bool, error) {
	var rec model.LedgerRecord
	err := s.db.WithContext(ctx).Where("signal_id = ?", signalID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// Sweep 删除超过保留期的终态记录
func (s *GormStore) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	res := s.db.WithContext(ctx).
		Where("status <> ? AND last_updated_at < ?", model.LedgerPending, cutoff).
		Delete(&model.LedgerRecord{})
	return res.RowsAffected, res.Error
}
