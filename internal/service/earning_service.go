package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/model/dto"
	"github.com/qs3c/pulse_server/internal/repository"
)

type EarningService struct {
	repo *repository.EarningRepository
}

func NewEarningService(repo *repository.EarningRepository) *EarningService {
	return &EarningService{repo: repo}
}

// WithTx 返回在事务内写入的副本
func (s *EarningService) WithTx(tx *gorm.DB) *EarningService {
	return &EarningService{repo: s.repo.WithTx(tx)}
}

// Record 追加一条收入，同一事件重复写入时返回 false
func (s *EarningService) Record(ctx context.Context, earning *model.Earning) (bool, error) {
	if earning.RecordedAt.IsZero() {
		earning.RecordedAt = time.Now().UTC()
	}
	return s.repo.Append(ctx, earning)
}

// SumEarnings 汇总 [from, to) 区间收入，零值表示不限
func (s *EarningService) SumEarnings(ctx context.Context, creatorID int64, from, to time.Time) (int64, error) {
	return s.repo.Sum(ctx, creatorID, from.UTC(), to.UTC())
}

// ListEarnings 分页获取收入流水
func (s *EarningService) ListEarnings(ctx context.Context, creatorID int64, page, pageSize int) ([]*dto.EarningItem, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	earnings, total, err := s.repo.ListByCreator(ctx, creatorID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.EarningItem, 0, len(earnings))
	for _, e := range earnings {
		items = append(items, &dto.EarningItem{
			ID:         e.ID,
			Amount:     e.Amount,
			Currency:   e.Currency,
			SourceType: e.SourceType,
			SourceID:   e.SourceID,
			RecordedAt: e.RecordedAt,
		})
	}
	return items, total, nil
}
