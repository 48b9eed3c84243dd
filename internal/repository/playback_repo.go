package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/pulse_server/internal/model"
)

type PlaybackRepository struct {
	db *gorm.DB
}

func NewPlaybackRepository(db *gorm.DB) *PlaybackRepository {
	return &PlaybackRepository{db: db}
}

func (r *PlaybackRepository) Create(ctx context.Context, session *model.PlaybackSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *PlaybackRepository) GetByID(ctx context.Context, id string) (*model.PlaybackSession, error) {
	var session model.PlaybackSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *PlaybackRepository) GetByToken(ctx context.Context, token string) (*model.PlaybackSession, error) {
	var session model.PlaybackSession
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}
