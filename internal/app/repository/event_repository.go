package repository

import (
	"context"

	"github.com/lumenlearn/growthloop/internal/app/model"
	"gorm.io/gorm"
)

// TrackingEventRepository defines the data access contract for the insert-only
// tracking event log.
type TrackingEventRepository interface {
	Create(ctx context.Context, event *model.TrackingEvent) error
}

type trackingEventRepository struct {
	db *gorm.DB
}

// NewTrackingEventRepository returns a GORM-backed TrackingEventRepository.
func NewTrackingEventRepository(db *gorm.DB) TrackingEventRepository {
	return &trackingEventRepository{db: db}
}

func (r *trackingEventRepository) Create(ctx context.Context, event *model.TrackingEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
