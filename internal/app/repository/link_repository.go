package repository

import (
	"context"
	"errors"

	"github.com/lumenlearn/growthloop/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrLinkNotFound signals that the requested smart link does not exist.
	ErrLinkNotFound = errors.New("smart link not found")

	// ErrCodeTaken signals that the candidate code already belongs to a link.
	ErrCodeTaken = errors.New("link code already taken")
)

// LinkRepository defines the data access contract for smart links.
// Links are append-only: there is deliberately no Update, and expired rows
// are reclaimed by the sweeper's raw SQL pass rather than through here.
type LinkRepository interface {
	Create(ctx context.Context, link *model.SmartLink) error
	GetByCode(ctx context.Context, code string) (*model.SmartLink, error)
	ListByInviter(ctx context.Context, inviterID string, limit int) ([]model.SmartLink, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

// Create inserts the link if its code is free. A taken code yields ErrCodeTaken
// so the caller can retry with a fresh code; the insert itself is the
// authoritative collision check.
func (r *linkRepository) Create(ctx context.Context, link *model.SmartLink) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeTaken
	}
	return nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*model.SmartLink, error) {
	var link model.SmartLink
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) ListByInviter(ctx context.Context, inviterID string, limit int) ([]model.SmartLink, error) {
	if limit <= 0 {
		limit = 20
	}

	var result []model.SmartLink
	if err := r.db.WithContext(ctx).
		Where("inviter_id = ?", inviterID).
		Order("created_at DESC").
		Limit(limit).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}
