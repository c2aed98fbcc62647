package enquiry

import (
	"context"

	"gorm.io/gorm"

	"github.com/chataru/craftsite/internal/domain"
)

// Repository is append-only: enquiries are never updated or deleted.
type Repository interface {
	Create(ctx context.Context, e *domain.Enquiry) error
	// List returns enquiries most-recently-created first
	List(ctx context.Context, page domain.Page) ([]domain.Enquiry, error)
	Count(ctx context.Context) (int64, error)
}

// GormRepository is the GORM implementation of Repository
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, e *domain.Enquiry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *GormRepository) List(ctx context.Context, page domain.Page) ([]domain.Enquiry, error) {
	var rows []domain.Enquiry
	query := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if !page.All() {
		query = query.Offset(page.Offset).Limit(page.Limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

func (r *GormRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.Enquiry{}).Count(&total).Error
	return total, err
}
