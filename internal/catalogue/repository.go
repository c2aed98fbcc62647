package catalogue

import (
	"context"

	"gorm.io/gorm"

	"github.com/chataru/craftsite/internal/domain"
)

// Repository handles database operations for products
type Repository interface {
	// List returns products most-recently-created first
	List(ctx context.Context, page domain.Page) ([]domain.Product, error)

	Count(ctx context.Context) (int64, error)

	Create(ctx context.Context, p *domain.Product) error

	// Update rewrites name, price and description, and image when image is non-nil
	Update(ctx context.Context, id int64, name string, price int64, description string, image *string) (domain.Outcome, error)

	Delete(ctx context.Context, id int64) (domain.Outcome, error)

	// ImageRefs returns every image reference currently held by a product
	ImageRefs(ctx context.Context) (map[string]struct{}, error)
}

// GormRepository is the GORM implementation of Repository
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) List(ctx context.Context, page domain.Page) ([]domain.Product, error) {
	var rows []domain.Product
	query := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if !page.All() {
		query = query.Offset(page.Offset).Limit(page.Limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

func (r *GormRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.Product{}).Count(&total).Error
	return total, err
}

func (r *GormRepository) Create(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *GormRepository) Update(ctx context.Context, id int64, name string, price int64, description string, image *string) (domain.Outcome, error) {
	updates := map[string]interface{}{
		"name":        name,
		"price":       price,
		"description": description,
	}
	if image != nil {
		updates["image"] = *image
	}
	res := r.db.WithContext(ctx).Model(&domain.Product{}).Where("id = ?", id).Updates(updates)
	return outcomeOf(res)
}

func (r *GormRepository) Delete(ctx context.Context, id int64) (domain.Outcome, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Product{})
	return outcomeOf(res)
}

func (r *GormRepository) ImageRefs(ctx context.Context) (map[string]struct{}, error) {
	var images []string
	if err := r.db.WithContext(ctx).Model(&domain.Product{}).Pluck("image", &images).Error; err != nil {
		return nil, err
	}
	refs := make(map[string]struct{}, len(images))
	for _, img := range images {
		refs[img] = struct{}{}
	}
	return refs, nil
}

func outcomeOf(res *gorm.DB) (domain.Outcome, error) {
	if res.Error != nil {
		return domain.OutcomeNoSuchRecord, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.OutcomeNoSuchRecord, nil
	}
	return domain.OutcomeApplied, nil
}
