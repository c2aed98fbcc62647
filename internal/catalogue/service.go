package catalogue

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chataru/craftsite/internal/domain"
	"github.com/chataru/craftsite/internal/upload"
)

// Service implements the product catalogue operations. Authentication is
// enforced by the HTTP layer before any mutating call reaches it.
type Service struct {
	repo   Repository
	images upload.ImageStore
	now    func() time.Time
}

func NewService(repo Repository, images upload.ImageStore) *Service {
	return &Service{repo: repo, images: images, now: time.Now}
}

// List returns products most recent first, plus the total row count.
func (s *Service) List(ctx context.Context, page domain.Page) ([]domain.Product, int64, error) {
	rows, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, 0, domain.WrapStorage("list products", err)
	}
	if page.All() {
		return rows, int64(len(rows)), nil
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, domain.WrapStorage("count products", err)
	}
	return rows, total, nil
}

// Create validates the input, stores the image and only then writes the row.
func (s *Service) Create(ctx context.Context, in domain.ProductInput, image *upload.File) (*domain.Product, error) {
	name, price, verr := validateInput(in)
	if image == nil || image.Reader == nil {
		verr.Add("image", "required")
	}
	if len(verr.Fields) > 0 {
		if missingRequired(verr) {
			verr.Message = "Name, price and image are required."
		}
		return nil, verr
	}

	ref, err := s.images.Save(ctx, image)
	if err != nil {
		return nil, err
	}

	p := &domain.Product{
		Name:        name,
		Price:       price,
		Description: strings.TrimSpace(in.Description),
		Image:       ref,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		s.discardImage(ctx, ref)
		return nil, domain.WrapStorage("create product", err)
	}
	return p, nil
}

// Update resubmits the full editable field set. A nil image keeps the
// existing reference; a new one supersedes it without deleting the old file.
func (s *Service) Update(ctx context.Context, id int64, in domain.ProductInput, image *upload.File) (domain.Outcome, error) {
	name, price, verr := validateInput(in)
	if len(verr.Fields) > 0 {
		if missingRequired(verr) {
			verr.Message = "Name and price are required."
		}
		return domain.OutcomeNoSuchRecord, verr
	}

	var ref *string
	if image != nil && image.Reader != nil {
		saved, err := s.images.Save(ctx, image)
		if err != nil {
			return domain.OutcomeNoSuchRecord, err
		}
		ref = &saved
	}

	outcome, err := s.repo.Update(ctx, id, name, price, strings.TrimSpace(in.Description), ref)
	if err != nil || outcome == domain.OutcomeNoSuchRecord {
		// the new image ended up on no row
		if ref != nil {
			s.discardImage(ctx, *ref)
		}
	}
	if err != nil {
		return outcome, domain.WrapStorage("update product", err)
	}
	if outcome == domain.OutcomeNoSuchRecord {
		zap.L().Debug("update addressed no product", zap.Int64("id", id))
	}
	return outcome, nil
}

func (s *Service) discardImage(ctx context.Context, ref string) {
	if err := s.images.Remove(context.WithoutCancel(ctx), ref); err != nil {
		zap.L().Warn("failed to remove image of unsaved product", zap.String("image", ref), zap.Error(err))
	}
}

// Delete removes the row when present. The image file is left in place.
func (s *Service) Delete(ctx context.Context, id int64) (domain.Outcome, error) {
	outcome, err := s.repo.Delete(ctx, id)
	if err != nil {
		return outcome, domain.WrapStorage("delete product", err)
	}
	return outcome, nil
}

// SweepImages removes stored images that no product references any more.
func (s *Service) SweepImages(ctx context.Context, grace time.Duration) (int, error) {
	refs, err := s.repo.ImageRefs(ctx)
	if err != nil {
		return 0, domain.WrapStorage("collect image refs", err)
	}
	return s.images.SweepOrphans(ctx, refs, grace)
}

func validateInput(in domain.ProductInput) (string, int64, *domain.ValidationError) {
	verr := &domain.ValidationError{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		verr.Add("name", "required")
	}
	var price int64
	raw := strings.TrimSpace(in.Price)
	if raw == "" {
		verr.Add("price", "required")
	} else if v, err := strconv.ParseInt(raw, 10, 64); err != nil {
		verr.Add("price", "must be a whole number")
	} else if v < 0 {
		verr.Add("price", "must not be negative")
	} else {
		price = v
	}
	return name, price, verr
}

func missingRequired(verr *domain.ValidationError) bool {
	for _, reason := range verr.Fields {
		if reason == "required" {
			return true
		}
	}
	return false
}
