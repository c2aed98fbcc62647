package enquiry

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/chataru/craftsite/internal/domain"
)

// TopicCreated is published with the stored *domain.Enquiry after every submit.
const TopicCreated = "enquiry.created"

// Publisher is the part of the event bus the service needs.
type Publisher interface {
	Publish(topic string, args ...interface{})
}

// Submission is what a visitor sends from the contact form.
type Submission struct {
	Name       string `json:"name" form:"name" validate:"max=200"`
	Email      string `json:"email" form:"email" validate:"max=320"`
	Phone      string `json:"phone" form:"phone" validate:"max=50"`
	Message    string `json:"message" form:"message" validate:"max=5000"`
	SourcePage string `json:"sourcePage" form:"sourcePage" validate:"max=500"`
}

type Service struct {
	repo Repository
	bus  Publisher
	now  func() time.Time
}

// NewService creates the enquiry service. bus may be nil.
func NewService(repo Repository, bus Publisher) *Service {
	return &Service{repo: repo, bus: bus, now: time.Now}
}

// Submit stores a new enquiry. Name, email and message are required.
func (s *Service) Submit(ctx context.Context, sub Submission) (*domain.Enquiry, error) {
	e := &domain.Enquiry{
		Name:       strings.TrimSpace(sub.Name),
		Email:      strings.TrimSpace(sub.Email),
		Phone:      strings.TrimSpace(sub.Phone),
		Message:    strings.TrimSpace(sub.Message),
		SourcePage: strings.TrimSpace(sub.SourcePage),
	}

	verr := &domain.ValidationError{}
	if e.Name == "" {
		verr.Add("name", "required")
	}
	if e.Email == "" {
		verr.Add("email", "required")
	}
	if e.Message == "" {
		verr.Add("message", "required")
	}
	if len(verr.Fields) > 0 {
		verr.Message = "Name, email and message are required."
		return nil, verr
	}

	e.CreatedAt = s.now()
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, domain.WrapStorage("save enquiry", err)
	}
	if s.bus != nil {
		s.bus.Publish(TopicCreated, e)
	}
	return e, nil
}

// List returns enquiries most recent first, plus the total row count.
func (s *Service) List(ctx context.Context, page domain.Page) ([]domain.Enquiry, int64, error) {
	rows, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, 0, domain.WrapStorage("list enquiries", err)
	}
	if page.All() {
		return rows, int64(len(rows)), nil
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, domain.WrapStorage("count enquiries", err)
	}
	return rows, total, nil
}

// ExportCSV writes every enquiry, most recent first, as CSV with a header row.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.repo.List(ctx, domain.Page{})
	if err != nil {
		return domain.WrapStorage("export enquiries", err)
	}
	if len(rows) == 0 {
		// gocsv writes nothing for an empty slice; keep the header
		_, err := io.WriteString(w, "id,name,email,phone,message,source_page,created_at\n")
		return err
	}
	return errors.Wrap(gocsv.Marshal(rows, w), "encode enquiries csv")
}
