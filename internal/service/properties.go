package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vbonduro/proplist/internal/backend"
	"github.com/vbonduro/proplist/internal/domain"
	"github.com/vbonduro/proplist/internal/mapper"
	"github.com/vbonduro/proplist/internal/metrics"
)

const (
	NoticeSampleData = "Failed to load properties. Using sample data instead."
	NoticeEmpty      = "No properties found. Add a new property to get started."
)

var ErrInvalidID = errors.New("invalid property id")

var validate = validator.New(validator.WithRequiredStructEnabled())

// propertyDirectory is the subset of backend.PropertyDirectory the services
// require.
type propertyDirectory interface {
	List(ctx context.Context) ([]backend.PropertyDTO, error)
	Get(ctx context.Context, id int64) (*backend.PropertyDTO, error)
	Create(ctx context.Context, p backend.PropertyDTO) (*backend.PropertyDTO, error)
	Update(ctx context.Context, id int64, p backend.PropertyDTO) (*backend.PropertyDTO, error)
	Delete(ctx context.Context, id int64) error
	ByType(ctx context.Context, propertyType string) ([]backend.PropertyDTO, error)
	Search(ctx context.Context, keyword string) ([]backend.PropertyDTO, error)
	ByMaxPrice(ctx context.Context, maxPrice float64) ([]backend.PropertyDTO, error)
	ByAgent(ctx context.Context, agentID int64) ([]backend.PropertyDTO, error)
	UploadImage(ctx context.Context, propertyID int64, up backend.ImageUpload) (*backend.ImageDTO, error)
	ListImages(ctx context.Context, propertyID int64) ([]backend.ImageDTO, error)
	UpdateImage(ctx context.Context, imageID int64, description string, displayOrder int) (*backend.ImageDTO, error)
	DeleteImage(ctx context.Context, imageID int64) error
}

// Filter narrows a listing. Zero values mean no constraint.
type Filter struct {
	Type     domain.PropertyType
	Keyword  string
	MaxPrice float64
}

// Listing is what the browse view shows. Notice is set when the list is empty
// or came from sample data.
type Listing struct {
	Properties []*domain.Property `json:"properties"`
	Notice     string             `json:"notice,omitempty"`
	Sample     bool               `json:"sample"`
}

type PropertyService struct {
	props  propertyDirectory
	mapper *mapper.Mapper
	logger *slog.Logger
}

func NewPropertyService(props propertyDirectory, m *mapper.Mapper, logger *slog.Logger) *PropertyService {
	return &PropertyService{props: props, mapper: m, logger: logger}
}

// List never fails: a backend error yields the built-in sample properties.
func (s *PropertyService) List(ctx context.Context, f Filter) *Listing {
	dtos, err := s.query(ctx, f)
	if err != nil {
		s.logger.Error("failed to load properties, using sample data", "error", err)
		metrics.SampleFallbacks.Inc()
		return &Listing{Properties: filterLocal(SampleProperties(), f), Notice: NoticeSampleData, Sample: true}
	}

	props := filterLocal(s.mapper.ToViewList(dtos), f)
	l := &Listing{Properties: props}
	if len(props) == 0 {
		l.Notice = NoticeEmpty
	}
	return l
}

// query picks the most selective backend endpoint; the rest of the filter is
// applied locally.
func (s *PropertyService) query(ctx context.Context, f Filter) ([]backend.PropertyDTO, error) {
	switch {
	case f.Keyword != "":
		return s.props.Search(ctx, f.Keyword)
	case f.Type != "":
		return s.props.ByType(ctx, string(f.Type))
	case f.MaxPrice > 0:
		return s.props.ByMaxPrice(ctx, f.MaxPrice)
	default:
		return s.props.List(ctx)
	}
}

func filterLocal(props []*domain.Property, f Filter) []*domain.Property {
	out := make([]*domain.Property, 0, len(props))
	kw := strings.ToLower(f.Keyword)
	for _, p := range props {
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.MaxPrice > 0 && p.Price > f.MaxPrice {
			continue
		}
		if kw != "" && !strings.Contains(strings.ToLower(p.Title+" "+p.Description+" "+p.Location), kw) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *PropertyService) Get(ctx context.Context, id int64) (*domain.Property, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	dto, err := s.props.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.mapper.ToView(*dto), nil
}

func (s *PropertyService) ByAgent(ctx context.Context, agentID int64) ([]*domain.Property, error) {
	dtos, err := s.props.ByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return s.mapper.ToViewList(dtos), nil
}

// Create saves p without images. Use Publisher to create with uploads.
func (s *PropertyService) Create(ctx context.Context, p *domain.Property) (*domain.Property, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	created, err := s.props.Create(ctx, s.mapper.ToWire(ctx, p))
	if err != nil {
		return nil, err
	}
	s.logger.Info("property created", "property_id", created.ID, "title", created.Title)
	return s.mapper.ToView(*created), nil
}

func (s *PropertyService) Update(ctx context.Context, p *domain.Property) (*domain.Property, error) {
	if p.ID <= 0 {
		return nil, ErrInvalidID
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	updated, err := s.props.Update(ctx, p.ID, s.mapper.ToWire(ctx, p))
	if err != nil {
		return nil, err
	}
	s.logger.Info("property updated", "property_id", updated.ID)
	return s.mapper.ToView(*updated), nil
}

func (s *PropertyService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	if err := s.props.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("property deleted", "property_id", id)
	return nil
}

// UpdateImage changes an image's caption and position.
func (s *PropertyService) UpdateImage(ctx context.Context, imageID int64, description string, displayOrder int) (*domain.Image, error) {
	img, err := s.props.UpdateImage(ctx, imageID, description, displayOrder)
	if err != nil {
		return nil, err
	}
	return &domain.Image{
		ID:               img.ID,
		ImageURL:         s.mapper.ResolveImageURL(img.ImageURL),
		Description:      img.Description,
		DisplayOrder:     img.DisplayOrder,
		OriginalFileName: img.OriginalFileName,
	}, nil
}

// Validate checks the fields the backend requires of a listing.
func Validate(p *domain.Property) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid property: %w", err)
	}
	return nil
}
