package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vbonduro/proplist/internal/backend"
	"github.com/vbonduro/proplist/internal/domain"
)

// propertyLookup resolves the listing an inquiry is about.
type propertyLookup interface {
	Get(ctx context.Context, id int64) (*domain.Property, error)
}

// Confirmation is shown to the visitor after an inquiry is accepted.
type Confirmation struct {
	PropertyID int64  `json:"propertyId"`
	Message    string `json:"message"`
}

// InquiryService accepts request-info and appointment submissions. Inquiries
// are validated and logged; nothing is stored or forwarded.
type InquiryService struct {
	props  propertyLookup
	logger *slog.Logger
}

func NewInquiryService(props propertyLookup, logger *slog.Logger) *InquiryService {
	return &InquiryService{props: props, logger: logger}
}

func (s *InquiryService) RequestInfo(ctx context.Context, req domain.RequestInfo) (*Confirmation, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	p, err := s.lookup(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("info requested", "property_id", p.ID, "name", req.Name, "email", req.Email)
	return &Confirmation{
		PropertyID: p.ID,
		Message:    fmt.Sprintf("Request sent for %s by %s", p.Title, req.Name),
	}, nil
}

func (s *InquiryService) RequestAppointment(ctx context.Context, req domain.Appointment) (*Confirmation, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid appointment: %w", err)
	}
	p, err := s.lookup(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment requested",
		"property_id", p.ID,
		"name", req.Name,
		"email", req.Email,
		"date", req.Date,
		"time", req.Time,
	)
	return &Confirmation{
		PropertyID: p.ID,
		Message:    fmt.Sprintf("Appointment requested for %s by %s on %s at %s", p.Title, req.Name, req.Date, req.Time),
	}, nil
}

// lookup falls back to the sample listings while the backend is unreachable,
// since those are what the visitor is looking at.
func (s *InquiryService) lookup(ctx context.Context, id int64) (*domain.Property, error) {
	p, err := s.props.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if backend.IsNotFound(err) {
		return nil, err
	}
	for _, sample := range SampleProperties() {
		if sample.ID == id {
			s.logger.Warn("backend unavailable, confirming against sample listing", "property_id", id, "error", err)
			return sample, nil
		}
	}
	return nil, err
}
