package domain

import "time"

type PropertyType string

const (
	TypeRent PropertyType = "rent"
	TypeSale PropertyType = "sale"
)

// Valid reports whether t is one of the listing types the backend accepts.
func (t PropertyType) Valid() bool {
	return t == TypeRent || t == TypeSale
}

type Agent struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

// Property is the in-app view of a listing. ImageURLs is presentation-only and
// never sent to the backend; its order is the display order.
type Property struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title" validate:"required"`
	Description string       `json:"description"`
	Price       float64      `json:"price" validate:"gt=0"`
	Type        PropertyType `json:"type" validate:"oneof=rent sale"`
	Location    string       `json:"location" validate:"required"`
	Agent       Agent        `json:"agent"`
	ImageURLs   []string     `json:"imageUrls"`
}

// Clone returns a copy that shares no slices with p.
func (p *Property) Clone() *Property {
	c := *p
	if p.ImageURLs != nil {
		c.ImageURLs = append([]string(nil), p.ImageURLs...)
	}
	return &c
}

type Image struct {
	ID               int64  `json:"id,omitempty"`
	PropertyID       int64  `json:"-"`
	ImageURL         string `json:"imageUrl"`
	Description      string `json:"description"`
	DisplayOrder     int    `json:"displayOrder"`
	OriginalFileName string `json:"originalFileName,omitempty"`
}

// RequestInfo and Appointment are inquiries about a listing. They are
// confirmed and logged, never stored.
type RequestInfo struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone"`
	PropertyID int64  `json:"propertyId"`
}

type Appointment struct {
	RequestInfo
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,datetime=15:04"`
}

// CachedAgent is an agent id remembered locally by email.
type CachedAgent struct {
	Email      string
	AgentID    int64
	Name       string
	ResolvedAt time.Time
}
