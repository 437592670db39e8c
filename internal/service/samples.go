package service

import "github.com/vbonduro/proplist/internal/domain"

// SampleProperties returns the listings shown when the backend is unreachable.
// Each call returns fresh copies.
func SampleProperties() []*domain.Property {
	return []*domain.Property{
		{
			ID:          1,
			Title:       "Modern Lakefront Home",
			Description: "Stunning modern home with panoramic lake views, featuring 4 bedrooms and 3 bathrooms.",
			Price:       450000,
			Type:        domain.TypeSale,
			Location:    "123 Lakeview Dr, Waterfront, CA",
			Agent:       domain.Agent{Name: "Alex Johnson", Email: "alex@mazlogic.com", Phone: "(555) 123-4567"},
			ImageURLs: []string{
				"assets/property-images/property1.jpg",
				"assets/property-images/property4.jpg",
				"assets/property-images/property5.jpg",
			},
		},
		{
			ID:          2,
			Title:       "Downtown Luxury Apartment",
			Description: "Upscale city living in this 2-bedroom luxury apartment with high-end finishes.",
			Price:       2500,
			Type:        domain.TypeRent,
			Location:    "456 Urban Ave, Downtown, CA",
			Agent:       domain.Agent{Name: "Sarah Williams", Email: "sarah@mazlogic.com", Phone: "(555) 987-6543"},
			ImageURLs: []string{
				"assets/property-images/property4.jpg",
				"assets/property-images/property3.jpg",
			},
		},
		{
			ID:          3,
			Title:       "Suburban Family Home",
			Description: "Spacious 5-bedroom home in a quiet neighborhood, perfect for families.",
			Price:       375000,
			Type:        domain.TypeSale,
			Location:    "789 Maple St, Suburbia, CA",
			Agent:       domain.Agent{Name: "Michael Davis", Email: "michael@mazlogic.com", Phone: "(555) 567-8901"},
			ImageURLs:   []string{"assets/property-images/property5.jpg"},
		},
	}
}
