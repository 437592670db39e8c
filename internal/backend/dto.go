package backend

// Wire shapes of the property backend. Field names follow its JSON contract.

type AgentDTO struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type ImageDTO struct {
	ID               int64  `json:"id,omitempty"`
	ImageURL         string `json:"imageUrl"`
	Description      string `json:"description,omitempty"`
	DisplayOrder     int    `json:"displayOrder"`
	OriginalFileName string `json:"originalFileName,omitempty"`
}

type PropertyDTO struct {
	ID          int64      `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	Type        string     `json:"type"`
	Location    string     `json:"location"`
	Agent       AgentDTO   `json:"agent"`
	Images      []ImageDTO `json:"images"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
