package model

import "time"

// Resume is one AI-readable resume page owned by a user. Sections hold the
// free-form page content as a JSON document; the flat fields are the
// metadata edited through the form and persisted by the auto-save path.
type Resume struct {
	ID          int64     `json:"id" db:"id"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	Slug        string    `json:"slug" db:"slug"`
	Title       string    `json:"title" db:"title"`
	Role        string    `json:"role" db:"role"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Tags        []string  `json:"tags"`
	Summary     string    `json:"summary" db:"summary"`
	Sections    string    `json:"sections" db:"sections"` // JSON document
	IsPublished bool      `json:"is_published" db:"is_published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ResumeFields is the editor-side snapshot driven through the auto-save
// coordinator: the subset of resume columns a form edit can touch.
type ResumeFields struct {
	Title       string   `json:"title"`
	Role        string   `json:"role"`
	DisplayName string   `json:"display_name"`
	Tags        []string `json:"tags"`
}
