// Package models defines the domain types for Ansuz.
package models

import "time"

// Note represents a captured web page stored as a Markdown file in the vault.
type Note struct {
	Path        string                 `json:"path"`
	Content     []byte                 `json:"-"`
	Body        string                 `json:"body"`
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Title       string                 `json:"title,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Domain      string                 `json:"domain,omitempty"`
	HeroImage   string                 `json:"hero_image,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Checksum    string                 `json:"checksum"`
	CapturedAt  time.Time              `json:"captured_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteInput is the immutable subject of one plugin-processing run.
type NoteInput struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	HeroImage string `json:"hero_image,omitempty"`
}
