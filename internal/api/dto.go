package api

import (
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/plugin"
)

// CaptureRequest is the payload the browser extension sends for a page.
type CaptureRequest struct {
	Title     string   `json:"title" example:"How SQLite Works"`
	URL       string   `json:"url" example:"https://example.com/sqlite"`
	Domain    string   `json:"domain" example:"example.com"`
	HeroImage string   `json:"hero_image,omitempty"`
	Content   string   `json:"content" validate:"required"`
	Tags      []string `json:"tags,omitempty" example:"reading,databases"`
}

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"captures/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// ProcessResponse carries the fresh results of a plugin run.
type ProcessResponse struct {
	Path    string                    `json:"path" example:"captures/hello.md"`
	Results map[string]*plugin.Result `json:"results"`
}

// ResultsResponse carries the stored plugin results for a note.
type ResultsResponse struct {
	Path    string                     `json:"path" example:"captures/hello.md"`
	Results []noteservice.StoredResult `json:"results"`
}

// PluginInfo summarizes one loaded plugin for list responses.
type PluginInfo struct {
	ID          string   `json:"id" example:"summarizer"`
	Name        string   `json:"name" example:"Summarizer"`
	Description string   `json:"description"`
	Icon        string   `json:"icon,omitempty"`
	OutputKind  string   `json:"output" example:"text"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Enabled     bool     `json:"enabled"`
}

// PluginListResponse wraps the plugin listing.
type PluginListResponse struct {
	Plugins []PluginInfo `json:"plugins" validate:"required"`
}

// TogglePluginRequest flips a plugin's enablement.
type TogglePluginRequest struct {
	Enabled bool `json:"enabled"`
}

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role" example:"user"`
	Content string `json:"content" example:"What is this page about?"`
}

// ChatRequest starts or continues a conversation. Note, when set, grounds
// the conversation in that captured page.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required"`
	Note     string        `json:"note,omitempty" example:"captures/hello.md"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"captures/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// TagsResponse wraps the distinct tag listing.
type TagsResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename" example:"hero.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"/attachments/hero.png" validate:"required"`
}
