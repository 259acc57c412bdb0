// Package noteservice coordinates storage, index, and plugin engine
// operations on captured notes.
package noteservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/plugin"
	"github.com/starford/ansuz/internal/storage"
)

// Processor runs the plugin engine over one note's content.
type Processor interface {
	ProcessNote(ctx context.Context, input models.NoteInput, meta engine.Meta, observe engine.RunObserver) (map[string]*plugin.Result, error)
}

// Events receives note and run notifications. A nil Events is allowed.
type Events interface {
	PublishNoteEvent(kind, path string)
	PublishRunEvent(event, notePath, pluginID string)
}

// StoredResult is one persisted plugin output on a note.
type StoredResult struct {
	PluginID  string          `json:"plugin_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Domain      string         `json:"domain,omitempty"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Results     []StoredResult `json:"results"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Domain    string    `json:"domain,omitempty"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service coordinates storage, index, and engine operations.
type Service struct {
	store  storage.Provider
	db     index.NoteIndex
	engine Processor
	events Events
}

// NewService creates a new note service. engine and events may be nil;
// Process then reports unavailability instead of running plugins.
func NewService(store storage.Provider, db index.NoteIndex, engine Processor, events Events) *Service {
	return &Service{store: store, db: db, engine: engine, events: events}
}

// Capture renders a captured page into a frontmatter Markdown file under
// captures/<year>/<month>/, writes it, and indexes it. Path collisions
// get a numeric suffix.
func (s *Service) Capture(ctx context.Context, input models.NoteInput, tags []string) (*NoteDetail, error) {
	if input.Title == "" {
		input.Title = "Untitled capture"
	}
	content, err := renderCapture(input, tags)
	if err != nil {
		return nil, err
	}

	path := s.capturePath(input.Title)
	detail, err := s.CreateNote(ctx, path, content)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// GetNote reads a note from storage, parses it, and attaches stored
// plugin results.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data)
}

// CreateNote writes a new note and indexes it.
func (s *Service) CreateNote(_ context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, content); err != nil {
		return nil, err
	}
	s.publishNote("created", path)
	return s.buildNoteDetail(path, content)
}

// UpdateNote writes updated content with optimistic concurrency.
func (s *Service) UpdateNote(_ context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, content); err != nil {
		return nil, err
	}
	s.publishNote("updated", path)
	return s.buildNoteDetail(path, content)
}

// DeleteNote removes a note from storage and index, along with its
// stored plugin results.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		return err
	}
	if err := s.db.DeleteNote(path); err != nil {
		return err
	}
	s.publishNote("deleted", path)
	return nil
}

// Process runs every enabled plugin against the note and persists their
// results. Returns the fresh result map keyed by plugin id.
func (s *Service) Process(ctx context.Context, path string) (map[string]*plugin.Result, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("noteservice: plugin engine not configured")
	}

	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}

	input := models.NoteInput{
		Title:     res.Title,
		Content:   res.Body,
		URL:       res.URL,
		Domain:    res.Domain,
		HeroImage: res.HeroImage,
	}

	observe := func(event, pluginID string) {
		if s.events != nil {
			s.events.PublishRunEvent(event, path, pluginID)
		}
	}

	// Vault metadata is best-effort; a failed read yields an empty
	// snapshot rather than failing the run.
	meta := engine.Meta{}
	if tags, tagsErr := s.db.AllTags(); tagsErr == nil {
		meta.ExistingTags = tags
	}
	if n, countErr := s.db.NoteCount(); countErr == nil {
		meta.NoteCount = n
	}

	results, err := s.engine.ProcessNote(ctx, input, meta, observe)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for id, r := range results {
		row := index.ResultRow{
			NotePath:  path,
			PluginID:  id,
			Kind:      string(r.Kind),
			Payload:   r.Payload(),
			UpdatedAt: now,
		}
		if saveErr := s.db.SaveResult(row); saveErr != nil {
			return nil, fmt.Errorf("noteservice: save result %s: %w", id, saveErr)
		}
	}
	return results, nil
}

// Results returns the stored plugin results for a note without loading
// its content.
func (s *Service) Results(_ context.Context, path string) ([]StoredResult, error) {
	if _, err := s.store.Read(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	rows, err := s.db.ResultsForNote(path)
	if err != nil {
		return nil, err
	}
	results := make([]StoredResult, len(rows))
	for i, r := range rows {
		results[i] = StoredResult{
			PluginID:  r.PluginID,
			Kind:      r.Kind,
			Payload:   json.RawMessage(r.Payload),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return results, nil
}

// ListNotes returns paginated notes with optional tag filter.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag, sort string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Title:     r.Title,
			Domain:    r.Domain,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Tags returns every distinct tag in the vault.
func (s *Service) Tags(_ context.Context) ([]string, error) {
	return s.db.AllTags()
}

// IndexFile parses data and upserts it into the index.
// Exported so that sync and watcher can reuse it.
func (s *Service) IndexFile(path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return s.db.UpsertNote(index.NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		Tags:      nonNilSlice(res.Tags),
		URL:       res.URL,
		Domain:    res.Domain,
		UpdatedAt: time.Now(),
	}, res.Body)
}

func (s *Service) publishNote(kind, path string) {
	if s.events != nil {
		s.events.PublishNoteEvent(kind, path)
	}
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading the file.
func (s *Service) buildNoteDetail(path string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.ResultsForNote(path)
	if err != nil {
		return nil, err
	}
	results := make([]StoredResult, len(rows))
	for i, r := range rows {
		results[i] = StoredResult{
			PluginID:  r.PluginID,
			Kind:      r.Kind,
			Payload:   json.RawMessage(r.Payload),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		URL:         res.URL,
		Domain:      res.Domain,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Results:     results,
		UpdatedAt:   time.Now(),
	}, nil
}

// capturePath builds a collision-free vault path for a captured title.
func (s *Service) capturePath(title string) string {
	base := fmt.Sprintf("captures/%s/%s", time.Now().Format("2006/01"), slugify(title))
	path := base + ".md"
	for i := 2; ; i++ {
		if _, err := s.store.Read(path); err != nil {
			return path
		}
		path = fmt.Sprintf("%s-%d.md", base, i)
	}
}

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(title string) string {
	s := strings.ToLower(title)
	s = slugStripRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "untitled"
	}
	if len(s) > 80 {
		s = strings.Trim(s[:80], "-")
	}
	return s
}

// captureFrontmatter is the YAML header written for captured pages.
type captureFrontmatter struct {
	Title     string    `yaml:"title"`
	URL       string    `yaml:"url,omitempty"`
	Domain    string    `yaml:"domain,omitempty"`
	HeroImage string    `yaml:"hero_image,omitempty"`
	Tags      []string  `yaml:"tags,omitempty"`
	Captured  time.Time `yaml:"captured"`
}

func renderCapture(input models.NoteInput, tags []string) ([]byte, error) {
	fm := captureFrontmatter{
		Title:     input.Title,
		URL:       input.URL,
		Domain:    input.Domain,
		HeroImage: input.HeroImage,
		Tags:      tags,
		Captured:  time.Now(),
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("noteservice: render frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n")
	b.WriteString(input.Content)
	if !strings.HasSuffix(input.Content, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
