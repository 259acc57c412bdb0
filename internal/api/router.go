package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/plugin"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// chat may be nil when no model is configured.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// vaultRoot is used to resolve the attachments directory.
func NewRouter(svc *noteservice.Service, plugins *plugin.Store, chat llm.Client, authEnabled bool, token string, sseHandler http.Handler, vaultRoot string) chi.Router {
	h := NewHandler(svc, plugins)
	ch := NewChatHandler(chat, svc, plugins)
	ah := NewAttachmentHandler(vaultRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Capture from the extension.
	r.Post("/capture", h.Capture)

	// Notes CRUD. The process route is registered before the wildcard
	// reads so chi matches it first.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/results", h.Results)
	r.Post("/notes/process/*", h.Process)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Search and tags.
	r.Get("/search", h.Search)
	r.Get("/tags", h.Tags)

	// Plugin registry.
	r.Get("/plugins", h.ListPlugins)
	r.Get("/plugins/{id}", h.GetPlugin)
	r.Put("/plugins/{id}/enabled", h.TogglePlugin)

	// Chat streaming.
	r.Post("/chat", ch.Chat)

	// Attachments upload (auth-protected).
	r.Post("/attachments", ah.Upload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
