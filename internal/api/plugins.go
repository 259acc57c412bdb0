package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ansuz/internal/apperr"
)

// ListPlugins handles GET /api/plugins.
//
//	@Summary		List loaded plugins with their enablement
//	@Tags			plugins
//	@Produce		json
//	@Success		200	{object}	PluginListResponse
//	@Security		BearerAuth
//	@Router			/plugins [get]
func (h *Handler) ListPlugins(w http.ResponseWriter, r *http.Request) {
	defs := h.plugins.All()
	items := make([]PluginInfo, len(defs))
	for i, d := range defs {
		items[i] = PluginInfo{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Icon:        d.Icon,
			OutputKind:  string(d.OutputKind),
			DependsOn:   d.DependsOn,
			Enabled:     h.plugins.IsEnabled(d.ID),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": items})
}

// GetPlugin handles GET /api/plugins/{id}.
//
//	@Summary		Get a plugin definition
//	@Tags			plugins
//	@Produce		json
//	@Param			id	path		string	true	"Plugin id"
//	@Success		200	{object}	plugin.Definition
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/plugins/{id} [get]
func (h *Handler) GetPlugin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.plugins.Get(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get plugin failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// TogglePlugin handles PUT /api/plugins/{id}/enabled.
//
//	@Summary		Enable or disable a plugin
//	@Tags			plugins
//	@Accept			json
//	@Param			id		path	string					true	"Plugin id"
//	@Param			body	body	TogglePluginRequest		true	"New state"
//	@Success		204		"State updated"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/plugins/{id}/enabled [put]
func (h *Handler) TogglePlugin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req TogglePluginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.plugins.SetEnabled(id, req.Enabled); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("toggle plugin failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
