package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/noteservice"
)

// MasterPrompter supplies the system-level instructions prepended to
// every conversation.
type MasterPrompter interface {
	MasterPrompt() string
}

// ChatHandler streams model responses for ad-hoc conversations, optionally
// grounded in a captured note.
type ChatHandler struct {
	client  llm.Client
	svc     *noteservice.Service
	masters MasterPrompter
}

// NewChatHandler creates a chat handler. client may be nil when no LLM is
// configured; requests then fail with 503.
func NewChatHandler(client llm.Client, svc *noteservice.Service, masters MasterPrompter) *ChatHandler {
	return &ChatHandler{client: client, svc: svc, masters: masters}
}

// Chat handles POST /api/chat. The response is a text/event-stream of
// {"delta": "..."} payloads followed by a terminal [DONE] marker.
//
//	@Summary		Chat with the model, optionally about a note
//	@Tags			chat
//	@Accept			json
//	@Produce		text/event-stream
//	@Param			body	body	ChatRequest	true	"Conversation"
//	@Success		200		"Event stream of response deltas"
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat [post]
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("no model configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("messages are required"))
		return
	}

	messages := make([]llm.Message, 0, len(req.Messages)+2)
	if h.masters != nil {
		if master := h.masters.MasterPrompt(); master != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: master})
		}
	}
	if req.Note != "" {
		note, err := h.svc.GetNote(r.Context(), req.Note)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, errorBody("note not found"))
			} else {
				slog.Error("chat note load failed", slog.String("path", req.Note), slog.String("error", err.Error()))
				writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			}
			return
		}
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "The user is asking about this captured page:\n\n" + note.Content,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	onChunk := func(chunk string) {
		payload, err := json.Marshal(map[string]string{"delta": chunk})
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	if _, err := h.client.Chat(r.Context(), messages, onChunk); err != nil {
		slog.Error("chat failed", slog.String("error", err.Error()))
		fmt.Fprintf(w, "data: {\"error\": \"model call failed\"}\n\n")
		flusher.Flush()
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
