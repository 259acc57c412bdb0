package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/plugin"
	"github.com/starford/ansuz/internal/template"
)

// Executor runs a single plugin definition against an LLM. It is
// stateless and safe for concurrent use.
type Executor struct {
	client llm.Client
	logger *slog.Logger
}

func NewExecutor(client llm.Client, logger *slog.Logger) *Executor {
	return &Executor{client: client, logger: logger}
}

// Run resolves the plugin's prompt(s) against tctx and executes them,
// returning the typed result. A nil result with a nil error means the
// model produced nothing usable; callers omit it from the result map.
// master, when non-empty, is sent as the system message on every model
// call. Panics from template or parsing code are recovered into an
// error so one plugin cannot abort a run.
func (e *Executor) Run(ctx context.Context, def *plugin.Definition, tctx template.Context, master string) (res *plugin.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("engine: plugin %s panicked: %v", def.ID, r)
		}
	}()

	switch def.OutputKind {
	case plugin.OutputText:
		out, chatErr := e.complete(ctx, master, template.Resolve(def.Prompt, tctx))
		if chatErr != nil {
			return nil, fmt.Errorf("engine: plugin %s: %w", def.ID, chatErr)
		}
		if out == "" {
			return nil, nil
		}
		return plugin.TextResult(out), nil

	case plugin.OutputTags:
		out, chatErr := e.complete(ctx, master, template.Resolve(def.Prompt, tctx))
		if chatErr != nil {
			return nil, fmt.Errorf("engine: plugin %s: %w", def.ID, chatErr)
		}
		tags := ParseTags(out)
		if len(tags) == 0 {
			return nil, nil
		}
		return plugin.TagsResult(tags), nil

	case plugin.OutputBlocks:
		return e.runBlocks(ctx, def, tctx, master)
	}
	return nil, fmt.Errorf("engine: plugin %s: unknown output kind %q", def.ID, def.OutputKind)
}

// complete sends one prompt and returns the trimmed response; leading
// and trailing model whitespace never reaches templates or storage.
func (e *Executor) complete(ctx context.Context, master, prompt string) (string, error) {
	msgs := make([]llm.Message, 0, 2)
	if master != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: master})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})
	out, err := e.client.Chat(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
