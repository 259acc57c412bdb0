package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/plugin"
	"github.com/starford/ansuz/internal/template"
)

// MinContentLength is the smallest normalized content length worth
// sending to a model.
const MinContentLength = 50

// Registry is the slice of the plugin store the manager needs.
type Registry interface {
	Enabled() []*plugin.Definition
	Variables() map[string]string
	MasterPrompt() string
}

// Run lifecycle events, delivered to the RunObserver.
const (
	EventRunStarted     = "run.started"
	EventPluginFinished = "plugin.finished"
	EventRunCompleted   = "run.completed"
)

// RunObserver receives run lifecycle notifications. pluginID is empty for
// run-level events. Observers may be called from multiple goroutines.
type RunObserver func(event string, pluginID string)

// Meta is the vault snapshot merged into every template context: the
// stored tag vocabulary and the number of indexed notes.
type Meta struct {
	ExistingTags []string
	NoteCount    int
}

// Manager orchestrates a full plugin run over one note.
type Manager struct {
	registry Registry
	exec     *Executor
	cache    *lru.Cache[string, *plugin.Result]
	logger   *slog.Logger
}

func NewManager(registry Registry, exec *Executor, cacheSize int, logger *slog.Logger) (*Manager, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, *plugin.Result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine: cache: %w", err)
	}
	return &Manager{registry: registry, exec: exec, cache: cache, logger: logger}, nil
}

// ProcessNote runs every enabled plugin against the note and returns the
// results keyed by plugin id. Individual plugin failures and empty
// outputs are absent from the map; the run itself only fails when the
// content is too short to process. Plugins in the same dependency layer
// run concurrently and all of them are waited for, success or not.
func (m *Manager) ProcessNote(ctx context.Context, input models.NoteInput, meta Meta, observe RunObserver) (map[string]*plugin.Result, error) {
	content := parser.NormalizeContent(input.Content)
	if len(content) < MinContentLength {
		return nil, fmt.Errorf("engine: %d chars after normalization: %w", len(content), apperr.ErrContentTooShort)
	}

	defs := m.registry.Enabled()
	results := make(map[string]*plugin.Result, len(defs))
	if len(defs) == 0 {
		return results, nil
	}

	sched := BuildSchedule(defs, m.logger)
	master := m.registry.MasterPrompt()
	variables := m.registry.Variables()
	contentSum := checksum.SumString(content)

	fields := map[string]string{
		"content":   content,
		"title":     input.Title,
		"url":       input.URL,
		"domain":    input.Domain,
		"heroImage": input.HeroImage,
	}

	emit := func(event, pluginID string) {
		if observe != nil {
			observe(event, pluginID)
		}
	}
	emit(EventRunStarted, "")

	for _, lr := range sched.Layers {
		// results is read-only while a layer runs; each goroutine writes
		// into its own slot and the merge happens after the wait.
		tctx := template.Context{
			Fields:       fields,
			ExistingTags: meta.ExistingTags,
			NoteCount:    meta.NoteCount,
			Variables:    variables,
			Plugins:      results,
		}

		type slot struct {
			res *plugin.Result
			err error
		}
		out := make([]slot, len(lr))
		var wg sync.WaitGroup
		for i, d := range lr {
			wg.Add(1)
			go func(i int, d *plugin.Definition) {
				defer wg.Done()
				out[i].res, out[i].err = m.runOne(ctx, d, tctx, master, contentSum)
				emit(EventPluginFinished, d.ID)
			}(i, d)
		}
		wg.Wait()

		for i, d := range lr {
			if out[i].err != nil {
				m.logger.Warn("engine: plugin failed",
					slog.String("plugin", d.ID),
					slog.String("error", out[i].err.Error()))
				continue
			}
			if out[i].res == nil {
				m.logger.Debug("engine: plugin produced no output",
					slog.String("plugin", d.ID))
				continue
			}
			results[d.ID] = out[i].res
		}
	}

	emit(EventRunCompleted, "")
	return results, nil
}

// runOne executes a plugin, serving dependency-free plugins from the LRU
// cache. Dependent plugins are never cached: their prompts see upstream
// output that is not part of the cache key.
func (m *Manager) runOne(ctx context.Context, d *plugin.Definition, tctx template.Context, master, contentSum string) (*plugin.Result, error) {
	cacheable := len(d.DependsOn) == 0
	var key string
	if cacheable {
		key = contentSum + ":" + fingerprint(d)
		if res, ok := m.cache.Get(key); ok {
			m.logger.Debug("engine: cache hit", slog.String("plugin", d.ID))
			return res, nil
		}
	}

	res, err := m.exec.Run(ctx, d, tctx, master)
	if err != nil {
		return nil, err
	}
	// Empty outputs are not cached; a later run may do better.
	if cacheable && res != nil {
		m.cache.Add(key, res)
	}
	return res, nil
}

// fingerprint identifies a definition's processing-relevant shape, so
// cached results are invalidated when the author edits the plugin.
func fingerprint(d *plugin.Definition) string {
	b, err := json.Marshal(d)
	if err != nil {
		return d.ID
	}
	return checksum.Sum(b)
}
