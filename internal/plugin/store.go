package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/apperr"
)

const (
	pluginsDir        = "plugins"
	variablesFile     = "variables.yaml"
	masterPromptsFile = "master_prompts.yaml"
	stateFile         = "plugins.state.yaml"
)

// Store is the file-backed plugin registry. Definitions live as one YAML
// file per plugin under <workspace>/plugins, with workspace-level files
// for static variables, master prompts, and enablement state. All reads
// serve from an in-memory snapshot; Reload swaps the snapshot wholesale.
type Store struct {
	workspace string
	logger    *slog.Logger

	mu        sync.RWMutex
	defs      map[string]*Definition
	order     []string // definition load order, by file name
	variables map[string]string
	masters   []MasterPrompt
	state     map[string]State
}

// NewStore creates a registry rooted at workspace and performs an initial
// load. Missing workspace files are treated as empty, not as errors.
func NewStore(workspace string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		workspace: workspace,
		logger:    logger,
		defs:      map[string]*Definition{},
		variables: map[string]string{},
		state:     map[string]State{},
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every workspace file and replaces the in-memory
// snapshot. Invalid definition files are logged and skipped so one bad
// plugin cannot take down the rest.
func (s *Store) Reload() error {
	defs, order := s.loadDefinitions()

	vars, err := s.loadVariables()
	if err != nil {
		return fmt.Errorf("plugin: load variables: %w", err)
	}
	masters, err := s.loadMasterPrompts()
	if err != nil {
		return fmt.Errorf("plugin: load master prompts: %w", err)
	}
	state, err := s.loadState()
	if err != nil {
		return fmt.Errorf("plugin: load state: %w", err)
	}

	s.mu.Lock()
	s.defs = defs
	s.order = order
	s.variables = vars
	s.masters = masters
	s.state = state
	s.mu.Unlock()

	s.logger.Info("plugin: registry loaded",
		slog.Int("plugins", len(defs)),
		slog.Int("variables", len(vars)),
		slog.Int("master_prompts", len(masters)))
	return nil
}

func (s *Store) loadDefinitions() (map[string]*Definition, []string) {
	dir := filepath.Join(s.workspace, pluginsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("plugin: read plugins dir failed", slog.String("error", err.Error()))
		}
		return map[string]*Definition{}, nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasSuffix(n, ".yaml") || strings.HasSuffix(n, ".yml") {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	defs := make(map[string]*Definition, len(names))
	order := make([]string, 0, len(names))
	for _, n := range names {
		path := filepath.Join(dir, n)
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			s.logger.Warn("plugin: read failed", slog.String("file", n), slog.String("error", readErr.Error()))
			continue
		}
		var d Definition
		if umErr := yaml.Unmarshal(data, &d); umErr != nil {
			s.logger.Warn("plugin: parse failed", slog.String("file", n), slog.String("error", umErr.Error()))
			continue
		}
		Normalize(&d)
		if valErr := Validate(&d); valErr != nil {
			s.logger.Warn("plugin: invalid definition skipped",
				slog.String("file", n), slog.String("error", valErr.Error()))
			continue
		}
		if _, dup := defs[d.ID]; dup {
			s.logger.Warn("plugin: duplicate id skipped",
				slog.String("file", n), slog.String("id", d.ID))
			continue
		}
		defs[d.ID] = &d
		order = append(order, d.ID)
	}
	return defs, order
}

func (s *Store) loadVariables() (map[string]string, error) {
	var raw []Variable
	if err := readYAML(filepath.Join(s.workspace, variablesFile), &raw); err != nil {
		return nil, err
	}
	vars := make(map[string]string, len(raw))
	for _, v := range raw {
		if v.ID == "" {
			continue
		}
		vars[v.ID] = v.Content
	}
	return vars, nil
}

func (s *Store) loadMasterPrompts() ([]MasterPrompt, error) {
	var raw []MasterPrompt
	if err := readYAML(filepath.Join(s.workspace, masterPromptsFile), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Store) loadState() (map[string]State, error) {
	raw := map[string]State{}
	if err := readYAML(filepath.Join(s.workspace, stateFile), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// readYAML unmarshals path into out, treating a missing file as empty.
func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return yaml.Unmarshal(data, out)
}

// Get returns a definition by id.
func (s *Store) Get(id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[id]
	if !ok {
		return nil, fmt.Errorf("plugin: %s: %w", id, apperr.ErrNotFound)
	}
	return d, nil
}

// All returns every loaded definition in workspace file order.
func (s *Store) All() []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Definition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.defs[id])
	}
	return out
}

// Enabled returns the definitions eligible for a run. Plugins without a
// state entry are enabled by default.
func (s *Store) Enabled() []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Definition, 0, len(s.order))
	for _, id := range s.order {
		if st, ok := s.state[id]; ok && !st.Enabled {
			continue
		}
		out = append(out, s.defs[id])
	}
	return out
}

// IsEnabled reports whether a plugin would be included in a run.
func (s *Store) IsEnabled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, known := s.defs[id]; !known {
		return false
	}
	st, ok := s.state[id]
	return !ok || st.Enabled
}

// SetEnabled flips a plugin's enablement and persists the state file.
func (s *Store) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.defs[id]; !known {
		return fmt.Errorf("plugin: %s: %w", id, apperr.ErrNotFound)
	}
	st := s.state[id]
	st.Enabled = enabled
	s.state[id] = st

	data, err := yaml.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("plugin: marshal state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.workspace, stateFile), data, 0o644); err != nil {
		return fmt.Errorf("plugin: write state: %w", err)
	}
	return nil
}

// Variables returns a copy of the static variable map.
func (s *Store) Variables() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.variables))
	for k, v := range s.variables {
		out[k] = v
	}
	return out
}

// MasterPrompt returns the enabled master prompts concatenated in storage
// order, separated by blank lines. Empty when none are enabled.
func (s *Store) MasterPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var parts []string
	for _, m := range s.masters {
		if m.Enabled && m.Prompt != "" {
			parts = append(parts, m.Prompt)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Watch reloads the registry whenever a workspace file changes, debounced
// so editor save bursts collapse into a single reload. Blocks until ctx
// is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(s.workspace); err != nil {
		return err
	}
	// The plugins dir may not exist yet; watch it when it does.
	pdir := filepath.Join(s.workspace, pluginsDir)
	if _, statErr := os.Stat(pdir); statErr == nil {
		if err := w.Add(pdir); err != nil {
			return err
		}
	}

	s.logger.Info("plugin: watching workspace", slog.String("root", s.workspace))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(300 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(300 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			s.logger.Info("plugin: watcher stopped")
			return nil

		case <-reloadCh:
			if err := s.Reload(); err != nil {
				s.logger.Error("plugin: reload failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 && ev.Name == pdir {
				if addErr := w.Add(pdir); addErr != nil {
					s.logger.Warn("plugin: watch plugins dir failed", slog.String("error", addErr.Error()))
				}
			}
			if isWorkspaceFile(ev.Name) {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("plugin: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func isWorkspaceFile(path string) bool {
	base := filepath.Base(path)
	switch base {
	case variablesFile, masterPromptsFile, stateFile:
		return true
	}
	return strings.HasSuffix(base, ".yaml") || strings.HasSuffix(base, ".yml")
}
