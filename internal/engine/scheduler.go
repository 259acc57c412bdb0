// Package engine runs plugins against notes: it schedules them by
// dependency, resolves their prompt templates, executes them against an
// LLM, and aggregates their typed results.
package engine

import (
	"log/slog"
	"sort"

	"github.com/starford/ansuz/internal/plugin"
)

// Schedule groups plugins into dependency layers. Plugins within a layer
// have no edges between them and may run concurrently; each layer only
// depends on earlier ones. Plugins on a dependency cycle, and plugins
// whose dependency cannot be satisfied (absent, disabled, or itself
// excluded), are excluded rather than failing the whole run.
type Schedule struct {
	Layers   [][]*plugin.Definition
	Excluded []string
}

// BuildSchedule computes execution layers for the given plugins. A
// partial schedule is always returned: an excluded plugin never appears
// in any layer, and its placeholders resolve to the empty string at
// template time.
func BuildSchedule(defs []*plugin.Definition, logger *slog.Logger) Schedule {
	deps := make(map[string][]string, len(defs))
	for _, d := range defs {
		deps[d.ID] = d.DependsOn
	}

	cyclic := findCycles(defs, deps)
	layers, unsatisfiable := layer(defs, deps, cyclic)

	if len(cyclic) == 0 && len(unsatisfiable) == 0 {
		return Schedule{Layers: layers}
	}

	excluded := make([]string, 0, len(cyclic)+len(unsatisfiable))
	for id := range cyclic {
		excluded = append(excluded, id)
	}
	excluded = append(excluded, unsatisfiable...)
	sort.Strings(excluded)
	logger.Warn("engine: plugins excluded from schedule",
		slog.Any("plugins", excluded))
	return Schedule{Layers: layers, Excluded: excluded}
}

// findCycles returns the set of plugin ids that lie on a dependency cycle.
func findCycles(defs []*plugin.Definition, deps map[string][]string) map[string]bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(defs))
	cyclic := map[string]bool{}
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				// Back edge: everything from dep to the top of the stack
				// forms a cycle.
				for i := len(stack) - 1; i >= 0; i-- {
					cyclic[stack[i]] = true
					if stack[i] == dep {
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, d := range defs {
		if color[d.ID] == white {
			visit(d.ID)
		}
	}
	return cyclic
}

// layer assigns each non-cyclic plugin to the earliest layer where all of
// its dependencies are already placed. Plugins still unplaced when no
// further progress is possible depend on something that will never run
// (absent, disabled, or excluded); they are returned as the
// unsatisfiable remainder and never scheduled.
func layer(defs []*plugin.Definition, deps map[string][]string, cyclic map[string]bool) ([][]*plugin.Definition, []string) {
	placed := make(map[string]bool, len(defs))
	remaining := make([]*plugin.Definition, 0, len(defs))
	for _, d := range defs {
		if !cyclic[d.ID] {
			remaining = append(remaining, d)
		}
	}

	var layers [][]*plugin.Definition
	for len(remaining) > 0 {
		var ready, rest []*plugin.Definition
		for _, d := range remaining {
			ok := true
			for _, dep := range deps[d.ID] {
				if !placed[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, d)
			} else {
				rest = append(rest, d)
			}
		}
		if len(ready) == 0 {
			ids := make([]string, 0, len(remaining))
			for _, d := range remaining {
				ids = append(ids, d.ID)
			}
			return layers, ids
		}
		for _, d := range ready {
			placed[d.ID] = true
		}
		layers = append(layers, ready)
		remaining = rest
	}
	return layers, nil
}
