package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/ansuz/internal/plugin"
	"github.com/starford/ansuz/internal/template"
)

// runBlocks executes a block chain in order. Each block's prompt sees the
// outputs of every block that already succeeded via {{blocks.<id>}}. A
// failed block, including one whose trimmed output is empty, is skipped
// and the chain continues; its placeholder then resolves to the empty
// string for later blocks. The run only fails as a whole when no block
// produced output.
func (e *Executor) runBlocks(ctx context.Context, def *plugin.Definition, tctx template.Context, master string) (*plugin.Result, error) {
	done := make(map[string]string, len(def.Blocks))
	failed := 0

	for _, b := range def.Blocks {
		bctx := tctx
		bctx.Blocks = done
		out, err := e.complete(ctx, master, template.Resolve(b.Prompt, bctx))
		if err != nil || out == "" {
			failed++
			reason := "empty output"
			if err != nil {
				reason = err.Error()
			}
			e.logger.Warn("engine: block failed",
				slog.String("plugin", def.ID),
				slog.String("block", b.ID),
				slog.String("error", reason))
			continue
		}
		done[b.ID] = out
	}

	if len(done) == 0 {
		return nil, fmt.Errorf("engine: plugin %s: all %d blocks failed", def.ID, len(def.Blocks))
	}
	if failed > 0 {
		e.logger.Info("engine: block chain completed with failures",
			slog.String("plugin", def.ID),
			slog.Int("succeeded", len(done)),
			slog.Int("failed", failed))
	}
	return plugin.BlocksResult(done), nil
}
