package plugin

import "fmt"

// Normalize fills in the pieces authors are allowed to omit: generated
// block identifiers and a tab name derived from the plugin name. Runs
// before Validate on every load so stored definitions stay as written.
func Normalize(d *Definition) {
	if d.Display.Position == PositionTab && d.Display.TabName == "" {
		d.Display.TabName = d.Name
	}
	for i := range d.Blocks {
		if d.Blocks[i].ID == "" {
			d.Blocks[i].ID = fmt.Sprintf("block-%d", i+1)
		}
	}
}
