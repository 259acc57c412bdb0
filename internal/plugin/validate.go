package plugin

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	idRe       = regexp.MustCompile(`^[a-z0-9_-]+$`)
	blockRefRe = regexp.MustCompile(`\{\{\s*blocks\.([A-Za-z0-9_-]+)\s*\}\}`)
)

// Validate checks a definition's structural and semantic rules, failing on
// the first violation. Definitions must be normalized (see Normalize)
// before validation so generated block IDs and tab names are present.
func Validate(d *Definition) error {
	if err := validation.ValidateStruct(d,
		validation.Field(&d.ID, validation.Required, validation.Length(1, 100), validation.Match(idRe)),
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Description, validation.Required),
		validation.Field(&d.OutputKind, validation.Required,
			validation.In(OutputText, OutputTags, OutputBlocks)),
	); err != nil {
		return err
	}

	if d.OutputKind != OutputBlocks && d.Prompt == "" {
		return fmt.Errorf("plugin %s: prompt is required for %s output", d.ID, d.OutputKind)
	}

	if err := validation.ValidateStruct(&d.Display,
		validation.Field(&d.Display.Position, validation.Required,
			validation.In(PositionHeader, PositionTab)),
		validation.Field(&d.Display.Format, validation.Required,
			validation.In(string(OutputText), string(OutputTags), string(OutputBlocks))),
	); err != nil {
		return fmt.Errorf("plugin %s: display: %w", d.ID, err)
	}
	if d.Display.Position == PositionTab && d.Display.TabName == "" {
		return fmt.Errorf("plugin %s: tab position requires a tab name", d.ID)
	}

	if d.OutputKind == OutputBlocks {
		return validateBlocks(d)
	}
	return nil
}

// validateBlocks enforces the block-chain rules: a non-empty list, complete
// blocks, unique identifiers, and only backward {{blocks.X}} references.
func validateBlocks(d *Definition) error {
	if len(d.Blocks) == 0 {
		return fmt.Errorf("plugin %s: blocks output requires at least one block", d.ID)
	}

	seen := make(map[string]int, len(d.Blocks))
	for i, b := range d.Blocks {
		if b.ID == "" {
			return fmt.Errorf("plugin %s: block %d has no identifier", d.ID, i)
		}
		if b.Name == "" || b.Prompt == "" {
			return fmt.Errorf("plugin %s: block %q needs a name and prompt", d.ID, b.ID)
		}
		if prev, dup := seen[b.ID]; dup {
			return fmt.Errorf("plugin %s: duplicate block id %q (positions %d and %d)", d.ID, b.ID, prev, i)
		}
		seen[b.ID] = i
	}

	// A block may reference only blocks strictly earlier in the list;
	// forward and self references would deadlock sequential execution.
	for i, b := range d.Blocks {
		for _, m := range blockRefRe.FindAllStringSubmatch(b.Prompt, -1) {
			ref := m[1]
			pos, known := seen[ref]
			if !known {
				return fmt.Errorf("plugin %s: block %q references unknown block %q", d.ID, b.ID, ref)
			}
			if pos >= i {
				return fmt.Errorf("plugin %s: block %q references block %q which does not precede it", d.ID, b.ID, ref)
			}
		}
	}
	return nil
}
