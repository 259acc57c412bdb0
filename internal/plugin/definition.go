// Package plugin defines LLM plugin definitions, their validation rules,
// and the file-backed registry they are loaded from.
package plugin

// OutputKind declares what a plugin produces.
type OutputKind string

const (
	OutputText   OutputKind = "text"
	OutputTags   OutputKind = "tags"
	OutputBlocks OutputKind = "blocks"
)

// Display positions and formats understood by the rendering layer. The
// core treats display rules as opaque beyond validation.
const (
	PositionHeader = "header"
	PositionTab    = "tab"
)

// DisplayRule describes where and how a plugin's output is shown.
type DisplayRule struct {
	Position string `yaml:"position" json:"position"`
	Format   string `yaml:"format" json:"format"`
	TabName  string `yaml:"tab_name,omitempty" json:"tab_name,omitempty"`
}

// Block is an ordered, named sub-step of a blocks-kind plugin. A block's
// prompt may reference only blocks earlier in the same plugin's list.
type Block struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Definition is a named unit of LLM-driven note processing.
type Definition struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Icon        string      `yaml:"icon,omitempty" json:"icon,omitempty"`
	OutputKind  OutputKind  `yaml:"output" json:"output"`
	Prompt      string      `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Display     DisplayRule `yaml:"display" json:"display"`
	Blocks      []Block     `yaml:"blocks,omitempty" json:"blocks,omitempty"`
	DependsOn   []string    `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Variable is a globally defined, user-authored text snippet substitutable
// by id in any template.
type Variable struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Content string `yaml:"content" json:"content"`
}

// MasterPrompt is a system-level instruction prepended to every resolved
// prompt when enabled.
type MasterPrompt struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Prompt      string `yaml:"prompt" json:"prompt"`
	Enabled     bool   `yaml:"enabled" json:"enabled"`
}

// State is the per-plugin enabled/disabled record. A plugin with no
// explicit state defaults to enabled.
type State struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Config  map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
}
