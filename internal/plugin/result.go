package plugin

import (
	"encoding/json"
	"strings"
)

// Result is one plugin's typed output: plain text, a tag list, or a map
// from block identifier to text. Exactly one field matching Kind is set.
// A nil *Result means the plugin produced nothing usable.
type Result struct {
	Kind   OutputKind        `json:"kind"`
	Text   string            `json:"text,omitempty"`
	Tags   []string          `json:"tags,omitempty"`
	Blocks map[string]string `json:"blocks,omitempty"`
}

// TextResult wraps a plain string output.
func TextResult(s string) *Result {
	return &Result{Kind: OutputText, Text: s}
}

// TagsResult wraps a tag-list output.
func TagsResult(tags []string) *Result {
	return &Result{Kind: OutputTags, Tags: tags}
}

// BlocksResult wraps a block-map output.
func BlocksResult(blocks map[string]string) *Result {
	return &Result{Kind: OutputBlocks, Blocks: blocks}
}

// String renders the result for template substitution: text verbatim, tags
// joined with ", ", block maps as canonical JSON.
func (r *Result) String() string {
	if r == nil {
		return ""
	}
	switch r.Kind {
	case OutputText:
		return r.Text
	case OutputTags:
		return strings.Join(r.Tags, ", ")
	case OutputBlocks:
		b, err := json.Marshal(r.Blocks)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// Sub returns the named block's text for plugins.<id>.<subkey> lookups,
// or "" when the result has no such sub-value.
func (r *Result) Sub(key string) string {
	if r == nil || r.Kind != OutputBlocks {
		return ""
	}
	return r.Blocks[key]
}

// Payload returns the JSON encoding of the typed value for persistence.
func (r *Result) Payload() string {
	if r == nil {
		return ""
	}
	var v any
	switch r.Kind {
	case OutputText:
		v = r.Text
	case OutputTags:
		v = r.Tags
	case OutputBlocks:
		v = r.Blocks
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
