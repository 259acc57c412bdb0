// Package template substitutes {{placeholder}} expressions in plugin
// prompts from layered namespaces.
package template

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/plugin"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Context holds every value a template may draw on. Lookup precedence,
// highest first:
//
//	blocks.<id>            earlier block outputs in the same chain
//	plugins.<id>[.<sub>]   finished plugin results
//	existingTags           the vault's tag vocabulary, joined with ", "
//	noteCount              the number of indexed notes
//	<variable id>          workspace static variables
//	<field>                direct note fields (content, title, url, ...)
//
// Unresolvable placeholders become the empty string.
type Context struct {
	Fields       map[string]string
	ExistingTags []string
	NoteCount    int
	Variables    map[string]string
	Plugins      map[string]*plugin.Result
	Blocks       map[string]string
}

// Resolve substitutes every placeholder in tmpl. It is total: it never
// fails, and unknown names simply vanish from the output.
func Resolve(tmpl string, ctx Context) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := strings.TrimSpace(m[2 : len(m)-2])
		return ctx.lookup(name)
	})
}

func (c Context) lookup(name string) string {
	if rest, ok := strings.CutPrefix(name, "blocks."); ok {
		return c.Blocks[rest]
	}
	if rest, ok := strings.CutPrefix(name, "plugins."); ok {
		id, sub, hasSub := strings.Cut(rest, ".")
		r := c.Plugins[id]
		if hasSub {
			return r.Sub(sub)
		}
		return r.String()
	}
	if name == "existingTags" {
		return strings.Join(c.ExistingTags, ", ")
	}
	if name == "noteCount" {
		return strconv.Itoa(c.NoteCount)
	}
	if v, ok := c.Variables[name]; ok {
		return v
	}
	if v, ok := c.Fields[name]; ok {
		return v
	}
	return ""
}
