// Package parser extracts frontmatter, capture metadata, and tags from
// Markdown notes, and normalizes page content for plugin processing.
package parser

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

var (
	tagRe  = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	htmlRe = regexp.MustCompile(`<[^>]*>`)
	wsRe   = regexp.MustCompile(`\s+`)
)

// MaxContentLength caps normalized content fed into prompt templates so a
// single giant page cannot blow the provider's context window.
const MaxContentLength = 50000

// Result holds the output of parsing a captured-note Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	URL         string
	Domain      string
	HeroImage   string
	Tags        []string
}

// Parse extracts frontmatter, body, capture metadata, and tags from raw
// Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		URL:         fmString(fm, "url"),
		Domain:      fmString(fm, "domain"),
		HeroImage:   fmString(fm, "hero_image"),
		Tags:        extractTags(body, fm),
	}, nil
}

// StripHTML removes HTML tags and collapses whitespace, leaving plain text.
func StripHTML(s string) string {
	out := htmlRe.ReplaceAllString(s, " ")
	out = wsRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// NormalizeContent strips HTML and caps the result at MaxContentLength.
// This is the minimal normalization applied before template resolution.
// The cap lands on a rune boundary so prompts never carry a split rune.
func NormalizeContent(s string) string {
	out := StripHTML(s)
	if len(out) > MaxContentLength {
		cut := MaxContentLength
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter, treat everything as body.
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML falls back to body-only; a malformed capture should
		// never make the note unreadable.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// fmString returns a string-valued frontmatter field or "".
func fmString(fm map[string]interface{}, key string) string {
	if fm == nil {
		return ""
	}
	if v, ok := fm[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// extractTags collects #tags from body and from the frontmatter "tags" field.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string

	if fm != nil {
		if raw, ok := fm["tags"]; ok {
			if list, ok := raw.([]interface{}); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						s = strings.TrimSpace(s)
						if s == "" {
							continue
						}
						if _, dup := seen[s]; !dup {
							seen[s] = struct{}{}
							out = append(out, s)
						}
					}
				}
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		t := m[1]
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if t := fmString(fm, "title"); t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
