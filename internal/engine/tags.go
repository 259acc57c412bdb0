package engine

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	bracketRe = regexp.MustCompile(`\[[^\[\]]*\]`)
	tagWsRe   = regexp.MustCompile(`\s+`)
	tagCharRe = regexp.MustCompile(`[^a-z0-9-]`)
)

// ParseTags extracts a tag list from raw model output. It tries, in
// order: strict JSON ({"tags": [...]} or a bare array), JSON repaired
// with jsonrepair (models wrap arrays in markdown fences, use single
// quotes, leave trailing commas), and finally the first bracketed list
// found anywhere in the text. Each extracted item is normalized;
// duplicates are kept as produced.
func ParseTags(raw string) []string {
	items := extractItems(raw)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if t := NormalizeTag(it); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func extractItems(raw string) []string {
	if items, ok := decodeItems(raw); ok {
		return items
	}
	if fixed, err := jsonrepair.JSONRepair(raw); err == nil {
		if items, ok := decodeItems(fixed); ok {
			return items
		}
	}
	if m := bracketRe.FindString(raw); m != "" {
		if items, ok := decodeItems(m); ok {
			return items
		}
		return splitBareList(m)
	}
	return nil
}

func decodeItems(s string) ([]string, bool) {
	var obj struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(s), &obj); err == nil && obj.Tags != nil {
		return obj.Tags, true
	}
	var arr []string
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		return arr, true
	}
	return nil, false
}

// splitBareList handles bracketed lists that are not valid JSON even
// after repair, like [deep learning, nlp].
func splitBareList(m string) []string {
	inner := strings.Trim(m, "[]")
	parts := strings.Split(inner, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"'`)
		if p != "" {
			items = append(items, p)
		}
	}
	return items
}

// NormalizeTag canonicalizes one tag candidate: trims wrapping whitespace,
// quotes and hash marks, lowercases, turns internal whitespace into
// hyphens, and strips everything outside [a-z0-9-]. Results shorter than
// 2 or longer than 30 characters are rejected as "".
func NormalizeTag(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'#`)
	s = strings.ToLower(strings.TrimSpace(s))
	s = tagWsRe.ReplaceAllString(s, "-")
	s = tagCharRe.ReplaceAllString(s, "")
	if n := len(s); n < 2 || n > 30 {
		return ""
	}
	return s
}
