package plugin

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testWorkspace writes a plugin workspace with the given file contents.
// Keys are paths relative to the workspace root.
func testWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

const summarizerYAML = `id: summarizer
name: Summarizer
description: Summarizes pages
output: text
prompt: "Summarize: {{content}}"
display:
  position: header
  format: text
`

const taggerYAML = `id: tagger
name: Tagger
description: Suggests tags
output: tags
prompt: "Tag: {{content}}"
depends_on: [summarizer]
display:
  position: header
  format: tags
`

func TestStore_LoadsDefinitions(t *testing.T) {
	root := testWorkspace(t, map[string]string{
		"plugins/summarizer.yaml": summarizerYAML,
		"plugins/tagger.yaml":     taggerYAML,
	})
	s, err := NewStore(root, testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("All() = %d plugins, want 2", len(all))
	}

	d, err := s.Get("tagger")
	if err != nil {
		t.Fatalf("Get(tagger): %v", err)
	}
	if len(d.DependsOn) != 1 || d.DependsOn[0] != "summarizer" {
		t.Fatalf("DependsOn = %v", d.DependsOn)
	}
}

func TestStore_SkipsInvalidDefinition(t *testing.T) {
	root := testWorkspace(t, map[string]string{
		"plugins/ok.yaml":  summarizerYAML,
		"plugins/bad.yaml": "id: BAD ID\nname: Broken\n",
	})
	s, err := NewStore(root, testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := len(s.All()); got != 1 {
		t.Fatalf("All() = %d plugins, want 1", got)
	}
}

func TestStore_EnabledDefaultsAndState(t *testing.T) {
	root := testWorkspace(t, map[string]string{
		"plugins/summarizer.yaml": summarizerYAML,
		"plugins/tagger.yaml":     taggerYAML,
		"plugins.state.yaml":      "tagger:\n  enabled: false\n",
	})
	s, err := NewStore(root, testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	enabled := s.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "summarizer" {
		t.Fatalf("Enabled() = %v", enabled)
	}
	if !s.IsEnabled("summarizer") {
		t.Fatal("summarizer should default to enabled")
	}
	if s.IsEnabled("tagger") {
		t.Fatal("tagger should be disabled by state file")
	}

	if err := s.SetEnabled("tagger", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if len(s.Enabled()) != 2 {
		t.Fatal("tagger should be enabled after SetEnabled")
	}

	// The toggle persists across a reload.
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !s.IsEnabled("tagger") {
		t.Fatal("SetEnabled did not persist to the state file")
	}
}

func TestStore_VariablesAndMasterPrompt(t *testing.T) {
	root := testWorkspace(t, map[string]string{
		"plugins/summarizer.yaml": summarizerYAML,
		"variables.yaml": `- id: tone
  title: Tone
  content: concise and neutral
`,
		"master_prompts.yaml": `- id: base
  title: Base
  prompt: Always answer in English.
  enabled: true
- id: off
  title: Disabled
  prompt: Never used.
  enabled: false
- id: second
  title: Second
  prompt: Prefer short sentences.
  enabled: true
`,
	})
	s, err := NewStore(root, testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	vars := s.Variables()
	if vars["tone"] != "concise and neutral" {
		t.Fatalf("Variables() = %v", vars)
	}

	want := "Always answer in English.\n\nPrefer short sentences."
	if got := s.MasterPrompt(); got != want {
		t.Fatalf("MasterPrompt() = %q, want %q", got, want)
	}
}

func TestStore_EmptyWorkspace(t *testing.T) {
	s, err := NewStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewStore on empty workspace: %v", err)
	}
	if len(s.All()) != 0 {
		t.Fatal("expected no plugins")
	}
	if s.MasterPrompt() != "" {
		t.Fatal("expected empty master prompt")
	}
}
