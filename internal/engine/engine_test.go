package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/plugin"
	"github.com/starford/ansuz/internal/template"
)

func noteFields(content string) template.Context {
	return template.Context{Fields: map[string]string{"content": content}}
}

func TestExecutor_TextPlugin(t *testing.T) {
	fake := &llm.FakeClient{Default: "a fine summary"}
	ex := NewExecutor(fake, testLogger())

	d := &plugin.Definition{ID: "sum", OutputKind: plugin.OutputText, Prompt: "Summarize: {{content}}"}
	res, err := ex.Run(context.Background(), d, noteFields("the page body"), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Kind != plugin.OutputText || res.Text != "a fine summary" {
		t.Fatalf("res = %+v", res)
	}
	if fake.Calls[0] != "Summarize: the page body" {
		t.Fatalf("prompt = %q", fake.Calls[0])
	}
}

func TestExecutor_MasterPromptBecomesSystemMessage(t *testing.T) {
	var gotSystem string
	fake := &llm.FakeClient{Default: "ok"}
	ex := NewExecutor(clientFunc(func(_ context.Context, msgs []llm.Message, _ llm.StreamFunc) (string, error) {
		if msgs[0].Role == llm.RoleSystem {
			gotSystem = msgs[0].Content
		}
		return fake.Chat(context.Background(), msgs, nil)
	}), testLogger())

	d := &plugin.Definition{ID: "sum", OutputKind: plugin.OutputText, Prompt: "p"}
	if _, err := ex.Run(context.Background(), d, template.Context{}, "Always be brief."); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotSystem != "Always be brief." {
		t.Fatalf("system message = %q", gotSystem)
	}
}

// clientFunc adapts a function to the llm.Client interface.
type clientFunc func(ctx context.Context, messages []llm.Message, onChunk llm.StreamFunc) (string, error)

func (f clientFunc) Chat(ctx context.Context, messages []llm.Message, onChunk llm.StreamFunc) (string, error) {
	return f(ctx, messages, onChunk)
}

func (f clientFunc) Model() string { return "func-model" }

func TestExecutor_TagsPlugin(t *testing.T) {
	fake := &llm.FakeClient{Default: `{"tags": ["Deep Learning", "nlp"]}`}
	ex := NewExecutor(fake, testLogger())

	d := &plugin.Definition{ID: "tagger", OutputKind: plugin.OutputTags, Prompt: "Tag: {{content}}"}
	res, err := ex.Run(context.Background(), d, noteFields("body"), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(res.Tags, []string{"deep-learning", "nlp"}) {
		t.Fatalf("tags = %v", res.Tags)
	}
}

func TestExecutor_BlocksChainSeesEarlierOutput(t *testing.T) {
	fake := &llm.FakeClient{
		Responses: map[string]string{
			"Say a greeting": "hello",
			"Use hello":      "chained fine",
		},
	}
	ex := NewExecutor(fake, testLogger())

	d := &plugin.Definition{
		ID:         "chain",
		OutputKind: plugin.OutputBlocks,
		Blocks: []plugin.Block{
			{ID: "greet", Name: "Greet", Prompt: "Say a greeting"},
			{ID: "use", Name: "Use", Prompt: "Use {{blocks.greet}}"},
		},
	}
	res, err := ex.Run(context.Background(), d, template.Context{}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]string{"greet": "hello", "use": "chained fine"}
	if !reflect.DeepEqual(res.Blocks, want) {
		t.Fatalf("blocks = %v", res.Blocks)
	}
}

func TestExecutor_BlockFailureContinuesChain(t *testing.T) {
	fake := &llm.FakeClient{
		Responses: map[string]string{"first": "one", "third": "three"},
		Errors:    map[string]error{"second": errors.New("model unavailable")},
	}
	ex := NewExecutor(fake, testLogger())

	d := &plugin.Definition{
		ID:         "chain",
		OutputKind: plugin.OutputBlocks,
		Blocks: []plugin.Block{
			{ID: "a", Name: "A", Prompt: "first"},
			{ID: "b", Name: "B", Prompt: "second"},
			{ID: "c", Name: "C", Prompt: "third, after {{blocks.b}}"},
		},
	}
	res, err := ex.Run(context.Background(), d, template.Context{}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Blocks) != 2 || res.Blocks["a"] != "one" || res.Blocks["c"] != "three" {
		t.Fatalf("blocks = %v", res.Blocks)
	}
}

func TestExecutor_AllBlocksFailing(t *testing.T) {
	fake := &llm.FakeClient{Errors: map[string]error{"p": errors.New("down")}}
	ex := NewExecutor(fake, testLogger())

	d := &plugin.Definition{
		ID:         "chain",
		OutputKind: plugin.OutputBlocks,
		Blocks:     []plugin.Block{{ID: "a", Name: "A", Prompt: "p"}},
	}
	if _, err := ex.Run(context.Background(), d, template.Context{}, ""); err == nil {
		t.Fatal("Run should fail when no block produced output")
	}
}

type fakeRegistry struct {
	defs   []*plugin.Definition
	vars   map[string]string
	master string
}

func (r *fakeRegistry) Enabled() []*plugin.Definition { return r.defs }
func (r *fakeRegistry) Variables() map[string]string  { return r.vars }
func (r *fakeRegistry) MasterPrompt() string          { return r.master }

func longContent() string {
	return strings.Repeat("useful page content ", 10)
}

func newTestManager(t *testing.T, reg Registry, client llm.Client) *Manager {
	t.Helper()
	m, err := NewManager(reg, NewExecutor(client, testLogger()), 16, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestProcessNote_RejectsShortContent(t *testing.T) {
	m := newTestManager(t, &fakeRegistry{}, &llm.FakeClient{})
	_, err := m.ProcessNote(context.Background(), models.NoteInput{Content: "tiny"}, Meta{}, nil)
	if !errors.Is(err, apperr.ErrContentTooShort) {
		t.Fatalf("err = %v, want ErrContentTooShort", err)
	}
}

func TestProcessNote_ShortAfterHTMLStrip(t *testing.T) {
	m := newTestManager(t, &fakeRegistry{}, &llm.FakeClient{})
	content := "<div><span>hi</span></div>" + strings.Repeat("<br/>", 40)
	_, err := m.ProcessNote(context.Background(), models.NoteInput{Content: content}, Meta{}, nil)
	if !errors.Is(err, apperr.ErrContentTooShort) {
		t.Fatalf("err = %v, want ErrContentTooShort", err)
	}
}

func TestProcessNote_AggregatesResults(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "sum", OutputKind: plugin.OutputText, Prompt: "summarize {{content}}"},
		{ID: "tagger", OutputKind: plugin.OutputTags, Prompt: "tag {{content}}"},
	}}
	fake := &llm.FakeClient{Responses: map[string]string{
		"summarize": "the summary",
		"tag":       `["go"]`,
	}}
	m := newTestManager(t, reg, fake)

	results, err := m.ProcessNote(context.Background(), models.NoteInput{Content: longContent()}, Meta{}, nil)
	if err != nil {
		t.Fatalf("ProcessNote: %v", err)
	}
	if results["sum"].Text != "the summary" {
		t.Fatalf("sum = %+v", results["sum"])
	}
	if !reflect.DeepEqual(results["tagger"].Tags, []string{"go"}) {
		t.Fatalf("tagger = %+v", results["tagger"])
	}
}

func TestProcessNote_DependentSeesUpstreamOutput(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "sum", OutputKind: plugin.OutputText, Prompt: "summarize {{content}}"},
		{ID: "refine", OutputKind: plugin.OutputText, Prompt: "refine {{plugins.sum}}", DependsOn: []string{"sum"}},
	}}
	fake := &llm.FakeClient{
		Responses: map[string]string{
			"summarize":          "first pass",
			"refine first pass":  "second pass",
		},
	}
	m := newTestManager(t, reg, fake)

	results, err := m.ProcessNote(context.Background(), models.NoteInput{Content: longContent()}, Meta{}, nil)
	if err != nil {
		t.Fatalf("ProcessNote: %v", err)
	}
	if results["refine"].Text != "second pass" {
		t.Fatalf("refine = %+v", results["refine"])
	}
}

func TestProcessNote_MissingDependencyDropsPlugin(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "refine", OutputKind: plugin.OutputText, Prompt: "refine {{plugins.ghost}}", DependsOn: []string{"ghost"}},
		{ID: "sum", OutputKind: plugin.OutputText, Prompt: "summarize {{content}}"},
	}}
	fake := &llm.FakeClient{Default: "fine"}
	m := newTestManager(t, reg, fake)

	results, err := m.ProcessNote(context.Background(), models.NoteInput{Content: longContent()}, Meta{}, nil)
	if err != nil {
		t.Fatalf("ProcessNote: %v", err)
	}
	if _, ok := results["refine"]; ok {
		t.Fatal("plugin with unsatisfiable dependency should be absent from results")
	}
	if results["sum"] == nil {
		t.Fatalf("results = %v", results)
	}
	if got := fake.CallCount(); got != 1 {
		t.Fatalf("model calls = %d, want 1 (dropped plugin must not run)", got)
	}
}

func TestProcessNote_DependentOfFailedPluginRunsEmpty(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "sum", OutputKind: plugin.OutputText, Prompt: "broken prompt"},
		{ID: "refine", OutputKind: plugin.OutputText, Prompt: "refine:{{plugins.sum}}:end", DependsOn: []string{"sum"}},
	}}
	fake := &llm.FakeClient{
		Default: "second pass",
		Errors:  map[string]error{"broken": errors.New("rate limited")},
	}
	m := newTestManager(t, reg, fake)

	results, err := m.ProcessNote(context.Background(), models.NoteInput{Content: longContent()}, Meta{}, nil)
	if err != nil {
		t.Fatalf("ProcessNote: %v", err)
	}
	if _, ok := results["sum"]; ok {
		t.Fatal("failed plugin should be absent from results")
	}
	// The dependency was schedulable; the runtime failure just resolves
	// to the empty string downstream.
	if results["refine"].Text != "second pass" {
		t.Fatalf("refine = %+v", results["refine"])
	}
	if fake.Calls[1] != "refine::end" {
		t.Fatalf("prompt = %q", fake.Calls[1])
	}
}

func TestProcessNote_FailedPluginAbsentFromResults(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "ok", OutputKind: plugin.OutputText, Prompt: "fine prompt"},
		{ID: "broken", OutputKind: plugin.OutputText, Prompt: "broken prompt"},
	}}
	fake := &llm.FakeClient{
		Responses: map[string]string{"fine": "good"},
		Errors:    map[string]error{"broken": errors.New("rate limited")},
	}
	m := newTestManager(t, reg, fake)

	results, err := m.ProcessNote(context.Background(), models.NoteInput{Content: longContent()}, Meta{}, nil)
	if err != nil {
		t.Fatalf("ProcessNote: %v", err)
	}
	if _, ok := results["broken"]; ok {
		t.Fatal("failed plugin should be absent from results")
	}
	if results["ok"].Text != "good" {
		t.Fatalf("ok = %+v", results["ok"])
	}
}

func TestProcessNote_CachesDependencyFreePlugins(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "sum", OutputKind: plugin.OutputText, Prompt: "summarize {{content}}"},
	}}
	fake := &llm.FakeClient{Default: "cached summary"}
	m := newTestManager(t, reg, fake)

	in := models.NoteInput{Content: longContent()}
	if _, err := m.ProcessNote(context.Background(), in, Meta{}, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := m.ProcessNote(context.Background(), in, Meta{}, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := fake.CallCount(); got != 1 {
		t.Fatalf("model calls = %d, want 1 (second run served from cache)", got)
	}
}

func TestProcessNote_ObserverSeesLifecycle(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "sum", OutputKind: plugin.OutputText, Prompt: "p"},
	}}
	m := newTestManager(t, reg, &llm.FakeClient{Default: "x"})

	var mu sync.Mutex
	var events []string
	observe := func(event, pluginID string) {
		mu.Lock()
		defer mu.Unlock()
		if pluginID != "" {
			event = event + ":" + pluginID
		}
		events = append(events, event)
	}

	if _, err := m.ProcessNote(context.Background(), models.NoteInput{Content: longContent()}, Meta{}, observe); err != nil {
		t.Fatalf("ProcessNote: %v", err)
	}

	want := []string{"run.started", "plugin.finished:sum", "run.completed"}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestProcessNote_ExistingTagsReachTemplates(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "tagger", OutputKind: plugin.OutputTags, Prompt: "avoid {{existingTags}}"},
	}}
	fake := &llm.FakeClient{Default: `["fresh"]`}
	m := newTestManager(t, reg, fake)

	_, err := m.ProcessNote(context.Background(), models.NoteInput{Content: longContent()}, Meta{ExistingTags: []string{"go", "llm"}}, nil)
	if err != nil {
		t.Fatalf("ProcessNote: %v", err)
	}
	if fake.Calls[0] != "avoid go, llm" {
		t.Fatalf("prompt = %q", fake.Calls[0])
	}
}

func TestProcessNote_VaultMetaReachesTemplates(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "sum", OutputKind: plugin.OutputText, Prompt: "one of {{noteCount}} notes, tagged {{existingTags}}"},
	}}
	fake := &llm.FakeClient{Default: "ok"}
	m := newTestManager(t, reg, fake)

	meta := Meta{ExistingTags: []string{"go"}, NoteCount: 42}
	if _, err := m.ProcessNote(context.Background(), models.NoteInput{Content: longContent()}, meta, nil); err != nil {
		t.Fatalf("ProcessNote: %v", err)
	}
	if fake.Calls[0] != "one of 42 notes, tagged go" {
		t.Fatalf("prompt = %q", fake.Calls[0])
	}
}

func TestExecutor_TrimsModelOutput(t *testing.T) {
	fake := &llm.FakeClient{Default: "  a summary \n"}
	ex := NewExecutor(fake, testLogger())

	d := &plugin.Definition{ID: "sum", OutputKind: plugin.OutputText, Prompt: "p"}
	res, err := ex.Run(context.Background(), d, template.Context{}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "a summary" {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestExecutor_WhitespaceOnlyOutputIsNull(t *testing.T) {
	fake := &llm.FakeClient{Default: "   \n  "}
	ex := NewExecutor(fake, testLogger())

	d := &plugin.Definition{ID: "sum", OutputKind: plugin.OutputText, Prompt: "p"}
	res, err := ex.Run(context.Background(), d, template.Context{}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != nil {
		t.Fatalf("res = %+v, want nil", res)
	}
}

func TestExecutor_UnparseableTagsAreNull(t *testing.T) {
	fake := &llm.FakeClient{Default: "no tags in this prose at all"}
	ex := NewExecutor(fake, testLogger())

	d := &plugin.Definition{ID: "tagger", OutputKind: plugin.OutputTags, Prompt: "p"}
	res, err := ex.Run(context.Background(), d, template.Context{}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != nil {
		t.Fatalf("res = %+v, want nil", res)
	}
}

func TestExecutor_EmptyBlockOutputIsSkipped(t *testing.T) {
	fake := &llm.FakeClient{
		Responses: map[string]string{"first": "one", "second": "  \n"},
	}
	ex := NewExecutor(fake, testLogger())

	d := &plugin.Definition{
		ID:         "chain",
		OutputKind: plugin.OutputBlocks,
		Blocks: []plugin.Block{
			{ID: "a", Name: "A", Prompt: "first"},
			{ID: "b", Name: "B", Prompt: "second"},
		},
	}
	res, err := ex.Run(context.Background(), d, template.Context{}, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Blocks) != 1 || res.Blocks["a"] != "one" {
		t.Fatalf("blocks = %v", res.Blocks)
	}
}

func TestProcessNote_EmptyOutputAbsentFromResults(t *testing.T) {
	reg := &fakeRegistry{defs: []*plugin.Definition{
		{ID: "sum", OutputKind: plugin.OutputText, Prompt: "summarize {{content}}"},
	}}
	fake := &llm.FakeClient{Default: "   \n  "}
	m := newTestManager(t, reg, fake)

	in := models.NoteInput{Content: longContent()}
	results, err := m.ProcessNote(context.Background(), in, Meta{}, nil)
	if err != nil {
		t.Fatalf("ProcessNote: %v", err)
	}
	if _, ok := results["sum"]; ok {
		t.Fatal("whitespace-only output should be absent from results")
	}

	// Nothing was cached; the next run reaches the model again.
	if _, err := m.ProcessNote(context.Background(), in, Meta{}, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := fake.CallCount(); got != 2 {
		t.Fatalf("model calls = %d, want 2", got)
	}
}
