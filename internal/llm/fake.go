package llm

import (
	"context"
	"strings"
	"sync"
)

// FakeClient is a scripted Client for tests. Responses are matched by
// substring of the last user message; the first match wins. If Err is set
// for a match, Chat returns it instead.
type FakeClient struct {
	mu sync.Mutex

	// Responses maps a prompt substring to the canned response.
	Responses map[string]string
	// Errors maps a prompt substring to an error to return.
	Errors map[string]error
	// Default is returned when nothing matches.
	Default string

	// Calls records every prompt sent, in order.
	Calls []string
}

// Chat returns the scripted response for the last user message.
func (f *FakeClient) Chat(_ context.Context, messages []Message, onChunk StreamFunc) (string, error) {
	prompt := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			prompt = messages[i].Content
			break
		}
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, prompt)
	f.mu.Unlock()

	for sub, err := range f.Errors {
		if sub != "" && strings.Contains(prompt, sub) {
			return "", err
		}
	}
	for sub, resp := range f.Responses {
		if sub != "" && strings.Contains(prompt, sub) {
			emit(onChunk, resp)
			return resp, nil
		}
	}
	emit(onChunk, f.Default)
	return f.Default, nil
}

// Model reports a fixed test model name.
func (f *FakeClient) Model() string { return "fake-model" }

// CallCount returns how many Chat calls were made.
func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func emit(onChunk StreamFunc, s string) {
	if onChunk != nil && s != "" {
		onChunk(s)
	}
}
