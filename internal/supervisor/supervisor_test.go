package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/bridge"
	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/providers"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// funcLLM routes each call through fn, keyed on prompt content. Handles the
// concurrent fan-out without caring about call order.
type funcLLM struct {
	mu      sync.Mutex
	prompts []string
	fn      func(prompt string) (string, error)
}

func (f *funcLLM) Name() string         { return "func" }
func (f *funcLLM) DefaultModel() string { return "test-model" }

func (f *funcLLM) Complete(_ context.Context, req providers.CompletionRequest) (*providers.Completion, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	text, err := f.fn(req.Prompt)
	if err != nil {
		return nil, err
	}
	return &providers.Completion{Text: text}, nil
}

func (f *funcLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// recordedCall is one request the fake bridge received.
type recordedCall struct {
	Path string
	Body map[string]any
}

// fakeBridge is an httptest-backed bridge that records writes and serves a
// configurable message list.
type fakeBridge struct {
	mu       sync.Mutex
	calls    []recordedCall
	messages []bridge.RawMessage
	server   *httptest.Server
}

func newFakeBridge() *fakeBridge {
	fb := &fakeBridge{}
	fb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat-messages":
			fb.mu.Lock()
			msgs := fb.messages
			fb.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"success": true, "messages": msgs})
		case "/participants":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true, "chatTitle": "Book Club",
				"chatDescription": "weekly reads", "participantsCount": 5,
			})
		default:
			body, _ := io.ReadAll(r.Body)
			var parsed map[string]any
			json.Unmarshal(body, &parsed)
			fb.mu.Lock()
			fb.calls = append(fb.calls, recordedCall{Path: r.URL.Path, Body: parsed})
			fb.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"success": true})
		}
	}))
	return fb
}

func (fb *fakeBridge) client() *bridge.Client {
	return bridge.NewClient(fb.server.URL, 5*time.Second, 1000)
}

func (fb *fakeBridge) close() { fb.server.Close() }

func (fb *fakeBridge) callsTo(path string) []recordedCall {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out []recordedCall
	for _, c := range fb.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func jsonUnmarshal(s string, out any) error { return json.Unmarshal([]byte(s), out) }

func itoa(i int) string { return strconv.Itoa(i) }

func testRoster() []*personas.Persona {
	return []*personas.Persona{
		{AgentName: "maya", FirstName: "Maya", LastName: "Chen", Username: "maya_c", PhoneNumber: "+15550001111"},
		{AgentName: "leo", FirstName: "Leo", Username: "leo_b", PhoneNumber: "+15550002222"},
	}
}

func humanMessage(id, sender, text string, at time.Time) state.Message {
	return state.Message{
		MessageID:      id,
		SenderID:       "u-" + sender,
		SenderUsername: sender,
		Text:           text,
		Date:           at,
	}
}
