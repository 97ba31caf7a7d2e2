package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

var (
	maya = &personas.Persona{FirstName: "Maya", LastName: "Chen", Username: "maya_c"}
	leo  = &personas.Persona{FirstName: "Leo", Username: "leo_b"}
)

func TestFormatMessage_Basic(t *testing.T) {
	m := state.Message{
		SenderUsername: "sasha",
		Text:           "what did everyone think of the ending?",
		Date:           time.Date(2025, 11, 26, 8, 36, 7, 0, time.UTC),
		Emotion:        &state.Emotion{Emotion: "curiosity"},
	}
	got := FormatMessage(&m, FormatOptions{IncludeTimestamp: true, IncludeEmotion: true})
	want := "[2025-11-26 08:36:07] sasha [curiosity]: what did everyone think of the ending?"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestFormatMessage_YouAndAgentAnnotations(t *testing.T) {
	own := state.Message{SenderUsername: "maya_c", Text: "I loved it"}
	other := state.Message{SenderUsername: "leo_b", Text: "same"}
	foreign := state.Message{SenderUsername: "sasha", Text: "meh"}

	opts := FormatOptions{Self: maya, Agents: []*personas.Persona{maya, leo}}

	if got := FormatMessage(&own, opts); !strings.Contains(got, "maya_c (YOU):") {
		t.Errorf("own message missing (YOU): %q", got)
	}
	if got := FormatMessage(&other, opts); !strings.Contains(got, "leo_b (Agent):") {
		t.Errorf("other agent missing (Agent): %q", got)
	}
	if got := FormatMessage(&foreign, opts); strings.Contains(got, "(YOU)") || strings.Contains(got, "(Agent)") {
		t.Errorf("foreign sender annotated: %q", got)
	}
}

func TestFormatMessage_Reactions(t *testing.T) {
	m := state.Message{
		SenderUsername: "sasha",
		Text:           "finished the book!",
		Reactions: []state.Reaction{
			{Emoji: "👏", Count: 2, Users: []string{"Maya Chen", "Leo"}},
		},
	}
	got := FormatMessage(&m, FormatOptions{})
	if !strings.Contains(got, "[Reactions: 👏 x2 (Maya Chen, Leo)]") {
		t.Errorf("reactions annotation wrong: %q", got)
	}
}

func TestFormatMessage_ReplyTo(t *testing.T) {
	quoted := state.Message{MessageID: "10", SenderUsername: "sasha", Text: "what did everyone think of the ending?"}
	m := state.Message{
		MessageID:      "11",
		SenderUsername: "leo_b",
		Text:           "honestly it lost me",
		ReplyToID:      "10",
	}
	opts := FormatOptions{ByID: map[string]*state.Message{"10": &quoted}}
	got := FormatMessage(&m, opts)
	if !strings.Contains(got, `[⤷ Replying to sasha:`) {
		t.Errorf("reply annotation missing: %q", got)
	}
}

func TestFormatMessage_NewMarker(t *testing.T) {
	fresh := state.Message{SenderUsername: "sasha", Text: "hi"}
	seen := state.Message{SenderUsername: "sasha", Text: "hi", Processed: true}

	if got := FormatMessage(&fresh, FormatOptions{MarkNew: true}); !strings.HasSuffix(got, "[NEW]") {
		t.Errorf("unprocessed message missing [NEW]: %q", got)
	}
	if got := FormatMessage(&seen, FormatOptions{MarkNew: true}); strings.HasSuffix(got, "[NEW]") {
		t.Errorf("processed message marked [NEW]: %q", got)
	}
}

func TestFormatConversation_OldestFirst(t *testing.T) {
	msgs := []state.Message{
		{MessageID: "2", SenderUsername: "b", Text: "second"},
		{MessageID: "1", SenderUsername: "a", Text: "first"},
	}
	got := FormatConversation(msgs, FormatOptions{})
	first := strings.Index(got, "first")
	second := strings.Index(got, "second")
	if first == -1 || second == -1 || first > second {
		t.Errorf("conversation not oldest-first:\n%s", got)
	}
}

func TestRender(t *testing.T) {
	out := Render("hello {{name}}, {{name}}! {{missing}}", map[string]string{"name": "Maya"})
	if out != "hello Maya, Maya! {{missing}}" {
		t.Errorf("Render = %q", out)
	}
}

func TestLoadTemplates(t *testing.T) {
	for _, name := range []string{
		"emotion_analysis", "trigger_analysis", "decision_maker",
		"text_generator", "styler", "validator", "personality_trait",
	} {
		tpl, err := Load(name)
		if err != nil {
			t.Errorf("Load(%q): %v", name, err)
			continue
		}
		if !strings.Contains(tpl, "{{") {
			t.Errorf("template %q has no substitution tokens", name)
		}
	}
}
