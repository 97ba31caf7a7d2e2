package supervisor

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/config"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

func emotionState() *state.SupervisorState {
	at := time.Date(2025, 11, 26, 8, 36, 7, 0, time.UTC)
	return &state.SupervisorState{
		GroupMetadata: state.GroupMetadata{Name: "Book Club", Topic: "weekly reads"},
		RecentMessages: []state.Message{
			humanMessage("2", "sasha", "anyone finished chapter 3?", at.Add(time.Minute)),
			humanMessage("1", "sasha", "lol ok", at),
		},
	}
}

func TestEmotionAnalyzeFillsAllMessages(t *testing.T) {
	llm := &funcLLM{fn: func(string) (string, error) {
		return `{"message_emotions":[
			{"message_id":"1","emotion":"neutral","justification":"throwaway"},
			{"message_id":"2","emotion":"curiosity","justification":"asking the group"}
		],"group_sentiment":"relaxed and curious"}`, nil
	}}
	a := NewEmotionAnalyzer(llm, config.Default(), testRoster())

	st := emotionState()
	a.Analyze(context.Background(), st)

	for _, m := range st.RecentMessages {
		if m.Emotion == nil {
			t.Fatalf("message %s left unlabeled", m.MessageID)
		}
	}
	if st.RecentMessages[1].Emotion.Emotion != "neutral" {
		t.Errorf("emotion for id 1 = %q", st.RecentMessages[1].Emotion.Emotion)
	}
	if st.GroupSentiment != "relaxed and curious" {
		t.Errorf("sentiment = %q", st.GroupSentiment)
	}
	if llm.callCount() != 1 {
		t.Errorf("calls = %d, want 1", llm.callCount())
	}
}

func TestEmotionAnalyzeRetriesOnceThenErrors(t *testing.T) {
	llm := &funcLLM{fn: func(string) (string, error) {
		return "not json at all", nil
	}}
	a := NewEmotionAnalyzer(llm, config.Default(), testRoster())

	st := emotionState()
	a.Analyze(context.Background(), st)

	if llm.callCount() != 2 {
		t.Fatalf("calls = %d, want 2 (one retry)", llm.callCount())
	}
	for _, m := range st.RecentMessages {
		if m.Emotion == nil || m.Emotion.Emotion != "ERROR" {
			t.Errorf("message %s = %+v, want ERROR label", m.MessageID, m.Emotion)
		}
	}
	if !strings.HasPrefix(st.GroupSentiment, "ERROR") {
		t.Errorf("sentiment = %q, want ERROR prefix", st.GroupSentiment)
	}
}

func TestEmotionAnalyzeSecondCallRecovers(t *testing.T) {
	calls := 0
	llm := &funcLLM{fn: func(string) (string, error) {
		calls++
		if calls == 1 {
			return "garbled", nil
		}
		return `{"message_emotions":[
			{"message_id":"1","emotion":"neutral","justification":"x"},
			{"message_id":"2","emotion":"curiosity","justification":"y"}
		],"group_sentiment":"fine"}`, nil
	}}
	a := NewEmotionAnalyzer(llm, config.Default(), testRoster())

	st := emotionState()
	a.Analyze(context.Background(), st)
	if st.GroupSentiment != "fine" {
		t.Errorf("sentiment = %q after recovery", st.GroupSentiment)
	}
}

func TestEmotionAnalyzeSkipsWhenAllLabeled(t *testing.T) {
	llm := &funcLLM{fn: func(string) (string, error) {
		return "", fmt.Errorf("should not be called")
	}}
	a := NewEmotionAnalyzer(llm, config.Default(), testRoster())

	st := emotionState()
	for i := range st.RecentMessages {
		st.RecentMessages[i].Emotion = &state.Emotion{Emotion: "neutral"}
	}
	a.Analyze(context.Background(), st)

	if llm.callCount() != 0 {
		t.Errorf("LLM called with nothing to classify")
	}
	if st.GroupSentiment == "" {
		t.Error("sentiment left empty")
	}
}

func TestEmotionAnalyzeMissingIDGetsErrorLabel(t *testing.T) {
	llm := &funcLLM{fn: func(string) (string, error) {
		return `{"message_emotions":[
			{"message_id":"2","emotion":"curiosity","justification":"y"}
		],"group_sentiment":"fine"}`, nil
	}}
	a := NewEmotionAnalyzer(llm, config.Default(), testRoster())

	st := emotionState()
	a.Analyze(context.Background(), st)

	if e := st.RecentMessages[1].Emotion; e == nil || e.Emotion != "ERROR" {
		t.Errorf("omitted message = %+v, want ERROR label", e)
	}
}
