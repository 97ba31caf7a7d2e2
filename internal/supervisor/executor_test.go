package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/config"
	"github.com/nextlevelbuilder/ensemble/internal/memory"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

func newTestExecutor(t *testing.T, fb *fakeBridge) (*Executor, *[]time.Duration) {
	t.Helper()
	cfg := config.Default()
	mem := memory.NewStore(t.TempDir(), t.TempDir())
	e := NewExecutor(fb.client(), mem, "chat-1", cfg)
	var sleeps []time.Duration
	e.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return e, &sleeps
}

func TestExecutorReaction(t *testing.T) {
	fb := newFakeBridge()
	defer fb.close()
	e, _ := newTestExecutor(t, fb)

	st := &state.SupervisorState{
		ExecutionQueue: []state.QueueItem{{
			AgentName: "maya", ActionID: state.ActionAddReaction, ActionContent: "👏",
			PhoneNumber: "+15550001111",
			Target:      &state.TargetMessage{Timestamp: "2025-11-26 08:36:07", Text: "cool"},
			Status:      state.QueuePending,
		}},
	}
	if got := e.Execute(context.Background(), st); got != 1 {
		t.Fatalf("executed = %d, want 1", got)
	}

	reactions := fb.callsTo("/reactions")
	if len(reactions) != 1 {
		t.Fatalf("reaction calls = %d, want 1", len(reactions))
	}
	body := reactions[0].Body
	if body["messageTimestamp"] != "2025-11-26T08:36:07.000Z" {
		t.Errorf("timestamp = %v, want ISO with millis", body["messageTimestamp"])
	}
	if body["emoji"] != "👏" || body["phone"] != "+15550001111" || body["chatId"] != "chat-1" {
		t.Errorf("reaction body = %v", body)
	}
	if len(fb.callsTo("/messages/send")) != 0 {
		t.Error("reaction went through the send endpoint")
	}
	if len(st.ExecutionQueue) != 0 {
		t.Errorf("queue after execute = %+v, want empty", st.ExecutionQueue)
	}
}

func TestExecutorReactionWithoutTimestampDropped(t *testing.T) {
	fb := newFakeBridge()
	defer fb.close()
	e, _ := newTestExecutor(t, fb)

	st := &state.SupervisorState{
		ExecutionQueue: []state.QueueItem{{
			AgentName: "maya", ActionID: state.ActionAddReaction, ActionContent: "👏",
			PhoneNumber: "+15550001111", Status: state.QueuePending,
		}},
	}
	if got := e.Execute(context.Background(), st); got != 0 {
		t.Fatalf("executed = %d, want 0", got)
	}
	if len(fb.calls) != 0 {
		t.Errorf("bridge called for undropped reaction: %+v", fb.calls)
	}
	if len(st.ExecutionQueue) != 0 {
		t.Errorf("dropped item not consumed: %+v", st.ExecutionQueue)
	}
}

func TestExecutorReplyElision(t *testing.T) {
	newestAt := time.Date(2025, 11, 26, 9, 0, 0, 0, time.UTC)
	olderAt := time.Date(2025, 11, 26, 8, 36, 7, 0, time.UTC)

	cases := []struct {
		name      string
		targetTS  string
		wantReply bool
	}{
		{"reply to older message", "2025-11-26 08:36:07", true},
		{"elide reply to newest", "2025-11-26 09:00:00", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fb := newFakeBridge()
			defer fb.close()
			e, _ := newTestExecutor(t, fb)

			st := &state.SupervisorState{
				RecentMessages: []state.Message{
					humanMessage("2", "sasha", "newest", newestAt),
					humanMessage("1", "sasha", "older", olderAt),
				},
				ExecutionQueue: []state.QueueItem{{
					AgentName: "maya", ActionID: "send_message", ActionContent: "sure!",
					PhoneNumber: "+15550001111",
					Target:      &state.TargetMessage{Timestamp: tc.targetTS},
					Status:      state.QueuePending,
				}},
			}
			e.Execute(context.Background(), st)

			sends := fb.callsTo("/messages/send")
			if len(sends) != 1 {
				t.Fatalf("send calls = %d, want 1", len(sends))
			}
			_, hasReply := sends[0].Body["replyToTimestamp"]
			if hasReply != tc.wantReply {
				t.Errorf("replyToTimestamp present = %v, want %v (body %v)", hasReply, tc.wantReply, sends[0].Body)
			}
		})
	}
}

func TestExecutorTypingAndCooldown(t *testing.T) {
	fb := newFakeBridge()
	defer fb.close()
	e, sleeps := newTestExecutor(t, fb)

	st := &state.SupervisorState{
		ExecutionQueue: []state.QueueItem{
			{AgentName: "maya", ActionID: "send_message", ActionContent: "short",
				PhoneNumber: "+15550001111", Status: state.QueuePending},
			{AgentName: "leo", ActionID: "send_message", ActionContent: "also short",
				PhoneNumber: "+15550002222", Status: state.QueuePending},
		},
	}
	if got := e.Execute(context.Background(), st); got != 2 {
		t.Fatalf("executed = %d, want 2", got)
	}

	typings := fb.callsTo("/typing")
	if len(typings) != 2 {
		t.Fatalf("typing calls = %d, want 2", len(typings))
	}
	// 5-rune message clamps up to the 2s minimum
	if d := typings[0].Body["duration"].(float64); d != 2000 {
		t.Errorf("typing duration = %v, want 2000", d)
	}

	// typing sleep, cooldown, typing sleep
	if len(*sleeps) != 3 {
		t.Fatalf("sleeps = %v, want 3 entries", *sleeps)
	}
	cooldown := (*sleeps)[1]
	if cooldown != 160*time.Second {
		t.Errorf("cooldown = %v, want 160s", cooldown)
	}
}

func TestExecutorRecordsActions(t *testing.T) {
	fb := newFakeBridge()
	defer fb.close()
	cfg := config.Default()
	mem := memory.NewStore(t.TempDir(), t.TempDir())
	e := NewExecutor(fb.client(), mem, "chat-1", cfg)
	e.sleep = func(time.Duration) {}

	st := &state.SupervisorState{
		ExecutionQueue: []state.QueueItem{{
			AgentName: "maya", ActionID: "send_message", ActionPurpose: "greet",
			ActionContent: "hello!", PhoneNumber: "+15550001111",
			TriggerID: "greeting", Status: state.QueuePending,
		}},
	}
	e.Execute(context.Background(), st)

	records, err := mem.RecentActions("chat-1", "maya", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ActionContent != "hello!" || records[0].TriggerID != "greeting" {
		t.Errorf("records = %+v", records)
	}
}

func TestTypingDurationClamp(t *testing.T) {
	cases := []struct {
		content string
		want    time.Duration
	}{
		{"hi", 2 * time.Second},
		{string(make([]rune, 40)), 4 * time.Second},
		{string(make([]rune, 500)), 8 * time.Second},
	}
	for _, tc := range cases {
		if got := typingDuration(tc.content); got != tc.want {
			t.Errorf("typingDuration(len %d) = %v, want %v", len([]rune(tc.content)), got, tc.want)
		}
	}
}
