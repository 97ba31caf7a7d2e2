package supervisor

import (
	"testing"

	"github.com/nextlevelbuilder/ensemble/internal/state"
)

func TestScheduleFiltersAndClears(t *testing.T) {
	st := &state.SupervisorState{
		RecentMessages: []state.Message{
			{MessageID: "1", Text: "hi"},
			{MessageID: "2", Text: "hey", Processed: true},
		},
		SelectedActions: []state.SelectedAction{
			{ID: "send_message", Status: state.StatusSuccess, AgentName: "maya", AgentType: "supporter",
				StyledResponse: "hey sasha!", PhoneNumber: "+15550001111", TriggerID: "greeting"},
			{ID: "none", Status: state.StatusNoActionNeeded, AgentName: "leo"},
			{ID: "none", Status: state.StatusError, AgentName: "ava", Error: "boom"},
			{ID: "send_message", Status: state.StatusMaxRetriesReached, AgentName: "kai",
				StyledResponse: "best effort", PhoneNumber: "+15550003333", ValidationNote: "flagged"},
		},
	}

	Schedule(st)

	if len(st.ExecutionQueue) != 2 {
		t.Fatalf("queue = %d items, want 2", len(st.ExecutionQueue))
	}
	first, second := st.ExecutionQueue[0], st.ExecutionQueue[1]
	if first.AgentName != "maya" || second.AgentName != "kai" {
		t.Errorf("order not preserved: %q then %q", first.AgentName, second.AgentName)
	}
	if first.ActionContent != "hey sasha!" || first.TriggerID != "greeting" {
		t.Errorf("first item = %+v", first)
	}
	if first.Status != state.QueuePending || second.Status != state.QueuePending {
		t.Error("queue items not pending")
	}
	if second.ValidationNote == "" {
		t.Error("validation note dropped from flagged item")
	}

	if st.SelectedActions == nil || len(st.SelectedActions) != 0 {
		t.Errorf("selected actions not cleared: %+v", st.SelectedActions)
	}
	for _, m := range st.RecentMessages {
		if !m.Processed {
			t.Errorf("message %s not marked processed", m.MessageID)
		}
	}
}

func TestScheduleEmpty(t *testing.T) {
	st := &state.SupervisorState{
		SelectedActions: []state.SelectedAction{
			{ID: "none", Status: state.StatusNoActionNeeded, AgentName: "maya"},
		},
	}
	Schedule(st)
	if len(st.ExecutionQueue) != 0 {
		t.Fatalf("queue = %+v, want empty", st.ExecutionQueue)
	}
	if len(st.SelectedActions) != 0 {
		t.Error("selected actions not cleared")
	}
}
