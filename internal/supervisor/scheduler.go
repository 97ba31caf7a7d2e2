package supervisor

import (
	"log/slog"

	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// Schedule turns the tick's collected actions into the execution queue.
// Unactionable outcomes (no_action_needed, error) are dropped; the rest
// become pending queue items in arrival order. Afterwards every window
// message is marked processed and the collected actions are cleared.
func Schedule(st *state.SupervisorState) {
	queue := make([]state.QueueItem, 0, len(st.SelectedActions))
	for _, a := range st.SelectedActions {
		switch a.Status {
		case state.StatusNoActionNeeded, state.StatusError:
			continue
		}
		queue = append(queue, state.QueueItem{
			AgentName:            a.AgentName,
			AgentType:            a.AgentType,
			ActionID:             a.ID,
			ActionPurpose:        a.Purpose,
			ActionContent:        a.StyledResponse,
			PhoneNumber:          a.PhoneNumber,
			Target:               a.Target,
			TriggerID:            a.TriggerID,
			TriggerJustification: a.TriggerJustification,
			ValidationNote:       a.ValidationNote,
			Status:               state.QueuePending,
		})
	}
	st.ExecutionQueue = queue

	for i := range st.RecentMessages {
		st.RecentMessages[i].Processed = true
	}
	st.SelectedActions = state.MergeSelectedActions(st.SelectedActions, state.ClearActions)

	if len(queue) > 0 {
		slog.Info("scheduled actions", "count", len(queue))
	}
}
