package supervisor

import (
	"log/slog"

	"github.com/nextlevelbuilder/ensemble/internal/hitl"
	"github.com/nextlevelbuilder/ensemble/internal/memory"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// BuildApprovalRequest assembles the payload the operator reviews: every
// pending queue item, the group summary, and the recent window for context.
func BuildApprovalRequest(st *state.SupervisorState) hitl.ApprovalRequest {
	req := hitl.ApprovalRequest{
		GroupInfo: hitl.GroupInfo{
			Name:    st.GroupMetadata.Name,
			ID:      st.GroupMetadata.ID,
			Members: st.GroupMetadata.Members,
			Topic:   st.GroupMetadata.Topic,
		},
	}

	for _, item := range st.ExecutionQueue {
		if item.Status != state.QueuePending {
			continue
		}
		pm := hitl.PendingMessage{
			AgentName:            item.AgentName,
			AgentType:            item.AgentType,
			ProposedMessage:      item.ActionContent,
			ActionID:             item.ActionID,
			ActionPurpose:        item.ActionPurpose,
			TriggerID:            item.TriggerID,
			TriggerJustification: item.TriggerJustification,
			PhoneNumber:          item.PhoneNumber,
		}
		if item.Target != nil {
			pm.Target = &hitl.PendingTarget{Text: item.Target.Text, Timestamp: item.Target.Timestamp}
			if m := findByTimestamp(st.RecentMessages, item.Target.Timestamp); m != nil {
				pm.Target.SenderName = m.DisplayName()
				pm.Target.SenderFirstName = m.SenderFirstName
				pm.Target.SenderUsername = m.SenderUsername
				pm.Target.MessageID = m.MessageID
			}
		}
		req.PendingMessages = append(req.PendingMessages, pm)
	}
	req.TotalPending = len(req.PendingMessages)

	// context messages run oldest-first for readability; the window itself
	// is stored newest-first
	for i := len(st.RecentMessages) - 1; i >= 0; i-- {
		m := &st.RecentMessages[i]
		cm := hitl.ContextMessage{
			SenderName:      m.DisplayName(),
			SenderFirstName: m.SenderFirstName,
			SenderUsername:  m.SenderUsername,
			Text:            m.Text,
			Timestamp:       windowTimestamp(m),
		}
		if m.Emotion != nil {
			cm.Emotion = m.Emotion.Emotion
		}
		req.ContextMessages = append(req.ContextMessages, cm)
	}
	return req
}

// ApplyOperatorResponse filters the queue by the operator's decisions.
// Approved items carry forward, with edits applied. Rejected items are
// dropped and logged; a replacement message becomes a new queue item under
// the synthetic operator_replacement action. Items with no decision are
// dropped: nothing reaches the executor without an explicit verdict.
func ApplyOperatorResponse(st *state.SupervisorState, resp *hitl.OperatorResponse, mem *memory.Store) {
	decisions := make(map[string]hitl.Decision, len(resp.Decisions))
	for _, d := range resp.Decisions {
		decisions[d.AgentName] = d
	}

	groupID := st.GroupMetadata.ID
	next := make([]state.QueueItem, 0, len(st.ExecutionQueue))
	for _, item := range st.ExecutionQueue {
		if item.Status != state.QueuePending {
			continue
		}
		d, ok := decisions[item.AgentName]
		if !ok {
			slog.Warn("no operator decision for pending item, dropping", "agent", item.AgentName)
			continue
		}

		entry := memory.DecisionEntry{
			AgentName: item.AgentName,
			Message:   item.ActionContent,
			GroupName: st.GroupMetadata.Name,
			TriggerID: item.TriggerID,
			ActionID:  item.ActionID,
		}

		switch d.Decision {
		case hitl.DecisionApproved:
			if d.EditedContent != "" {
				item.ActionContent = d.EditedContent
			}
			next = append(next, item)
			if err := mem.LogDecision(groupID, true, entry); err != nil {
				slog.Warn("logging approval failed", "error", err)
			}
		case hitl.DecisionRejected:
			entry.RejectionReason = d.RejectionReason
			entry.ReplacementMessage = d.ReplacementMessage
			if err := mem.LogDecision(groupID, false, entry); err != nil {
				slog.Warn("logging rejection failed", "error", err)
			}
			if d.ReplacementMessage != "" {
				next = append(next, state.QueueItem{
					AgentName:     item.AgentName,
					AgentType:     item.AgentType,
					ActionID:      state.ActionOperatorReplacement,
					ActionPurpose: "operator-provided replacement",
					ActionContent: d.ReplacementMessage,
					PhoneNumber:   item.PhoneNumber,
					Status:        state.QueuePending,
				})
			}
		default:
			slog.Warn("unknown operator decision, dropping", "agent", item.AgentName, "decision", d.Decision)
		}
	}
	st.ExecutionQueue = next
}

// findByTimestamp locates the window message whose local timestamp matches
// a target timestamp produced by trigger analysis.
func findByTimestamp(msgs []state.Message, ts string) *state.Message {
	for i := range msgs {
		if windowTimestamp(&msgs[i]) == ts {
			return &msgs[i]
		}
	}
	return nil
}

// windowTimestamp is the local-format timestamp trigger analysis sees in
// prompts and echoes back as target_message.timestamp.
func windowTimestamp(m *state.Message) string {
	if !m.Date.IsZero() {
		return m.Date.Format("2006-01-02 15:04:05")
	}
	return m.Timestamp
}
