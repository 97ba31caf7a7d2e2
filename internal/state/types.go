// Package state defines the typed state shared across the supervisor graph
// and the per-persona subgraphs, plus the reducers that merge parallel
// branch updates back into it.
package state

import "time"

// Action statuses produced by the persona subgraph.
const (
	StatusSuccess           = "success"
	StatusNoActionNeeded    = "no_action_needed"
	StatusError             = "error"
	StatusMaxRetriesReached = "max_retries_reached"
)

// TriggerNeutral is the catalog id meaning "nothing to act on".
const TriggerNeutral = "neutral"

// TriggerError marks a trigger-analysis failure.
const TriggerError = "ERROR"

// ActionAddReaction is dispatched through the reactions endpoint instead of
// the send endpoint.
const ActionAddReaction = "add_reaction"

// ActionOperatorReplacement is the synthetic action id for messages injected
// by the human operator in place of a rejected one.
const ActionOperatorReplacement = "operator_replacement"

// Emotion is a per-message affect classification.
type Emotion struct {
	Emotion       string `json:"emotion"`
	Justification string `json:"justification"`
}

// TraitScore is one Big-Five trait assessment. RawConfidence holds the
// model's unpenalized confidence when a message-count penalty was applied.
type TraitScore struct {
	Score         int     `json:"score"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
	RawConfidence float64 `json:"raw_confidence,omitempty"`
	Changed       bool    `json:"changed,omitempty"`
	ChangeReason  string  `json:"change_reason,omitempty"`
}

// Reaction is an emoji reaction on a message. Users carries display names of
// known agents only; foreign reactors are dropped at parse time.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users,omitempty"`
}

// Message is one chat message in the recent window. Identity fields are
// immutable; Emotion, Personality and Processed are annotated as the message
// moves through the pipeline.
type Message struct {
	MessageID       string                `json:"message_id"`
	SenderID        string                `json:"sender_id"`
	SenderUsername  string                `json:"sender_username"`
	SenderFirstName string                `json:"sender_first_name"`
	SenderLastName  string                `json:"sender_last_name"`
	Text            string                `json:"text"`
	Date            time.Time             `json:"date"`
	Timestamp       string                `json:"timestamp,omitempty"`
	Reactions       []Reaction            `json:"reactions,omitempty"`
	ReplyToID       string                `json:"reply_to_message_id,omitempty"`
	Emotion         *Emotion              `json:"message_emotion,omitempty"`
	Personality     map[string]TraitScore `json:"sender_personality,omitempty"`
	Processed       bool                  `json:"processed"`
}

// DisplayName is the sender's human-readable name: "First Last", falling
// back to first name alone, then username.
func (m *Message) DisplayName() string {
	switch {
	case m.SenderFirstName != "" && m.SenderLastName != "":
		return m.SenderFirstName + " " + m.SenderLastName
	case m.SenderFirstName != "":
		return m.SenderFirstName
	default:
		return m.SenderUsername
	}
}

// GroupMetadata describes the chat the supervisor is attached to.
type GroupMetadata struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Topic   string `json:"topic"`
	Members int    `json:"members"`
}

// TargetMessage points at the message an action reacts or replies to.
type TargetMessage struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// DetectedTrigger is the trigger-analysis result for one persona.
type DetectedTrigger struct {
	ID            string         `json:"id"`
	Justification string         `json:"justification"`
	Target        *TargetMessage `json:"target_message,omitempty"`
}

// SelectedAction is the terminal outcome of one persona subgraph run. The
// trigger fields carry the originating trigger forward for the approval UI
// and the per-agent action history.
type SelectedAction struct {
	ID                   string         `json:"id"`
	Purpose              string         `json:"purpose"`
	Status               string         `json:"status"`
	StyledResponse       string         `json:"styled_response,omitempty"`
	ValidationNote       string         `json:"validation_note,omitempty"`
	Error                string         `json:"error,omitempty"`
	Target               *TargetMessage `json:"target_message,omitempty"`
	TriggerID            string         `json:"trigger_id,omitempty"`
	TriggerJustification string         `json:"trigger_justification,omitempty"`
	AgentType            string         `json:"agent_type"`
	AgentName            string         `json:"agent_name"`
	PhoneNumber          string         `json:"phone_number"`
}

// ActionRecord is the durable trace of an executed action, kept per agent.
type ActionRecord struct {
	TriggerID            string         `json:"trigger_id"`
	TriggerJustification string         `json:"trigger_justification"`
	Target               *TargetMessage `json:"target_message,omitempty"`
	ActionID             string         `json:"action_id"`
	ActionPurpose        string         `json:"action_purpose"`
	ActionContent        string         `json:"action_content"`
	ActionTimestamp      string         `json:"action_timestamp,omitempty"`
}

// Queue item statuses.
const (
	QueuePending = "pending"
	QueueSent    = "sent"
)

// QueueItem is one scheduled outbound action awaiting execution.
type QueueItem struct {
	AgentName            string         `json:"agent_name"`
	AgentType            string         `json:"agent_type"`
	ActionID             string         `json:"action_id"`
	ActionPurpose        string         `json:"action_purpose"`
	ActionContent        string         `json:"action_content"`
	PhoneNumber          string         `json:"phone_number"`
	Target               *TargetMessage `json:"target_message,omitempty"`
	TriggerID            string         `json:"trigger_id,omitempty"`
	TriggerJustification string         `json:"trigger_justification,omitempty"`
	ValidationNote       string         `json:"validation_note,omitempty"`
	Status               string         `json:"status"`
}

// SupervisorState is the shared state for one graph invocation. The run loop
// owns it between ticks; during persona fan-out it is read-only and branch
// results come back as deltas merged by the reducers below.
type SupervisorState struct {
	RecentMessages      []Message                        `json:"recent_messages"`
	GroupMetadata       GroupMetadata                    `json:"group_metadata"`
	GroupSentiment      string                           `json:"group_sentiment"`
	SelectedActions     []SelectedAction                 `json:"selected_actions"`
	ExecutionQueue      []QueueItem                      `json:"execution_queue"`
	AgentsRecentActions map[string][]ActionRecord        `json:"agents_recent_actions"`
	PersonalityCache    map[string]map[string]TraitScore `json:"personality_analysis"`
}

// CloneMessages deep-copies the message window so a persona branch can hold
// it without racing annotation passes.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		c := m
		if m.Emotion != nil {
			e := *m.Emotion
			c.Emotion = &e
		}
		if m.Personality != nil {
			p := make(map[string]TraitScore, len(m.Personality))
			for k, v := range m.Personality {
				p[k] = v
			}
			c.Personality = p
		}
		if m.Reactions != nil {
			rs := make([]Reaction, len(m.Reactions))
			for j, r := range m.Reactions {
				cr := r
				if r.Users != nil {
					cr.Users = append([]string(nil), r.Users...)
				}
				rs[j] = cr
			}
			c.Reactions = rs
		}
		out[i] = c
	}
	return out
}
