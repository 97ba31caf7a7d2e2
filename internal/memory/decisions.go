package memory

import (
	"path/filepath"
	"time"
)

// DecisionEntry is one logged operator decision.
type DecisionEntry struct {
	Timestamp          string `json:"timestamp"`
	OperatorName       string `json:"operator_name,omitempty"`
	AgentName          string `json:"agent_name"`
	Message            string `json:"message"`
	GroupName          string `json:"group_name,omitempty"`
	TriggerID          string `json:"trigger_id,omitempty"`
	ActionID           string `json:"action_id,omitempty"`
	RejectionReason    string `json:"rejection_reason,omitempty"`
	ReplacementMessage string `json:"replacement_message,omitempty"`
}

// DecisionLog groups decisions by outcome.
type DecisionLog struct {
	Approved []DecisionEntry `json:"approved"`
	Rejected []DecisionEntry `json:"rejected"`
}

func (s *Store) decisionsPath(groupID string) string {
	return filepath.Join(s.logsDir, "operator_decisions", groupID, "decisions.json")
}

// LogDecision appends an operator decision to the group's decision log.
// Both approvals and rejections are recorded.
func (s *Store) LogDecision(groupID string, approved bool, entry DecisionEntry) error {
	var log DecisionLog
	if _, err := loadJSON(s.decisionsPath(groupID), &log); err != nil {
		return err
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().Format(time.RFC3339)
	}
	if approved {
		log.Approved = append(log.Approved, entry)
	} else {
		log.Rejected = append(log.Rejected, entry)
	}
	return saveJSON(s.decisionsPath(groupID), &log)
}

// Decisions returns the group's decision log.
func (s *Store) Decisions(groupID string) (*DecisionLog, error) {
	var log DecisionLog
	if _, err := loadJSON(s.decisionsPath(groupID), &log); err != nil {
		return nil, err
	}
	return &log, nil
}
