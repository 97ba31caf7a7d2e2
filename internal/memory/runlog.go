package memory

import (
	"path/filepath"
	"time"
)

// RunLog is the shutdown export of one supervisor run.
type RunLog struct {
	ChatID          string `json:"chat_id"`
	StartedAt       string `json:"started_at"`
	EndedAt         string `json:"ended_at"`
	Ticks           int    `json:"ticks"`
	MessagesSeen    int    `json:"messages_seen"`
	ActionsExecuted int    `json:"actions_executed"`
	ExitReason      string `json:"exit_reason,omitempty"`
}

// ExportRunLog writes a run summary under logs/runs/<chat_id>/.
func (s *Store) ExportRunLog(log RunLog) error {
	if log.EndedAt == "" {
		log.EndedAt = time.Now().Format(time.RFC3339)
	}
	name := time.Now().Format("20060102-150405") + ".json"
	return saveJSON(filepath.Join(s.logsDir, "runs", log.ChatID, name), log)
}
