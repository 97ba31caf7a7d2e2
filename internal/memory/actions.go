package memory

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/state"
)

func (s *Store) actionsPath(chatID, agentName string) string {
	return filepath.Join(s.groupDir(chatID), "actions", agentName+".json")
}

// AppendAction records an executed action for an agent. A missing timestamp
// is filled with the current time.
func (s *Store) AppendAction(chatID, agentName string, rec state.ActionRecord) error {
	var records []state.ActionRecord
	if _, err := loadJSON(s.actionsPath(chatID, agentName), &records); err != nil {
		return err
	}
	if rec.ActionTimestamp == "" {
		rec.ActionTimestamp = time.Now().Format(time.RFC3339)
	}
	records = append(records, rec)
	return saveJSON(s.actionsPath(chatID, agentName), records)
}

// RecentActions returns up to limit of the agent's actions, most recent
// first. limit <= 0 returns everything.
func (s *Store) RecentActions(chatID, agentName string, limit int) ([]state.ActionRecord, error) {
	var records []state.ActionRecord
	if _, err := loadJSON(s.actionsPath(chatID, agentName), &records); err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ActionTimestamp > records[j].ActionTimestamp
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
