package memory

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// GroupMetadata is the persisted group record plus sync state.
type GroupMetadata struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Topic         string `json:"topic"`
	Members       int    `json:"members"`
	CreatedAt     string `json:"created_at,omitempty"`
	LastSync      string `json:"last_sync,omitempty"`
	LastMessageID string `json:"last_message_id,omitempty"`
	TotalMessages int    `json:"total_messages"`
}

func (s *Store) metadataPath(chatID string) string {
	return filepath.Join(s.groupDir(chatID), "group_metadata.json")
}

func (s *Store) historyPath(chatID string) string {
	return filepath.Join(s.groupDir(chatID), "group_history.json")
}

// SaveGroupMetadata merges updates into the stored metadata. CreatedAt is
// set once, on first write.
func (s *Store) SaveGroupMetadata(chatID string, meta GroupMetadata) error {
	var existing GroupMetadata
	if _, err := loadJSON(s.metadataPath(chatID), &existing); err != nil {
		return err
	}
	if existing.CreatedAt != "" {
		meta.CreatedAt = existing.CreatedAt
	} else if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().Format(time.RFC3339)
	}
	if meta.LastMessageID == "" {
		meta.LastMessageID = existing.LastMessageID
	}
	if meta.TotalMessages == 0 {
		meta.TotalMessages = existing.TotalMessages
	}
	return saveJSON(s.metadataPath(chatID), meta)
}

// GroupMetadata returns the stored metadata, if any.
func (s *Store) GroupMetadata(chatID string) (*GroupMetadata, error) {
	var meta GroupMetadata
	ok, err := loadJSON(s.metadataPath(chatID), &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// SaveGroupMessages merges new messages into the group history, deduplicating
// by message id and keeping newest-first order. Existing entries win so
// accumulated emotion annotations are not overwritten by raw re-fetches.
// Sync state on the metadata file is refreshed. Returns the number of
// messages that were actually new.
func (s *Store) SaveGroupMessages(chatID string, msgs []state.Message) (int, error) {
	var existing []state.Message
	if _, err := loadJSON(s.historyPath(chatID), &existing); err != nil {
		return 0, err
	}

	seen := make(map[string]int, len(existing))
	for i, m := range existing {
		seen[m.MessageID] = i
	}

	newCount := 0
	for _, m := range msgs {
		if m.MessageID == "" {
			continue
		}
		if i, ok := seen[m.MessageID]; ok {
			// refresh annotations when the incoming copy carries them
			if m.Emotion != nil && existing[i].Emotion == nil {
				existing[i].Emotion = m.Emotion
			}
			continue
		}
		existing = append(existing, m)
		seen[m.MessageID] = len(existing) - 1
		newCount++
	}

	sort.SliceStable(existing, func(i, j int) bool {
		return existing[i].Date.After(existing[j].Date)
	})

	if err := saveJSON(s.historyPath(chatID), existing); err != nil {
		return 0, err
	}

	var meta GroupMetadata
	if _, err := loadJSON(s.metadataPath(chatID), &meta); err != nil {
		return 0, err
	}
	meta.LastSync = time.Now().Format(time.RFC3339)
	if len(existing) > 0 {
		meta.LastMessageID = existing[0].MessageID
	}
	meta.TotalMessages = len(existing)
	if err := saveJSON(s.metadataPath(chatID), meta); err != nil {
		return 0, err
	}

	return newCount, nil
}

// GroupMessages returns up to limit stored messages, newest-first.
// limit <= 0 returns everything.
func (s *Store) GroupMessages(chatID string, limit int) ([]state.Message, error) {
	var msgs []state.Message
	if _, err := loadJSON(s.historyPath(chatID), &msgs); err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// UpdateMessageEmotions persists emotion annotations onto stored history
// entries so they survive restarts.
func (s *Store) UpdateMessageEmotions(chatID string, msgs []state.Message) error {
	var existing []state.Message
	ok, err := loadJSON(s.historyPath(chatID), &existing)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	byID := make(map[string]*state.Emotion, len(msgs))
	for i := range msgs {
		if msgs[i].Emotion != nil {
			byID[msgs[i].MessageID] = msgs[i].Emotion
		}
	}

	changed := false
	for i := range existing {
		if e, ok := byID[existing[i].MessageID]; ok && existing[i].Emotion == nil {
			existing[i].Emotion = e
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return saveJSON(s.historyPath(chatID), existing)
}

// CountUserMessages counts history entries sent by the given user id.
func (s *Store) CountUserMessages(chatID, userID string) (int, error) {
	var msgs []state.Message
	if _, err := loadJSON(s.historyPath(chatID), &msgs); err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.SenderID == userID {
			n++
		}
	}
	return n, nil
}
