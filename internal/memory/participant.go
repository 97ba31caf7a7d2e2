package memory

import (
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// Snapshot is one personality analysis result for a participant.
type Snapshot struct {
	AnalysisDate          string              `json:"analysis_date"`
	MessagesAnalyzedCount int                 `json:"messages_analyzed_count"`
	PersonalityAnalysis   PersonalityAnalysis `json:"personality_analysis"`
	OverallConfidence     float64             `json:"overall_confidence"`
}

type PersonalityAnalysis struct {
	Big5 map[string]state.TraitScore `json:"big5"`
}

// Participant is the per-user personality file. Snapshots are newest-first.
type Participant struct {
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Snapshots []Snapshot `json:"personality_snapshots"`
}

func (s *Store) participantPath(chatID, userID string) string {
	return filepath.Join(s.groupDir(chatID), "participant", userID+".json")
}

// Participant loads a participant file, or nil when absent.
func (s *Store) Participant(chatID, userID string) (*Participant, error) {
	var p Participant
	ok, err := loadJSON(s.participantPath(chatID, userID), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// LatestSnapshot returns the participant's newest snapshot big5, or nil.
func (s *Store) LatestSnapshot(chatID, userID string) (map[string]state.TraitScore, error) {
	p, err := s.Participant(chatID, userID)
	if err != nil || p == nil || len(p.Snapshots) == 0 {
		return nil, err
	}
	return p.Snapshots[0].PersonalityAnalysis.Big5, nil
}

// SaveSnapshot prepends a new personality snapshot for the user. Overall
// confidence is the mean trait confidence, rounded to two decimals.
func (s *Store) SaveSnapshot(chatID, userID, username string, big5 map[string]state.TraitScore, messageCount int) (float64, error) {
	p, err := s.Participant(chatID, userID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		p = &Participant{UserID: userID, Username: username}
	}
	if username != "" {
		p.Username = username
	}

	var sum float64
	for _, t := range big5 {
		sum += t.Confidence
	}
	overall := 0.5
	if len(big5) > 0 {
		overall = float64(int(sum/float64(len(big5))*100+0.5)) / 100
	}

	snap := Snapshot{
		AnalysisDate:          time.Now().Format("2006-01-02 15:04:05"),
		MessagesAnalyzedCount: messageCount,
		PersonalityAnalysis:   PersonalityAnalysis{Big5: big5},
		OverallConfidence:     overall,
	}
	p.Snapshots = append([]Snapshot{snap}, p.Snapshots...)

	if err := saveJSON(s.participantPath(chatID, userID), p); err != nil {
		return 0, err
	}
	return overall, nil
}
