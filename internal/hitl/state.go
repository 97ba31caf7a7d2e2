// Package hitl implements the human-approval IPC: two JSON files in a
// well-known directory. pending.json means the supervisor is suspended
// waiting for the operator; response.json carries the operator's decisions
// back. Both are deleted after consumption.
package hitl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	pendingFile  = "pending.json"
	responseFile = "response.json"
)

// PendingTarget describes the message a proposed action targets.
type PendingTarget struct {
	SenderName      string `json:"sender_name"`
	SenderFirstName string `json:"sender_first_name,omitempty"`
	SenderUsername  string `json:"sender_username,omitempty"`
	Text            string `json:"text"`
	Timestamp       string `json:"timestamp"`
	MessageID       string `json:"message_id,omitempty"`
}

// PendingMessage is one proposed action awaiting operator review.
type PendingMessage struct {
	AgentName            string         `json:"agent_name"`
	AgentType            string         `json:"agent_type"`
	ProposedMessage      string         `json:"proposed_message"`
	ActionID             string         `json:"action_id"`
	ActionPurpose        string         `json:"action_purpose"`
	TriggerID            string         `json:"trigger_id"`
	TriggerJustification string         `json:"trigger_justification"`
	PhoneNumber          string         `json:"phone_number"`
	Target               *PendingTarget `json:"target_message"`
}

// GroupInfo summarizes the chat for the approval UI.
type GroupInfo struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Members int    `json:"members"`
	Topic   string `json:"topic"`
}

// ContextMessage is a recent-window entry shown to the operator.
type ContextMessage struct {
	SenderName      string `json:"sender_name"`
	SenderFirstName string `json:"sender_first_name,omitempty"`
	SenderUsername  string `json:"sender_username,omitempty"`
	Text            string `json:"text"`
	Timestamp       string `json:"timestamp"`
	Emotion         string `json:"message_emotion,omitempty"`
}

// ApprovalRequest is the payload published on suspension.
type ApprovalRequest struct {
	PendingMessages []PendingMessage `json:"pending_messages"`
	GroupInfo       GroupInfo        `json:"group_info"`
	ContextMessages []ContextMessage `json:"context_messages"`
	TotalPending    int              `json:"total_pending"`
}

// Operator decision values.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Decision is one operator verdict, keyed by agent name.
type Decision struct {
	AgentName          string `json:"agent_name"`
	Decision           string `json:"decision"`
	EditedContent      string `json:"edited_content,omitempty"`
	RejectionReason    string `json:"rejection_reason,omitempty"`
	ReplacementMessage string `json:"replacement_message,omitempty"`
}

// OperatorResponse is the full response payload.
type OperatorResponse struct {
	Decisions []Decision `json:"decisions"`
}

type pendingEnvelope struct {
	Config struct {
		ThreadID string `json:"thread_id"`
	} `json:"config"`
	Data      ApprovalRequest `json:"data"`
	Timestamp string          `json:"timestamp"`
}

type responseEnvelope struct {
	Response  OperatorResponse `json:"response"`
	Timestamp string           `json:"timestamp"`
}

// State manages the two IPC files.
type State struct {
	dir string
}

func NewState(dir string) *State {
	return &State{dir: dir}
}

func (s *State) Dir() string          { return s.dir }
func (s *State) pendingPath() string  { return filepath.Join(s.dir, pendingFile) }
func (s *State) responsePath() string { return filepath.Join(s.dir, responseFile) }

// SetPending publishes an approval request and clears any stale response.
func (s *State) SetPending(threadID string, req ApprovalRequest) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create hitl dir: %w", err)
	}
	if err := removeIfExists(s.responsePath()); err != nil {
		return err
	}

	env := pendingEnvelope{Data: req, Timestamp: time.Now().Format(time.RFC3339)}
	env.Config.ThreadID = threadID
	return writeJSON(s.pendingPath(), env)
}

// Pending returns the published request and its thread id, or ok=false.
func (s *State) Pending() (threadID string, req *ApprovalRequest, ok bool, err error) {
	var env pendingEnvelope
	found, err := readJSON(s.pendingPath(), &env)
	if err != nil || !found {
		return "", nil, false, err
	}
	return env.Config.ThreadID, &env.Data, true, nil
}

// SetResponse writes the operator's decisions. Used by the approval UI and
// by tests.
func (s *State) SetResponse(resp OperatorResponse) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create hitl dir: %w", err)
	}
	return writeJSON(s.responsePath(), responseEnvelope{
		Response:  resp,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Response returns the operator's decisions, or ok=false when absent.
func (s *State) Response() (*OperatorResponse, bool, error) {
	var env responseEnvelope
	found, err := readJSON(s.responsePath(), &env)
	if err != nil || !found {
		return nil, false, err
	}
	return &env.Response, true, nil
}

// Clear removes both IPC files.
func (s *State) Clear() error {
	if err := removeIfExists(s.pendingPath()); err != nil {
		return err
	}
	return removeIfExists(s.responsePath())
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "hitl-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()
	return os.Rename(tmpPath, path)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
