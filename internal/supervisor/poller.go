// Package supervisor owns the per-chat run loop and the graph it drives:
// polling, emotion and personality analysis, persona fan-out, scheduling,
// the human-approval gate, and execution.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/bridge"
	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// ringCapacity is how many message ids the dedup ring remembers. A message
// id can only resurface after 1000 newer distinct ids pushed it out.
const ringCapacity = 1000

// idRing is a FIFO set of recently seen message ids. Owned by the run loop;
// not safe for concurrent use.
type idRing struct {
	order []string
	set   map[string]struct{}
}

func newIDRing() *idRing {
	return &idRing{set: make(map[string]struct{}, ringCapacity)}
}

func (r *idRing) Contains(id string) bool {
	_, ok := r.set[id]
	return ok
}

func (r *idRing) Add(id string) {
	if _, ok := r.set[id]; ok {
		return
	}
	if len(r.order) >= ringCapacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.set, oldest)
	}
	r.order = append(r.order, id)
	r.set[id] = struct{}{}
}

// Poller fetches chat messages and yields only ones not seen before.
type Poller struct {
	bridge *bridge.Client
	phone  string
	chatID string
	limit  int
	agents []*personas.Persona
	ring   *idRing
	log    *slog.Logger
}

func NewPoller(b *bridge.Client, phone, chatID string, limit int, agents []*personas.Persona) *Poller {
	if limit <= 0 {
		limit = 100
	}
	return &Poller{
		bridge: b,
		phone:  phone,
		chatID: chatID,
		limit:  limit,
		agents: agents,
		ring:   newIDRing(),
		log:    slog.Default().With("component", "poller"),
	}
}

// Prime seeds the ring with already known ids so a cold start does not
// re-process persisted history.
func (p *Poller) Prime(ids []string) {
	for _, id := range ids {
		p.ring.Add(id)
	}
}

// Poll fetches up to the configured limit and returns messages whose id is
// not in the ring, preserving the bridge's order. Agent-authored messages
// come back already marked processed.
func (p *Poller) Poll(ctx context.Context) ([]state.Message, error) {
	resp, err := p.bridge.ChatMessages(ctx, p.phone, p.chatID, p.limit)
	if err != nil {
		return nil, err
	}
	var out []state.Message
	for _, raw := range resp.Messages {
		m := p.Parse(raw)
		if p.ring.Contains(m.MessageID) {
			continue
		}
		p.ring.Add(m.MessageID)
		out = append(out, m)
	}
	if len(out) > 0 {
		p.log.Info("new messages", "count", len(out))
	}
	return out, nil
}

// Parse converts a bridge message into the internal representation. Messages
// without an id get a synthetic one from the date so dedup still works.
// Reaction user lists are filtered down to known persona names.
func (p *Poller) Parse(raw bridge.RawMessage) state.Message {
	id := raw.ID.String()
	if id == "" {
		id = "UNKNOWN_" + raw.Date
	}
	m := state.Message{
		MessageID:       id,
		SenderID:        raw.SenderID.String(),
		SenderUsername:  raw.SenderUsername,
		SenderFirstName: raw.SenderFirstName,
		SenderLastName:  raw.SenderLastName,
		Text:            raw.Text,
		Timestamp:       raw.Date,
		ReplyToID:       raw.ReplyToMessageID.String(),
	}
	if t, err := time.Parse(time.RFC3339, raw.Date); err == nil {
		m.Date = t.UTC()
	}
	for _, r := range raw.Reactions {
		reaction := state.Reaction{Emoji: r.Emoji, Count: r.Count}
		for _, u := range r.Users {
			name := personas.BuildDisplayName(u.FirstName, u.LastName, u.Username)
			if personas.MatchAgentName(name, p.agents) {
				reaction.Users = append(reaction.Users, name)
			}
		}
		m.Reactions = append(m.Reactions, reaction)
	}
	if personas.IsAgentMessage(&m, p.agents) {
		m.Processed = true
	}
	return m
}
