package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/bridge"
	"github.com/nextlevelbuilder/ensemble/internal/config"
	"github.com/nextlevelbuilder/ensemble/internal/memory"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// Typing indicator bounds.
const (
	typingPerRune = 100 * time.Millisecond
	typingMin     = 2 * time.Second
	typingMax     = 8 * time.Second
)

// Executor dispatches the pending queue through the bridge: reactions to the
// reactions endpoint, everything else as (possibly reply) messages preceded
// by a typing indicator. Sends are at-most-once; failures drop the item.
type Executor struct {
	bridge *bridge.Client
	mem    *memory.Store
	chatID string
	cfg    *config.Config
	log    *slog.Logger

	// sleep is swappable in tests; production uses time.Sleep.
	sleep func(time.Duration)
}

func NewExecutor(b *bridge.Client, mem *memory.Store, chatID string, cfg *config.Config) *Executor {
	return &Executor{
		bridge: b,
		mem:    mem,
		chatID: chatID,
		cfg:    cfg,
		log:    slog.Default().With("component", "executor"),
		sleep:  time.Sleep,
	}
}

// Execute processes the queue in order and returns how many dispatches
// succeeded. Every pending item is consumed whether or not its send worked
// and the queue ends empty; consecutive sends are separated by the
// configured cooldown.
func (e *Executor) Execute(ctx context.Context, st *state.SupervisorState) int {
	newest := newestTimestamp(st.RecentMessages)
	cooldown := time.Duration(e.cfg.Polling.SendCooldownSeconds) * time.Second

	executed := 0
	for i := range st.ExecutionQueue {
		item := &st.ExecutionQueue[i]
		if item.Status != state.QueuePending {
			continue
		}
		if executed > 0 && cooldown > 0 {
			e.log.Info("cooldown between sends", "duration", cooldown)
			e.sleep(cooldown)
		}

		var ok bool
		if item.ActionID == state.ActionAddReaction {
			ok = e.sendReaction(ctx, item)
		} else {
			ok = e.sendMessage(ctx, item, newest)
		}
		item.Status = state.QueueSent
		if !ok {
			continue
		}
		executed++

		rec := state.ActionRecord{
			TriggerID:            item.TriggerID,
			TriggerJustification: item.TriggerJustification,
			Target:               item.Target,
			ActionID:             item.ActionID,
			ActionPurpose:        item.ActionPurpose,
			ActionContent:        item.ActionContent,
		}
		if err := e.mem.AppendAction(e.chatID, item.AgentName, rec); err != nil {
			e.log.Warn("recording action failed", "agent", item.AgentName, "error", err)
		}
	}
	st.ExecutionQueue = nil
	return executed
}

// sendReaction requires a target timestamp; without one there is nothing to
// react to and the item is dropped.
func (e *Executor) sendReaction(ctx context.Context, item *state.QueueItem) bool {
	if item.Target == nil || item.Target.Timestamp == "" {
		e.log.Warn("reaction without target timestamp, dropping", "agent", item.AgentName)
		return false
	}
	req := bridge.ReactionRequest{
		Phone:            item.PhoneNumber,
		ChatID:           e.chatID,
		MessageTimestamp: toBridgeTimestamp(item.Target.Timestamp),
		Emoji:            item.ActionContent,
	}
	if err := e.bridge.AddReaction(ctx, req); err != nil {
		e.log.Error("reaction failed", "agent", item.AgentName, "error", err)
		return false
	}
	e.log.Info("reaction sent", "agent", item.AgentName, "emoji", item.ActionContent)
	return true
}

func (e *Executor) sendMessage(ctx context.Context, item *state.QueueItem, newest string) bool {
	req := bridge.SendRequest{
		FromPhone: item.PhoneNumber,
		ToTarget:  e.chatID,
		Content:   bridge.SendContent{Type: "text", Value: item.ActionContent},
	}
	// reply only when the target is not the newest message; replying to the
	// message right above reads as noise
	if item.Target != nil && item.Target.Timestamp != "" && item.Target.Timestamp != newest {
		req.ReplyToTimestamp = toBridgeTimestamp(item.Target.Timestamp)
	}

	duration := typingDuration(item.ActionContent)
	durationMS := int(duration / time.Millisecond)
	if err := e.bridge.ShowTyping(ctx, item.PhoneNumber, e.chatID, durationMS); err != nil {
		e.log.Warn("typing indicator failed", "agent", item.AgentName, "error", err)
	}
	e.sleep(time.Duration(float64(durationMS) / 750 * float64(time.Second)))

	if err := e.bridge.SendMessage(ctx, req); err != nil {
		e.log.Error("send failed", "agent", item.AgentName, "error", err)
		return false
	}
	e.log.Info("message sent", "agent", item.AgentName, "reply", req.ReplyToTimestamp != "")
	return true
}

// typingDuration scales with message length, clamped to [2s, 8s].
func typingDuration(content string) time.Duration {
	d := time.Duration(len([]rune(content))) * typingPerRune
	if d < typingMin {
		return typingMin
	}
	if d > typingMax {
		return typingMax
	}
	return d
}

// newestTimestamp is the local timestamp of the most recent window message.
func newestTimestamp(msgs []state.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return windowTimestamp(&msgs[0])
}

// toBridgeTimestamp converts a local "2006-01-02 15:04:05" timestamp to the
// ISO form with milliseconds the bridge expects. Already ISO or unparseable
// values pass through best-effort.
func toBridgeTimestamp(ts string) string {
	if t, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
		return t.Format("2006-01-02T15:04:05.000Z")
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	return ts
}
