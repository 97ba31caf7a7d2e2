package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/ensemble/internal/bridge"
	"github.com/nextlevelbuilder/ensemble/internal/config"
	"github.com/nextlevelbuilder/ensemble/internal/hitl"
	"github.com/nextlevelbuilder/ensemble/internal/memory"
	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// idleLogEvery limits how often the loop announces that nothing happened.
const idleLogEvery = 30 * time.Second

// Supervisor owns one chat: it polls for messages, drives the pipeline when
// there is something new, and keeps the persisted memory in sync.
type Supervisor struct {
	cfg       *config.Config
	bridge    *bridge.Client
	mem       *memory.Store
	pipeline  *Pipeline
	poller    *Poller
	approvals *hitl.State
	agents    []personas.AgentConfig
	roster    []*personas.Persona
	phone     string
	chatID    string
	log       *slog.Logger

	st        state.SupervisorState
	ticks     int
	seenCount int
	executed  int
	startedAt time.Time
}

// NewSupervisor wires a supervisor for the configured chat. The first
// persona's phone number is the identity used for read-side bridge calls.
func NewSupervisor(
	cfg *config.Config,
	b *bridge.Client,
	mem *memory.Store,
	pipeline *Pipeline,
	approvals *hitl.State,
	agents []personas.AgentConfig,
) (*Supervisor, error) {
	if len(agents) == 0 {
		return nil, errors.New("no agents configured")
	}
	roster := personas.Personas(agents)
	phone := roster[0].PhoneNumber
	if phone == "" {
		return nil, fmt.Errorf("agent %s has no phone number", agents[0].Name)
	}
	chatID := cfg.Telegram.ChatID
	if chatID == "" {
		return nil, errors.New("telegram.chat_id not configured")
	}
	return &Supervisor{
		cfg:       cfg,
		bridge:    b,
		mem:       mem,
		pipeline:  pipeline,
		poller:    NewPoller(b, phone, chatID, cfg.Polling.TelegramFetchLimit, roster),
		approvals: approvals,
		agents:    agents,
		roster:    roster,
		phone:     phone,
		chatID:    chatID,
		log:       slog.Default().With("component", "supervisor", "chat", chatID),
	}, nil
}

// Run performs the cold start and then ticks until the context is canceled.
// A run-log summary is exported on the way out.
func (s *Supervisor) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	exitReason := "context canceled"
	defer func() {
		if err := s.mem.ExportRunLog(memory.RunLog{
			ChatID:          s.chatID,
			StartedAt:       s.startedAt.Format(time.RFC3339),
			Ticks:           s.ticks,
			MessagesSeen:    s.seenCount,
			ActionsExecuted: s.executed,
			ExitReason:      exitReason,
		}); err != nil {
			s.log.Warn("exporting run log failed", "error", err)
		}
	}()

	if err := s.coldStart(ctx); err != nil {
		exitReason = err.Error()
		return err
	}

	wait := s.pollWait(false)
	lastIdleLog := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		s.ticks++

		fresh, err := s.poller.Poll(ctx)
		if err != nil {
			s.log.Warn("poll failed, skipping tick", "error", err)
			wait = s.pollWait(false)
			continue
		}
		if len(fresh) == 0 {
			wait = s.pollWait(true)
			if time.Since(lastIdleLog) >= idleLogEvery {
				s.log.Info("idle", "window", len(s.st.RecentMessages), "ticks", s.ticks)
				lastIdleLog = time.Now()
			}
			continue
		}
		wait = s.pollWait(false)

		s.seenCount += len(fresh)
		if _, err := s.mem.SaveGroupMessages(s.chatID, fresh); err != nil {
			s.log.Warn("persisting messages failed", "error", err)
		}
		s.ingest(fresh)

		if hasUnprocessed(s.st.RecentMessages) {
			s.invokeTick(ctx)
		}
		s.trimWindow()
	}
}

// coldStart primes state from the bridge and disk before the first tick.
func (s *Supervisor) coldStart(ctx context.Context) error {
	if info, err := s.bridge.Participants(ctx, s.phone, s.chatID); err != nil {
		s.log.Warn("fetching participants failed, using stored metadata", "error", err)
		if meta, _ := s.mem.GroupMetadata(s.chatID); meta != nil {
			s.st.GroupMetadata = state.GroupMetadata{ID: meta.ID, Name: meta.Name, Topic: meta.Topic, Members: meta.Members}
		} else {
			s.st.GroupMetadata = state.GroupMetadata{ID: s.chatID}
		}
	} else {
		s.st.GroupMetadata = state.GroupMetadata{
			ID:      s.chatID,
			Name:    info.ChatTitle,
			Topic:   info.ChatDescription,
			Members: info.ParticipantsCount,
		}
		if err := s.mem.SaveGroupMetadata(s.chatID, memory.GroupMetadata{
			ID:      s.chatID,
			Name:    info.ChatTitle,
			Topic:   info.ChatDescription,
			Members: info.ParticipantsCount,
		}); err != nil {
			s.log.Warn("saving group metadata failed", "error", err)
		}
	}

	resp, err := s.bridge.ChatMessages(ctx, s.phone, s.chatID, s.cfg.Polling.TelegramFetchLimit)
	if err != nil {
		return fmt.Errorf("initial fetch: %w", err)
	}
	initial := make([]state.Message, 0, len(resp.Messages))
	for _, raw := range resp.Messages {
		initial = append(initial, s.poller.Parse(raw))
	}
	if _, err := s.mem.SaveGroupMessages(s.chatID, initial); err != nil {
		s.log.Warn("persisting initial history failed", "error", err)
	}

	// load back from disk so persisted emotion annotations survive restarts
	window, err := s.mem.GroupMessages(s.chatID, s.cfg.Polling.MaxRecentMessages)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	ids := make([]string, 0, len(window))
	for i := range window {
		ids = append(ids, window[i].MessageID)
		if personas.IsAgentMessage(&window[i], s.roster) {
			window[i].Processed = true
		}
	}
	s.poller.Prime(ids)
	s.st.RecentMessages = window

	s.st.AgentsRecentActions = make(map[string][]state.ActionRecord, len(s.agents))
	for _, ac := range s.agents {
		records, err := s.mem.RecentActions(s.chatID, ac.Name, s.cfg.Polling.MaxInitialActionsPerAgent)
		if err != nil {
			s.log.Warn("loading action history failed", "agent", ac.Name, "error", err)
			continue
		}
		if len(records) > 0 {
			s.st.AgentsRecentActions[ac.Name] = records
		}
	}

	s.log.Info("cold start complete",
		"window", len(s.st.RecentMessages),
		"group", s.st.GroupMetadata.Name)

	if hasUnprocessed(s.st.RecentMessages) {
		s.invokeTick(ctx)
		s.trimWindow()
	}
	return nil
}

// ingest prepends new messages, keeping the window newest-first.
func (s *Supervisor) ingest(fresh []state.Message) {
	s.st.RecentMessages = append(fresh, s.st.RecentMessages...)
	sort.SliceStable(s.st.RecentMessages, func(i, j int) bool {
		return s.st.RecentMessages[i].Date.After(s.st.RecentMessages[j].Date)
	})
}

// invokeTick runs the pipeline once, waiting out an approval suspension when
// the gate triggers, then persists the emotion annotations the tick added.
func (s *Supervisor) invokeTick(ctx context.Context) {
	threadID := uuid.NewString()
	out, err := s.pipeline.Invoke(ctx, threadID, &s.st)
	if err != nil {
		s.log.Error("tick failed", "thread", threadID, "error", err)
		return
	}
	if out.Suspended {
		s.log.Info("waiting for operator", "thread", threadID)
		pollInterval := time.Duration(s.cfg.HITL.PollIntervalSeconds) * time.Second
		resp, err := s.approvals.WaitForResponse(ctx, pollInterval)
		if err != nil {
			s.log.Warn("approval wait aborted", "thread", threadID, "error", err)
			return
		}
		resumed, resumeOut, err := s.pipeline.Resume(ctx, threadID, resp)
		if err != nil {
			s.log.Error("resume failed", "thread", threadID, "error", err)
			return
		}
		s.st = *resumed
		out = resumeOut
	}
	s.executed += out.Executed

	if err := s.mem.UpdateMessageEmotions(s.chatID, s.st.RecentMessages); err != nil {
		s.log.Warn("persisting emotions failed", "error", err)
	}
}

// pollWait is how long to sleep before the next poll. A chat that yielded
// nothing on the last poll backs off to the idle interval.
func (s *Supervisor) pollWait(idle bool) time.Duration {
	interval := time.Duration(s.cfg.Polling.MessageCheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if idle && s.cfg.Polling.IdleSleepSeconds > 0 {
		return time.Duration(s.cfg.Polling.IdleSleepSeconds) * time.Second
	}
	return interval
}

// trimWindow enforces the window bound in exactly one place.
func (s *Supervisor) trimWindow() {
	max := s.cfg.Polling.MaxRecentMessages
	if max > 0 && len(s.st.RecentMessages) > max {
		s.st.RecentMessages = s.st.RecentMessages[:max]
	}
}

func hasUnprocessed(msgs []state.Message) bool {
	for i := range msgs {
		if !msgs[i].Processed {
			return true
		}
	}
	return false
}
