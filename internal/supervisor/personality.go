package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/ensemble/internal/config"
	"github.com/nextlevelbuilder/ensemble/internal/memory"
	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/prompt"
	"github.com/nextlevelbuilder/ensemble/internal/providers"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

const personalityNode = "personality_analysis"

// big5Traits are the five analysis dimensions; one concurrent LLM call each.
var big5Traits = []struct {
	Name        string
	Description string
}{
	{"openness", "curiosity, imagination, openness to new ideas and experiences"},
	{"conscientiousness", "organization, reliability, self-discipline, goal orientation"},
	{"extraversion", "sociability, assertiveness, energy drawn from interaction"},
	{"agreeableness", "warmth, cooperativeness, trust, concern for others"},
	{"neuroticism", "emotional volatility, anxiety, sensitivity to stress"},
}

// nameAnnotation strips parenthesized decorations the model sometimes echoes
// back from the transcript, e.g. "Maya Chen (Agent)" -> "Maya Chen".
var nameAnnotation = regexp.MustCompile(`\s*\([^)]*\)\s*`)

// PersonalityAnalyzer maintains rolling Big-Five assessments of human
// participants, persisted as per-user snapshot files.
type PersonalityAnalyzer struct {
	llm    providers.Client
	cfg    *config.Config
	mem    *memory.Store
	agents []*personas.Persona
	chatID string
	log    *slog.Logger
}

func NewPersonalityAnalyzer(llm providers.Client, cfg *config.Config, mem *memory.Store, agents []*personas.Persona, chatID string) *PersonalityAnalyzer {
	return &PersonalityAnalyzer{
		llm:    llm,
		cfg:    cfg,
		mem:    mem,
		agents: agents,
		chatID: chatID,
		log:    slog.Default().With("component", "personality"),
	}
}

type analysisUser struct {
	userID      string
	username    string
	displayName string
	previous    map[string]state.TraitScore
}

type traitResult struct {
	trait  string
	scores map[string]state.TraitScore // keyed by display name
}

// Analyze assesses users who authored unprocessed messages this tick,
// updates the in-state cache and the on-disk snapshots, and attaches each
// sender's latest assessment to their messages.
func (a *PersonalityAnalyzer) Analyze(ctx context.Context, st *state.SupervisorState) {
	if st.PersonalityCache == nil {
		st.PersonalityCache = make(map[string]map[string]state.TraitScore)
	}

	users := a.selectUsers(st)
	if len(users) > 0 {
		a.assess(ctx, st, users)
	}
	a.attach(st)
}

// selectUsers picks the humans worth analyzing this tick: authors of
// unprocessed messages, minus agents, minus users already assessed with
// high confidence on every trait.
func (a *PersonalityAnalyzer) selectUsers(st *state.SupervisorState) []analysisUser {
	byID := make(map[string]analysisUser)
	for i := range st.RecentMessages {
		m := &st.RecentMessages[i]
		if m.Processed || m.SenderID == "" {
			continue
		}
		if personas.IsAgentMessage(m, a.agents) {
			continue
		}
		if _, ok := byID[m.SenderID]; ok {
			continue
		}
		byID[m.SenderID] = analysisUser{
			userID:      m.SenderID,
			username:    m.SenderUsername,
			displayName: m.DisplayName(),
		}
	}

	users := make([]analysisUser, 0, len(byID))
	for _, u := range byID {
		prev, err := a.mem.LatestSnapshot(a.chatID, u.userID)
		if err != nil {
			a.log.Warn("loading snapshot failed", "user", u.userID, "error", err)
		}
		u.previous = prev
		if prev != nil && a.cfg.Personality.StopReanalysisWhenConfident && a.isConfident(prev) {
			// keep the settled assessment available for attachment
			st.PersonalityCache[u.userID] = prev
			continue
		}
		users = append(users, u)
	}
	return users
}

// isConfident reports whether every trait meets its configured threshold.
func (a *PersonalityAnalyzer) isConfident(big5 map[string]state.TraitScore) bool {
	for _, trait := range big5Traits {
		score, ok := big5[trait.Name]
		if !ok {
			return false
		}
		threshold, ok := a.cfg.Personality.ConfidenceThresholds[trait.Name]
		if !ok {
			threshold = 0.8
		}
		if score.Confidence < threshold {
			return false
		}
	}
	return true
}

func (a *PersonalityAnalyzer) assess(ctx context.Context, st *state.SupervisorState, users []analysisUser) {
	conversation := prompt.FormatConversation(st.RecentMessages, prompt.FormatOptions{
		IncludeTimestamp: true,
		MarkNew:          true,
		Agents:           a.agents,
	})
	constraints := a.constraints(users)
	existing := a.existingAnalysis(users)

	timeout := time.Duration(a.cfg.Personality.TraitTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	results := make(chan traitResult, len(big5Traits))
	var wg sync.WaitGroup
	for _, trait := range big5Traits {
		wg.Add(1)
		go func(name, description string) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			scores, err := a.assessTrait(callCtx, name, description, conversation, constraints, existing[name])
			if err != nil {
				a.log.Warn("trait assessment failed", "trait", name, "error", err)
				scores = map[string]state.TraitScore{}
			}
			results <- traitResult{trait: name, scores: scores}
		}(trait.Name, trait.Description)
	}
	wg.Wait()
	close(results)

	byTrait := make(map[string]map[string]state.TraitScore, len(big5Traits))
	for r := range results {
		byTrait[r.trait] = r.scores
	}

	for _, u := range users {
		a.mergeUser(st, u, byTrait)
	}
}

// mergeUser assembles a user's five traits from the per-trait results,
// falling back to the previous snapshot for failed traits, then applies the
// message-count policies and persists.
func (a *PersonalityAnalyzer) mergeUser(st *state.SupervisorState, u analysisUser, byTrait map[string]map[string]state.TraitScore) {
	big5 := make(map[string]state.TraitScore, len(big5Traits))
	for _, trait := range big5Traits {
		score, ok := lookupScore(byTrait[trait.Name], u.displayName)
		if !ok {
			prev, hasPrev := u.previous[trait.Name]
			if !hasPrev {
				a.log.Warn("skipping user: trait missing with no fallback",
					"user", u.displayName, "trait", trait.Name)
				return
			}
			score = prev
		}
		big5[trait.Name] = score
	}

	count, err := a.mem.CountUserMessages(a.chatID, u.userID)
	if err != nil {
		a.log.Warn("counting user messages failed", "user", u.userID, "error", err)
	}

	if count < a.cfg.Personality.MinMessagesForAnalysis {
		a.log.Info("too few messages to save snapshot",
			"user", u.displayName, "count", count)
		if u.previous != nil {
			st.PersonalityCache[u.userID] = u.previous
		}
		return
	}

	a.applyPenalty(big5, count)

	overall, err := a.mem.SaveSnapshot(a.chatID, u.userID, u.username, big5, count)
	if err != nil {
		a.log.Error("saving snapshot failed", "user", u.userID, "error", err)
		return
	}
	a.log.Info("personality snapshot saved",
		"user", u.displayName, "messages", count, "overall_confidence", overall)
	st.PersonalityCache[u.userID] = big5
}

// applyPenalty discounts confidence for thin evidence:
// adjusted = max(0, raw - (min - count) * factor). The raw value is kept.
func (a *PersonalityAnalyzer) applyPenalty(big5 map[string]state.TraitScore, count int) {
	p := a.cfg.Personality.Penalty
	if !p.Enabled || count >= p.MinMessagesFullConfidence {
		return
	}
	penalty := float64(p.MinMessagesFullConfidence-count) * p.PenaltyFactor
	for name, score := range big5 {
		raw := score.Confidence
		adjusted := raw - penalty
		if adjusted < 0 {
			adjusted = 0
		}
		score.RawConfidence = raw
		score.Confidence = adjusted
		big5[name] = score
	}
}

func (a *PersonalityAnalyzer) attach(st *state.SupervisorState) {
	for i := range st.RecentMessages {
		m := &st.RecentMessages[i]
		if big5, ok := st.PersonalityCache[m.SenderID]; ok {
			m.Personality = big5
		}
	}
}

func (a *PersonalityAnalyzer) constraints(users []analysisUser) string {
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.displayName
	}
	var b strings.Builder
	b.WriteString("- Analyze ONLY these users: " + strings.Join(names, ", ") + "\n")
	if agents := personas.AgentDisplayNames(a.agents); len(agents) > 0 {
		b.WriteString("- Do NOT analyze these participants (they are out of scope): " +
			strings.Join(agents, ", ") + "\n")
	}
	b.WriteString("- Use the exact display names above as JSON keys.")
	return b.String()
}

// existingAnalysis renders, per trait, the prior scores of users that have a
// previous snapshot so the model updates instead of restarting.
func (a *PersonalityAnalyzer) existingAnalysis(users []analysisUser) map[string]string {
	out := make(map[string]string, len(big5Traits))
	for _, trait := range big5Traits {
		var b strings.Builder
		for _, u := range users {
			prev, ok := u.previous[trait.Name]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "- %s: score %d, confidence %.2f — %s\n",
				u.displayName, prev.Score, prev.Confidence, prev.Justification)
		}
		if b.Len() == 0 {
			out[trait.Name] = "No previous analysis for these users."
		} else {
			out[trait.Name] = "Previous analysis:\n" + b.String()
		}
	}
	return out
}

func (a *PersonalityAnalyzer) assessTrait(ctx context.Context, name, description, conversation, constraints, existing string) (map[string]state.TraitScore, error) {
	text := prompt.MustRender("personality_trait", map[string]string{
		"trait_name":        name,
		"trait_description": description,
		"CONVERSATION":      conversation,
		"CONSTRAINTS":       constraints,
		"EXISTING_ANALYSIS": existing,
	})
	ns := a.cfg.NodeSettings(personalityNode)
	completion, err := a.llm.Complete(ctx, providers.CompletionRequest{
		Prompt:      text,
		Model:       ns.Model,
		Temperature: ns.Temperature,
	})
	if err != nil {
		return nil, err
	}
	var scores map[string]state.TraitScore
	if err := json.Unmarshal([]byte(prompt.StripCodeFence(completion.Text)), &scores); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", name, err)
	}
	return scores, nil
}

// lookupScore finds a user's entry in a trait result, tolerating annotation
// suffixes and case differences in the model's keys.
func lookupScore(scores map[string]state.TraitScore, displayName string) (state.TraitScore, bool) {
	if s, ok := scores[displayName]; ok {
		return s, true
	}
	want := strings.ToLower(strings.TrimSpace(displayName))
	for k, s := range scores {
		clean := strings.TrimSpace(nameAnnotation.ReplaceAllString(k, " "))
		if strings.ToLower(clean) == want {
			return s, true
		}
	}
	return state.TraitScore{}, false
}
