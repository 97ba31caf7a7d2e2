package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/ensemble/internal/config"
	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/prompt"
	"github.com/nextlevelbuilder/ensemble/internal/providers"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// Subgraph executes the persona decision pipeline for one agent.
type Subgraph struct {
	llm providers.Client
	cfg *config.Config
	log *slog.Logger
}

// New builds a Subgraph sharing the supervisor's LLM client and config.
func New(llm providers.Client, cfg *config.Config) *Subgraph {
	return &Subgraph{
		llm: llm,
		cfg: cfg,
		log: slog.Default().With("component", "agent"),
	}
}

// maxSteps caps the node loop; the retry bound keeps real runs far below it.
const maxSteps = 32

// Run drives the subgraph to completion and returns the finalized action.
// It never returns nil: failures surface as an action with error status.
func (g *Subgraph) Run(ctx context.Context, st *State) *state.SelectedAction {
	log := g.log.With("agent", st.Config.Name)
	for i := 0; i < maxSteps; i++ {
		Orchestrate(st)
		if st.NextNode == NodeEnd {
			break
		}
		log.Debug("running node", "node", st.NextNode, "retry", st.RetryCount)
		switch st.NextNode {
		case NodeTrigger:
			g.runTriggerAnalysis(ctx, st)
		case NodeDecision:
			g.runDecisionMaker(ctx, st)
		case NodeTextGenerator:
			g.runTextGenerator(ctx, st)
		case NodeStyler:
			g.runStyler(ctx, st)
		case NodeValidator:
			g.runValidator(ctx, st)
		}
		st.CurrentNode = st.NextNode
	}
	if st.SelectedAction == nil {
		endError(st, "subgraph ended without an action")
	}
	log.Info("subgraph finished",
		"status", st.SelectedAction.Status,
		"action", st.SelectedAction.ID,
		"retries", st.RetryCount)
	return st.SelectedAction
}

// complete runs one LLM call with the node's configured model settings.
func (g *Subgraph) complete(ctx context.Context, node, text string) (string, error) {
	ns := g.cfg.NodeSettings(node)
	resp, err := g.llm.Complete(ctx, providers.CompletionRequest{
		Prompt:      text,
		Model:       ns.Model,
		Temperature: ns.Temperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (g *Subgraph) conversation(st *State) string {
	return prompt.FormatConversation(st.RecentMessages, prompt.FormatOptions{
		IncludeTimestamp: true,
		IncludeEmotion:   true,
		MarkNew:          true,
		Self:             st.Config.Persona,
		Agents:           st.AllPersonas,
	})
}

func (g *Subgraph) runTriggerAnalysis(ctx context.Context, st *State) {
	if len(st.RecentMessages) == 0 {
		st.DetectedTrigger = &state.DetectedTrigger{
			ID:            state.TriggerNeutral,
			Justification: "no recent messages to react to",
		}
		return
	}
	if st.Config.Triggers == nil || len(st.Config.Triggers.Triggers) == 0 {
		st.DetectedTrigger = &state.DetectedTrigger{
			ID:            state.TriggerError,
			Justification: "no trigger catalog configured for agent type " + st.Config.Type,
		}
		return
	}

	triggersJSON, _ := json.MarshalIndent(st.Config.Triggers.Triggers, "", "  ")
	text := prompt.MustRender("trigger_analysis", map[string]string{
		"agent_name":      st.Config.Name,
		"agent_type":      st.Config.Type,
		"agent_goal":      st.Config.AgentGoal,
		"group_name":      st.GroupMetadata.Name,
		"group_topic":     st.GroupMetadata.Topic,
		"persona_json":    string(st.Config.Persona.RawJSON()),
		"triggers_json":   string(triggersJSON),
		"recent_actions":  formatRecentActions(st.RecentActions),
		"recent_messages": g.conversation(st),
	})

	raw, err := g.complete(ctx, NodeTrigger, text)
	if err != nil {
		st.DetectedTrigger = &state.DetectedTrigger{
			ID:            state.TriggerError,
			Justification: "trigger analysis failed: " + err.Error(),
		}
		return
	}
	var trig state.DetectedTrigger
	if err := json.Unmarshal([]byte(prompt.StripCodeFence(raw)), &trig); err != nil {
		st.DetectedTrigger = &state.DetectedTrigger{
			ID:            state.TriggerError,
			Justification: "trigger response could not be parsed: " + err.Error(),
		}
		return
	}
	st.DetectedTrigger = &trig
}

// formatRecentActions renders an agent's action history for the trigger
// prompt so the persona does not repeat itself.
func formatRecentActions(records []state.ActionRecord) string {
	if len(records) == 0 {
		return "(none yet)"
	}
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", r.ActionTimestamp, r.ActionID, r.ActionContent)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (g *Subgraph) runDecisionMaker(ctx context.Context, st *State) {
	log := g.log.With("agent", st.Config.Name)
	trig := st.DetectedTrigger

	catalogTrigger := st.Config.Triggers.Find(trig.ID)
	if catalogTrigger == nil {
		log.Warn("trigger not in catalog, skipping", "trigger", trig.ID)
		st.SelectedAction = nil
		return
	}
	suggested := make([]personas.Action, 0, len(catalogTrigger.SuggestedActions))
	for _, id := range catalogTrigger.SuggestedActions {
		if a := st.Config.Actions.Find(id); a != nil {
			suggested = append(suggested, *a)
		}
	}
	if len(suggested) == 0 {
		log.Warn("trigger has no resolvable suggested actions", "trigger", trig.ID)
		st.SelectedAction = nil
		return
	}

	suggestedJSON, _ := json.MarshalIndent(suggested, "", "  ")
	text := prompt.MustRender("decision_maker", map[string]string{
		"agent_type":             st.Config.Type,
		"agent_goal":             st.Config.AgentGoal,
		"trigger_id":             trig.ID,
		"trigger_justification":  trig.Justification,
		"group_sentiment":        st.GroupSentiment,
		"recent_messages":        g.conversation(st),
		"suggested_actions_json": string(suggestedJSON),
	})

	raw, err := g.complete(ctx, NodeDecision, text)
	if err != nil {
		log.Warn("decision maker call failed", "error", err)
		st.SelectedAction = nil
		return
	}
	var decision struct {
		ID      string `json:"id"`
		Purpose string `json:"purpose"`
	}
	if err := json.Unmarshal([]byte(prompt.StripCodeFence(raw)), &decision); err != nil || decision.ID == "" {
		log.Warn("decision response could not be parsed", "error", err)
		st.SelectedAction = nil
		return
	}
	if st.Config.Actions.Find(decision.ID) == nil {
		// The model picked outside the catalog; honor the choice but note it.
		log.Warn("decision outside action catalog", "action", decision.ID)
	}
	st.SelectedAction = &state.SelectedAction{
		ID:      decision.ID,
		Purpose: decision.Purpose,
		Target:  trig.Target,
	}
}

func (g *Subgraph) runTextGenerator(ctx context.Context, st *State) {
	action := st.SelectedAction
	desc := ""
	if a := st.Config.Actions.Find(action.ID); a != nil {
		desc = a.Description
	}

	text := prompt.MustRender("text_generator", map[string]string{
		"persona_json":       string(st.Config.Persona.RawJSON()),
		"agent_goal":         st.Config.AgentGoal,
		"action_id":          action.ID,
		"action_description": desc,
		"action_purpose":     action.Purpose,
		"group_sentiment":    st.GroupSentiment,
		"recent_messages":    g.conversation(st),
	})
	if st.ValidationFeedback != "" {
		text = fmt.Sprintf(
			"IMPORTANT: your previous attempt was rejected by the reviewer.\nPrevious message:\n%s\nReviewer feedback: %s\nAddress the feedback in your rewrite.\n\n%s",
			st.StyledResponse, st.ValidationFeedback, text)
	}

	raw, err := g.complete(ctx, NodeTextGenerator, text)
	if err != nil {
		g.log.Warn("text generation failed", "agent", st.Config.Name, "error", err)
		st.GeneratedResponse = ""
		return
	}
	st.GeneratedResponse = raw
}

func (g *Subgraph) runStyler(ctx context.Context, st *State) {
	text := prompt.MustRender("styler", map[string]string{
		"persona_json":    string(st.Config.Persona.RawJSON()),
		"recent_messages": g.conversation(st),
		"draft":           st.GeneratedResponse,
	})
	raw, err := g.complete(ctx, NodeStyler, text)
	if err != nil {
		g.log.Warn("styling failed", "agent", st.Config.Name, "error", err)
		st.StyledResponse = ""
		return
	}
	st.StyledResponse = raw
}

func (g *Subgraph) runValidator(ctx context.Context, st *State) {
	// Fail open once retries are exhausted: the orchestrator downgrades the
	// outcome to max_retries_reached.
	if st.RetryCount >= MaxRetries {
		st.Validation = &Validation{Approved: true, Explanation: "auto-approved after reaching the retry limit"}
		return
	}

	text := prompt.MustRender("validator", map[string]string{
		"persona_json":    string(st.Config.Persona.RawJSON()),
		"agent_goal":      st.Config.AgentGoal,
		"action_id":       st.SelectedAction.ID,
		"action_purpose":  st.SelectedAction.Purpose,
		"recent_messages": g.conversation(st),
		"styled_response": st.StyledResponse,
	})
	raw, err := g.complete(ctx, NodeValidator, text)
	if err != nil {
		st.Validation = &Validation{Approved: false, Explanation: "validator call failed: " + err.Error()}
		return
	}
	var v Validation
	if err := json.Unmarshal([]byte(prompt.StripCodeFence(raw)), &v); err != nil {
		st.Validation = &Validation{Approved: false, Explanation: "validator response could not be parsed"}
		return
	}
	st.Validation = &v
}
