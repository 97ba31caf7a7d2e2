// Package agent runs one persona's decision subgraph: trigger analysis,
// action selection, text generation, styling, and validation with a bounded
// retry loop, producing a single SelectedAction.
package agent

import (
	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// Node names of the subgraph.
const (
	NodeOrchestrator  = "orchestrator"
	NodeTrigger       = "trigger_analysis"
	NodeDecision      = "decision_maker"
	NodeTextGenerator = "text_generator"
	NodeStyler        = "styler"
	NodeValidator     = "validator"
	NodeEnd           = "__end__"
)

// MaxRetries bounds the validation retry loop. The text generator runs at
// most 1+MaxRetries times; the validator auto-approves once the count is
// exhausted.
const MaxRetries = 3

// Validation is the reviewer verdict on a styled response.
type Validation struct {
	Approved    bool   `json:"approved"`
	Explanation string `json:"explanation"`
}

// State is the working state of one subgraph run. The supervisor fills the
// input fields; the nodes fill the rest as the run progresses.
type State struct {
	// Inputs, read-only during the run.
	RecentMessages []state.Message
	GroupSentiment string
	GroupMetadata  state.GroupMetadata
	Config         personas.AgentConfig
	AllPersonas    []*personas.Persona
	RecentActions  []state.ActionRecord

	// Working fields.
	DetectedTrigger    *state.DetectedTrigger
	SelectedAction     *state.SelectedAction
	GeneratedResponse  string
	StyledResponse     string
	Validation         *Validation
	ValidationFeedback string
	RetryCount         int
	CurrentNode        string
	NextNode           string
}
