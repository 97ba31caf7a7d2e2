package agent

import "github.com/nextlevelbuilder/ensemble/internal/state"

// Orchestrate inspects the node that just ran and decides the next one,
// finalizing SelectedAction when the run ends. It is a pure routing function;
// the nodes themselves never pick their successor.
func Orchestrate(st *State) {
	switch st.CurrentNode {
	case "":
		st.NextNode = NodeTrigger

	case NodeTrigger:
		trig := st.DetectedTrigger
		switch {
		case trig == nil || trig.ID == state.TriggerNeutral:
			endNoAction(st)
		case trig.ID == state.TriggerError:
			endError(st, trig.Justification)
		default:
			st.NextNode = NodeDecision
		}

	case NodeDecision:
		if st.SelectedAction == nil {
			endNoAction(st)
		} else {
			st.NextNode = NodeTextGenerator
		}

	case NodeTextGenerator:
		if st.GeneratedResponse == "" {
			endError(st, "text generation produced no content")
		} else {
			st.NextNode = NodeStyler
		}

	case NodeStyler:
		if st.StyledResponse == "" {
			endError(st, "styling produced no content")
		} else {
			st.NextNode = NodeValidator
		}

	case NodeValidator:
		v := st.Validation
		switch {
		case v == nil:
			endError(st, "validator produced no verdict")
		case v.Approved && st.RetryCount >= MaxRetries:
			endApproved(st, state.StatusMaxRetriesReached)
			st.SelectedAction.ValidationNote = "auto-approved after exhausting validation retries"
		case v.Approved:
			endApproved(st, state.StatusSuccess)
		default:
			st.ValidationFeedback = v.Explanation
			st.RetryCount++
			st.NextNode = NodeTextGenerator
		}

	default:
		endError(st, "unknown node "+st.CurrentNode)
	}
	st.CurrentNode = NodeOrchestrator
}

func endNoAction(st *State) {
	if st.SelectedAction == nil {
		st.SelectedAction = &state.SelectedAction{ID: "none"}
	}
	st.SelectedAction.Status = state.StatusNoActionNeeded
	stampIdentity(st)
	st.NextNode = NodeEnd
}

func endError(st *State, msg string) {
	if st.SelectedAction == nil {
		st.SelectedAction = &state.SelectedAction{ID: "none"}
	}
	st.SelectedAction.Status = state.StatusError
	st.SelectedAction.Error = msg
	stampIdentity(st)
	st.NextNode = NodeEnd
}

// endApproved finalizes a dispatchable outcome: the styled text and the
// persona's phone number ride along so the scheduler can queue it.
func endApproved(st *State, status string) {
	st.SelectedAction.Status = status
	st.SelectedAction.StyledResponse = st.StyledResponse
	stampIdentity(st)
	st.SelectedAction.PhoneNumber = st.Config.Persona.PhoneNumber
	st.NextNode = NodeEnd
}

func stampIdentity(st *State) {
	st.SelectedAction.AgentName = st.Config.Name
	st.SelectedAction.AgentType = st.Config.Type
	if t := st.DetectedTrigger; t != nil && t.ID != state.TriggerNeutral && t.ID != state.TriggerError {
		st.SelectedAction.TriggerID = t.ID
		st.SelectedAction.TriggerJustification = t.Justification
	}
}
