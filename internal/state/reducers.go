package state

// ActionsDelta is a branch's contribution to SelectedActions. Clear is a
// typed sentinel replacing the list with empty instead of appending.
type ActionsDelta struct {
	Items []SelectedAction
	Clear bool
}

// ClearActions resets the selected-actions list.
var ClearActions = ActionsDelta{Clear: true}

// AppendActions wraps actions for the append reducer.
func AppendActions(items ...SelectedAction) ActionsDelta {
	return ActionsDelta{Items: items}
}

// MergeSelectedActions applies a delta to the current list. Pure: the
// inputs are never mutated.
func MergeSelectedActions(current []SelectedAction, delta ActionsDelta) []SelectedAction {
	if delta.Clear {
		return []SelectedAction{}
	}
	if len(delta.Items) == 0 {
		return current
	}
	next := make([]SelectedAction, 0, len(current)+len(delta.Items))
	next = append(next, current...)
	next = append(next, delta.Items...)
	return next
}

// MergeAgentActions merges per-agent action histories by per-key append.
// Keys present only in delta are added; shared keys get delta entries
// appended after the current ones.
func MergeAgentActions(current, delta map[string][]ActionRecord) map[string][]ActionRecord {
	if len(delta) == 0 {
		return current
	}
	next := make(map[string][]ActionRecord, len(current)+len(delta))
	for k, v := range current {
		next[k] = v
	}
	for k, v := range delta {
		if existing, ok := next[k]; ok {
			merged := make([]ActionRecord, 0, len(existing)+len(v))
			merged = append(merged, existing...)
			merged = append(merged, v...)
			next[k] = merged
		} else {
			next[k] = append([]ActionRecord(nil), v...)
		}
	}
	return next
}
