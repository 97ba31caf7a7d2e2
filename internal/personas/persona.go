// Package personas loads persona, trigger, and action catalogs from JSON
// files and provides agent identity matching against chat senders.
package personas

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/ensemble/internal/config"
)

// Persona is one configured character. Raw preserves the full persona JSON
// for verbatim prompt injection; the typed fields cover what the pipeline
// needs directly.
type Persona struct {
	AgentName   string `json:"agent_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"user_name"`
	PhoneNumber string `json:"phone_number"`
	AgentGoal   string `json:"agent_goal"`

	raw []byte
}

// RawJSON returns the persona file contents as loaded.
func (p *Persona) RawJSON() []byte { return p.raw }

// DisplayName is "First Last", first name alone, or username.
func (p *Persona) DisplayName() string {
	return BuildDisplayName(p.FirstName, p.LastName, p.Username)
}

// LoadPersona reads a persona JSON file.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", path, err)
	}
	p.raw = data
	return &p, nil
}

// Trigger is one entry of a trigger catalog.
type Trigger struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	SuggestedActions []string `json:"suggested_actions"`
}

// TriggerCatalog is a persona type's trigger set.
type TriggerCatalog struct {
	Triggers []Trigger `json:"triggers"`
}

// Find returns the trigger with the given id, or nil.
func (tc *TriggerCatalog) Find(id string) *Trigger {
	for i := range tc.Triggers {
		if tc.Triggers[i].ID == id {
			return &tc.Triggers[i]
		}
	}
	return nil
}

// Action is one entry of an action catalog.
type Action struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ActionCatalog is a persona type's action set.
type ActionCatalog struct {
	Actions []Action `json:"actions"`
}

// Find returns the action with the given id, or nil.
func (ac *ActionCatalog) Find(id string) *Action {
	for i := range ac.Actions {
		if ac.Actions[i].ID == id {
			return &ac.Actions[i]
		}
	}
	return nil
}

// AgentConfig binds everything one persona subgraph needs.
type AgentConfig struct {
	Name      string
	Type      string
	AgentGoal string
	Persona   *Persona
	Triggers  *TriggerCatalog
	Actions   *ActionCatalog
}

// LoadAgents resolves every configured agent slot. Trigger and action
// catalogs live at triggers/<type>/<type>_triggers.json and
// actions/<type>/<type>_actions.json under baseDir.
func LoadAgents(cfg *config.Config, baseDir string) ([]AgentConfig, error) {
	agents := make([]AgentConfig, 0, len(cfg.Agents))
	for _, spec := range cfg.Agents {
		persona, err := LoadPersona(filepath.Join(baseDir, spec.PersonaFile))
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
		}
		if spec.Username != "" && persona.Username == "" {
			persona.Username = spec.Username
		}
		goal := spec.AgentGoal
		if goal == "" {
			goal = persona.AgentGoal
		}

		var triggers TriggerCatalog
		triggerPath := filepath.Join(baseDir, "triggers", spec.Type, spec.Type+"_triggers.json")
		if err := loadJSONFile(triggerPath, &triggers); err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
		}

		var actions ActionCatalog
		actionPath := filepath.Join(baseDir, "actions", spec.Type, spec.Type+"_actions.json")
		if err := loadJSONFile(actionPath, &actions); err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
		}

		agents = append(agents, AgentConfig{
			Name:      spec.Name,
			Type:      spec.Type,
			AgentGoal: goal,
			Persona:   persona,
			Triggers:  &triggers,
			Actions:   &actions,
		})
	}
	return agents, nil
}

func loadJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Personas extracts the persona list from agent configs.
func Personas(agents []AgentConfig) []*Persona {
	out := make([]*Persona, len(agents))
	for i := range agents {
		out[i] = agents[i].Persona
	}
	return out
}
