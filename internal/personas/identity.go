package personas

import (
	"strings"

	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// BuildDisplayName composes a human-readable name: "First Last", first name
// alone, then username.
func BuildDisplayName(first, last, username string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	username = strings.TrimSpace(username)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return username
	}
}

// IsAgentMessage reports whether the message was sent by one of our
// personas. Matching is case-insensitive, by username or by first+last
// name pair.
func IsAgentMessage(msg *state.Message, list []*Persona) bool {
	senderUsername := strings.ToLower(strings.TrimSpace(msg.SenderUsername))
	senderFirst := strings.ToLower(strings.TrimSpace(msg.SenderFirstName))
	senderLast := strings.ToLower(strings.TrimSpace(msg.SenderLastName))

	for _, p := range list {
		username := strings.ToLower(strings.TrimSpace(p.Username))
		first := strings.ToLower(strings.TrimSpace(p.FirstName))
		last := strings.ToLower(strings.TrimSpace(p.LastName))

		if senderUsername != "" && username != "" && senderUsername == username {
			return true
		}
		if senderFirst != "" && senderLast != "" && first != "" && last != "" &&
			senderFirst == first && senderLast == last {
			return true
		}
	}
	return false
}

// MatchAgentName reports whether a display name belongs to one of our
// personas. Tolerates missing last names.
func MatchAgentName(name string, list []*Persona) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	for _, p := range list {
		if n == strings.ToLower(p.DisplayName()) {
			return true
		}
		if p.Username != "" && n == strings.ToLower(p.Username) {
			return true
		}
		if p.FirstName != "" && n == strings.ToLower(p.FirstName) {
			return true
		}
	}
	return false
}

// AgentDisplayNames lists display names for all personas.
func AgentDisplayNames(list []*Persona) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.DisplayName()
	}
	return out
}
