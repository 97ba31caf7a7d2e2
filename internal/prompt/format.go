package prompt

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

// FormatOptions controls the annotations added to a formatted message line.
// The decorations ("(YOU)", "(Agent)", "[Reactions: …]", "[⤷ Replying to …]")
// are a prompt contract; they exist only at prompt-assembly time and are
// never stored on the message.
type FormatOptions struct {
	IncludeTimestamp bool
	IncludeEmotion   bool
	MarkNew          bool

	// Self marks the persona reading the transcript; its own messages get
	// the (YOU) annotation, other known personas get (Agent).
	Self   *personas.Persona
	Agents []*personas.Persona

	// ByID resolves reply_to_message_id to the quoted message.
	ByID map[string]*state.Message
}

// senderName prefers username, then "First Last", then first name.
func senderName(m *state.Message) string {
	if u := strings.TrimSpace(m.SenderUsername); u != "" {
		return u
	}
	if n := personas.BuildDisplayName(m.SenderFirstName, m.SenderLastName, ""); n != "" {
		return n
	}
	return "Unknown"
}

// FormatMessage renders one message line:
// "[timestamp] sender (YOU) [emotion]: text [Reactions: …] [⤷ Replying to …]".
func FormatMessage(m *state.Message, opts FormatOptions) string {
	var parts []string

	if opts.IncludeTimestamp {
		ts := "Unknown time"
		if !m.Date.IsZero() {
			ts = m.Date.Format("2006-01-02 15:04:05")
		} else if m.Timestamp != "" {
			ts = m.Timestamp
		}
		parts = append(parts, "["+ts+"]")
	}

	sender := senderName(m)
	switch {
	case opts.Self != nil && isSamePersona(m, opts.Self):
		sender += " (YOU)"
	case len(opts.Agents) > 0 && personas.IsAgentMessage(m, opts.Agents):
		sender += " (Agent)"
	}
	parts = append(parts, sender)

	if opts.IncludeEmotion && m.Emotion != nil {
		parts = append(parts, "["+m.Emotion.Emotion+"]")
	}

	line := strings.Join(parts, " ") + ": " + m.Text

	if len(m.Reactions) > 0 {
		line += " [Reactions: " + formatReactions(m.Reactions) + "]"
	}

	if m.ReplyToID != "" && opts.ByID != nil {
		if quoted, ok := opts.ByID[m.ReplyToID]; ok {
			line += fmt.Sprintf(" [⤷ Replying to %s: %q]", senderName(quoted), snippet(quoted.Text, 40))
		}
	}

	if opts.MarkNew && !m.Processed {
		line += " [NEW]"
	}

	return line
}

// FormatConversation renders the window oldest-first, one line per message.
// The window itself is stored newest-first.
func FormatConversation(msgs []state.Message, opts FormatOptions) string {
	if opts.ByID == nil {
		byID := make(map[string]*state.Message, len(msgs))
		for i := range msgs {
			byID[msgs[i].MessageID] = &msgs[i]
		}
		opts.ByID = byID
	}
	lines := make([]string, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		lines = append(lines, FormatMessage(&msgs[i], opts))
	}
	return strings.Join(lines, "\n")
}

func isSamePersona(m *state.Message, p *personas.Persona) bool {
	return personas.IsAgentMessage(m, []*personas.Persona{p})
}

func formatReactions(rs []state.Reaction) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		s := fmt.Sprintf("%s x%d", r.Emoji, r.Count)
		if len(r.Users) > 0 {
			s += " (" + strings.Join(r.Users, ", ") + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func snippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
