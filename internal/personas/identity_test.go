package personas

import (
	"testing"

	"github.com/nextlevelbuilder/ensemble/internal/state"
)

func testPersonas() []*Persona {
	return []*Persona{
		{AgentName: "Maya", FirstName: "Maya", LastName: "Chen", Username: "maya_c", PhoneNumber: "+37379000001"},
		{AgentName: "Leo", FirstName: "Leo", Username: "leo_b", PhoneNumber: "+37379000002"},
	}
}

func TestIsAgentMessage(t *testing.T) {
	list := testPersonas()
	tests := []struct {
		name string
		msg  state.Message
		want bool
	}{
		{"username match", state.Message{SenderUsername: "maya_c"}, true},
		{"username match case-insensitive", state.Message{SenderUsername: "MAYA_C"}, true},
		{"first+last match", state.Message{SenderFirstName: "maya", SenderLastName: "CHEN"}, true},
		{"first only does not match pair rule", state.Message{SenderFirstName: "Maya"}, false},
		{"foreign user", state.Message{SenderUsername: "random_guy", SenderFirstName: "Random", SenderLastName: "Guy"}, false},
		{"persona without last name matched by username", state.Message{SenderUsername: "leo_b"}, true},
		{"empty message", state.Message{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAgentMessage(&tt.msg, list); got != tt.want {
				t.Errorf("IsAgentMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchAgentName(t *testing.T) {
	list := testPersonas()
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"full display name", "Maya Chen", true},
		{"case-insensitive", "maya chen", true},
		{"first name only", "Leo", true},
		{"username", "leo_b", true},
		{"unknown", "Sasha", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchAgentName(tt.in, list); got != tt.want {
				t.Errorf("MatchAgentName(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildDisplayName(t *testing.T) {
	tests := []struct {
		first, last, username, want string
	}{
		{"Maya", "Chen", "maya_c", "Maya Chen"},
		{"Maya", "", "maya_c", "Maya"},
		{"", "", "maya_c", "maya_c"},
		{"", "", "", ""},
		{" Maya ", " Chen ", "", "Maya Chen"},
	}
	for _, tt := range tests {
		if got := BuildDisplayName(tt.first, tt.last, tt.username); got != tt.want {
			t.Errorf("BuildDisplayName(%q,%q,%q) = %q, want %q", tt.first, tt.last, tt.username, got, tt.want)
		}
	}
}
