// Package prompt holds the embedded prompt templates and the message
// formatting used when assembling conversation transcripts for the models.
package prompt

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Load returns an embedded template by name (without directory or extension).
func Load(name string) (string, error) {
	content, err := templateFS.ReadFile("templates/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", name, err)
	}
	return string(content), nil
}

// Render substitutes {{key}} tokens in a template. Unknown tokens are left
// in place so a malformed template is visible in logs rather than silent.
func Render(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// MustRender loads and renders a named template. Template names are fixed at
// compile time; a missing one is a packaging bug.
func MustRender(name string, vars map[string]string) string {
	tpl, err := Load(name)
	if err != nil {
		panic(err)
	}
	return Render(tpl, vars)
}
