package templates

import (
	"fmt"
	"strings"
)

// DefaultContent seeds the editor when a room has no cached or remote
// document.
const DefaultContent = "// Start Your Code ..."

// Languages offered by the language picker, in display order.
var Languages = []string{"javascript", "html", "css", "python", "java", "c++"}

// Template is a starter document for one language.
type Template struct {
	Language string `json:"language"`
	Name     string `json:"name"`
	Content  string `json:"content"`
}

// Builtin is used when no template directory is configured or a language
// has no file.
var Builtin = &Template{
	Language: "javascript",
	Name:     "Blank",
	Content:  DefaultContent,
}

// Validate checks the fields every template file must have.
func Validate(t *Template) error {
	var problems []string
	if strings.TrimSpace(t.Language) == "" {
		problems = append(problems, "language is required")
	} else if !IsKnownLanguage(t.Language) {
		problems = append(problems, fmt.Sprintf("unknown language %q", t.Language))
	}
	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, "name is required")
	}
	if t.Content == "" {
		problems = append(problems, "content is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTemplate, strings.Join(problems, "; "))
	}
	return nil
}

// IsKnownLanguage reports whether language is in Languages.
func IsKnownLanguage(language string) bool {
	for _, l := range Languages {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}
