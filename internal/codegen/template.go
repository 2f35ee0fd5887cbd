package codegen

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	BodyPlaceholder = "{{GENERATED_BODY}}"
	URIPlaceholder  = "{{CONNECTION_URI}}"

	// DefaultConnectionURI is the radio address of a factory-fresh drone.
	DefaultConnectionURI = "radio://0/80/2M/E7E7E7E7E7"
)

// ErrTemplate is returned for a template missing a substitution point.
var ErrTemplate = errors.New("invalid code template")

//go:embed templates/crazyflie.py.tmpl
var defaultTemplate string

// Template is flight-script text with the two substitution points.
type Template struct {
	text string
}

// DefaultTemplate returns the built-in script for the cflib high-level
// commander.
func DefaultTemplate() Template {
	return Template{text: defaultTemplate}
}

// ParseTemplate checks that text contains both substitution points.
func ParseTemplate(text string) (Template, error) {
	for _, p := range []string{BodyPlaceholder, URIPlaceholder} {
		if !strings.Contains(text, p) {
			return Template{}, fmt.Errorf("%w: missing %s", ErrTemplate, p)
		}
	}
	return Template{text: text}, nil
}

// LoadTemplate reads a template file. An empty path yields the default.
func LoadTemplate(path string) (Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("failed to read template: %w", err)
	}
	return ParseTemplate(string(b))
}

// Render substitutes body and uri in a single pass, so neither value is
// itself scanned for placeholders.
func (t Template) Render(body, uri string) string {
	return strings.NewReplacer(BodyPlaceholder, body, URIPlaceholder, uri).Replace(t.text)
}
