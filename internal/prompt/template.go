package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTemplate []byte

// Template is the persona text the composer renders around the profile and
// history. It is configuration data, not code.
type Template struct {
	Preamble            string   `yaml:"preamble"`
	InstructionsHeading string   `yaml:"instructions_heading"`
	Instructions        []string `yaml:"instructions"`
	ProfileHeading      string   `yaml:"profile_heading"`
	Labels              Labels   `yaml:"labels"`
	MemoryHeading       string   `yaml:"memory_heading"`
	HistoryHeading      string   `yaml:"history_heading"`
	Roles               Roles    `yaml:"roles"`
	Closing             string   `yaml:"closing"`
}

// Labels name each profile field.
type Labels struct {
	Name       string `yaml:"name"`
	Age        string `yaml:"age"`
	Profession string `yaml:"profession"`
	Interests  string `yaml:"interests"`
}

// Roles name each speaker in the history section.
type Roles struct {
	User      string `yaml:"user"`
	Assistant string `yaml:"assistant"`
}

// DefaultTemplate returns the built-in template.
func DefaultTemplate() Template {
	var t Template
	if err := yaml.Unmarshal(defaultTemplate, &t); err != nil {
		panic(fmt.Sprintf("prompt: embedded template: %v", err))
	}
	return t
}

// LoadTemplate reads a YAML template from path and layers it over the
// built-in one, so a file may override only some fields.
func LoadTemplate(path string) (Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("prompt: read template: %w", err)
	}
	t := DefaultTemplate()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Template{}, fmt.Errorf("prompt: parse template %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Template{}, fmt.Errorf("prompt: template %s: %w", path, err)
	}
	return t, nil
}

// Validate checks the fields the composer cannot do without.
func (t Template) Validate() error {
	var errs []error
	if strings.TrimSpace(t.Preamble) == "" {
		errs = append(errs, errors.New("preamble must not be empty"))
	}
	if t.Roles.User == "" || t.Roles.Assistant == "" {
		errs = append(errs, errors.New("roles.user and roles.assistant are required"))
	}
	return errors.Join(errs...)
}
