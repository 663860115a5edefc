package chat

import (
	"fmt"
	"strings"
)

// Default role templates used by [NewFormatter] for unset roles.
const (
	DefaultSystemTemplate    = "<<SYS>> {system} <<SYS>>"
	DefaultUserTemplate      = "[INST] {user} [/INST]"
	DefaultAssistantTemplate = "{assistant}"
	DefaultSeparator         = " "
)

// RoleTemplate renders one role's messages: Template is the surrounding
// text and Key names the placeholder the content is substituted into.
type RoleTemplate struct {
	Template string `json:"template" yaml:"template"`
	Key      string `json:"key" yaml:"key"`
}

// FormatterConfig configures [NewFormatter]. Nil fields take the package
// defaults.
type FormatterConfig struct {
	System    *RoleTemplate `json:"system,omitempty" yaml:"system,omitempty"`
	User      *RoleTemplate `json:"user,omitempty" yaml:"user,omitempty"`
	Assistant *RoleTemplate `json:"assistant,omitempty" yaml:"assistant,omitempty"`
	Separator *string       `json:"separator,omitempty" yaml:"separator,omitempty"`
}

// Formatter renders canonical message lists to flat text, one role
// template per message, joined by the separator.
type Formatter struct {
	templates map[Role]RoleTemplate
	separator string
}

// NewFormatter builds a Formatter, validating that every role template
// actually contains its placeholder key.
func NewFormatter(cfg *FormatterConfig) (*Formatter, error) {
	if cfg == nil {
		cfg = &FormatterConfig{}
	}
	f := &Formatter{
		templates: map[Role]RoleTemplate{
			RoleSystem:    {Template: DefaultSystemTemplate, Key: "system"},
			RoleUser:      {Template: DefaultUserTemplate, Key: "user"},
			RoleAssistant: {Template: DefaultAssistantTemplate, Key: "assistant"},
		},
		separator: DefaultSeparator,
	}
	for role, rt := range map[Role]*RoleTemplate{
		RoleSystem:    cfg.System,
		RoleUser:      cfg.User,
		RoleAssistant: cfg.Assistant,
	} {
		if rt != nil {
			f.templates[role] = *rt
		}
	}
	if cfg.Separator != nil {
		f.separator = *cfg.Separator
	}
	for role, rt := range f.templates {
		if !strings.Contains(rt.Template, "{"+rt.Key+"}") {
			return nil, fmt.Errorf("chat: %s template %q does not contain key %q", role, rt.Template, rt.Key)
		}
	}
	return f, nil
}

// DefaultFormatter returns a Formatter with the package defaults.
func DefaultFormatter() *Formatter {
	f, err := NewFormatter(nil)
	if err != nil {
		panic(err)
	}
	return f
}

// Format renders messages to text. A role without a template is an error.
func (f *Formatter) Format(msgs []Message) (string, error) {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		rt, ok := f.templates[m.Role]
		if !ok {
			return "", fmt.Errorf("chat: no template for role %q", m.Role)
		}
		parts = append(parts, strings.ReplaceAll(rt.Template, "{"+rt.Key+"}", m.Content))
	}
	return strings.Join(parts, f.separator), nil
}
