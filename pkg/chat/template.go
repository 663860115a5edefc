package chat

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRE = regexp.MustCompile(`\{(\w*)\}`)

// Template is a prompt template with {name} placeholders. Besides
// rendering, a Template can be reverse-applied to text with [Template.Match]
// to recover the placeholder values, which is how conversation templates
// are reverse-engineered from flattened text columns.
type Template struct {
	raw    string
	re     *regexp.Regexp
	fields []string
}

// ParseTemplate compiles a template.
//
// A template containing the anonymous placeholder "{}" is rejected before
// any matching. Each named placeholder becomes a greedy named capture
// group; the rest of the template is matched literally. A placeholder name
// used twice fails to compile.
func ParseTemplate(raw string) (*Template, error) {
	if strings.Contains(raw, "{}") {
		return nil, fmt.Errorf("chat: template %q contains an empty placeholder", raw)
	}
	var fields []string
	pattern := regexp.QuoteMeta(raw)
	for _, m := range placeholderRE.FindAllStringSubmatch(raw, -1) {
		name := m[1]
		fields = append(fields, name)
		pattern = strings.ReplaceAll(pattern, regexp.QuoteMeta("{"+name+"}"), "(?P<"+name+">.+)")
	}
	// Text around the template is tolerated on both sides, and placeholders
	// may span newlines.
	re, err := regexp.Compile(`(?s)^.*` + pattern + `.*`)
	if err != nil {
		return nil, fmt.Errorf("chat: template %q: %w", raw, err)
	}
	return &Template{raw: raw, re: re, fields: fields}, nil
}

// String returns the template source text.
func (t *Template) String() string { return t.raw }

// Fields returns the placeholder names in template order.
func (t *Template) Fields() []string { return append([]string(nil), t.fields...) }

// Match reverse-applies the template to text and returns the captured
// placeholder values. A non-matching text yields an empty map, not an
// error.
func (t *Template) Match(text string) map[string]string {
	out := make(map[string]string)
	m := t.re.FindStringSubmatch(text)
	if m == nil {
		return out
	}
	for i, name := range t.re.SubexpNames() {
		if i > 0 && name != "" {
			out[name] = m[i]
		}
	}
	return out
}
