package command

import (
	"errors"
	"fmt"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

var ErrUnknownPlaceholder = errors.New("unknown placeholder")

// Placeholder names a value substituted into an argument at launch time.
type Placeholder string

const (
	ModelPath Placeholder = "model_path"
	Steps     Placeholder = "steps"
	NWorld    Placeholder = "nworld"
	Threads   Placeholder = "threads"
	CtrlNoise Placeholder = "ctrlnoise"
	Scale     Placeholder = "scale"
)

var known = map[Placeholder]bool{
	ModelPath: true,
	Steps:     true,
	NWorld:    true,
	Threads:   true,
	CtrlNoise: true,
	Scale:     true,
}

// Values holds the rendered text for each placeholder of one scenario.
type Values map[Placeholder]string

type part struct {
	lit string
	ph  Placeholder
}

// Template is a single argument with {name} placeholders. "{{" and "}}"
// produce literal braces.
type Template struct {
	raw   string
	parts []part
}

// Parse splits s into literal and placeholder parts. Names outside the
// known set are rejected with ErrUnknownPlaceholder.
func Parse(s string) (Template, error) {
	t := Template{raw: s}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{lit: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return Template{}, fmt.Errorf("template %q: unterminated placeholder at offset %d", s, i)
			}
			name := Placeholder(strings.TrimSpace(s[i+1 : i+1+end]))
			if !known[name] {
				return Template{}, fmt.Errorf("template %q: %w {%s}", s, ErrUnknownPlaceholder, name)
			}
			flush()
			t.parts = append(t.parts, part{ph: name})
			i += end + 1
		case c == '}':
			return Template{}, fmt.Errorf("template %q: unmatched '}' at offset %d", s, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Template {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Template) String() string { return t.raw }

// Placeholders returns the placeholders used, in order of appearance.
func (t Template) Placeholders() []Placeholder {
	var out []Placeholder
	for _, p := range t.parts {
		if p.ph != "" {
			out = append(out, p.ph)
		}
	}
	return out
}

// Render substitutes v into the template.
func (t Template) Render(v Values) (string, error) {
	var b strings.Builder
	for _, p := range t.parts {
		if p.ph == "" {
			b.WriteString(p.lit)
			continue
		}
		val, ok := v[p.ph]
		if !ok {
			return "", fmt.Errorf("template %q: no value for {%s}", t.raw, p.ph)
		}
		b.WriteString(val)
	}
	return b.String(), nil
}

// Args is an ordered argument list.
type Args []Template

// ParseArgs parses each argument and checks every placeholder is in
// allowed. A placeholder that is known but not allowed cannot be
// satisfied by the engine and is also rejected.
func ParseArgs(args []string, allowed ...Placeholder) (Args, error) {
	ok := make(map[Placeholder]bool, len(allowed))
	for _, p := range allowed {
		ok[p] = true
	}
	out := make(Args, 0, len(args))
	for i, a := range args {
		t, err := Parse(a)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		for _, p := range t.Placeholders() {
			if !ok[p] {
				return nil, fmt.Errorf("arg %d: %w {%s}: not available for this engine", i, ErrUnknownPlaceholder, p)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// Uses reports whether any argument references p.
func (a Args) Uses(p Placeholder) bool {
	for _, t := range a {
		for _, q := range t.Placeholders() {
			if q == p {
				return true
			}
		}
	}
	return false
}

// Render renders every argument.
func (a Args) Render(v Values) ([]string, error) {
	out := make([]string, len(a))
	for i, t := range a {
		s, err := t.Render(v)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Strings returns the unrendered templates.
func (a Args) Strings() []string {
	out := make([]string, len(a))
	for i, t := range a {
		out[i] = t.raw
	}
	return out
}

// Quote renders argv as a single POSIX shell command line.
func Quote(argv []string) string {
	return shellescape.QuoteCommand(argv)
}

// QuotePowerShell quotes s as a PowerShell single-quoted literal when it
// contains anything outside the shell-safe set.
func QuotePowerShell(s string) string {
	if s != "" && shellescape.Quote(s) == s {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
