// Package format renders notification templates. Rendering is a
// two-phase pipeline: substitute {name} placeholders from a context,
// then decode backslash escapes, so operators can write sequences like
// \t and \n in plain configuration text and have them become real
// control characters only after substitution.
package format

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a render failure.
type Kind int

const (
	// KindUndefinedVariable: a placeholder names a field absent from
	// the context.
	KindUndefinedVariable Kind = iota
	// KindBadTemplate: unbalanced or unterminated braces.
	KindBadTemplate
	// KindBadEscape: a malformed backslash escape sequence.
	KindBadEscape
)

func (k Kind) String() string {
	switch k {
	case KindUndefinedVariable:
		return "undefined_variable"
	case KindBadTemplate:
		return "bad_template"
	default:
		return "bad_escape"
	}
}

// Error is a typed render failure.
type Error struct {
	Kind     Kind
	Template string
	Name     string // offending placeholder, for KindUndefinedVariable
	Detail   string
}

func (e *Error) Error() string {
	if e.Kind == KindUndefinedVariable {
		return fmt.Sprintf("template %q: undefined variable %q", e.Template, e.Name)
	}
	return fmt.Sprintf("template %q: %s: %s", e.Template, e.Kind, e.Detail)
}

// Render substitutes {name} placeholders from ctx and then decodes
// backslash escapes. {{ and }} emit literal braces.
func Render(tmpl string, ctx map[string]any) (string, error) {
	substituted, err := substitute(tmpl, ctx)
	if err != nil {
		return "", err
	}
	return decodeEscapes(tmpl, substituted)
}

func substitute(tmpl string, ctx map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", &Error{Kind: KindBadTemplate, Template: tmpl, Detail: "unterminated placeholder"}
			}
			name := tmpl[i+1 : i+end]
			v, ok := ctx[name]
			if !ok {
				return "", &Error{Kind: KindUndefinedVariable, Template: tmpl, Name: name}
			}
			b.WriteString(formatValue(v))
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", &Error{Kind: KindBadTemplate, Template: tmpl, Detail: "single '}' outside placeholder"}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// formatValue renders a context value the way an operator expects to
// read it in an email: floats keep their minimal decimal form.
func formatValue(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// decodeEscapes processes backslash escape sequences in s. tmpl is only
// carried for error reporting.
func decodeEscapes(tmpl, s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	for len(s) > 0 {
		if s[0] != '\\' {
			next := strings.IndexByte(s, '\\')
			if next < 0 {
				b.WriteString(s)
				break
			}
			b.WriteString(s[:next])
			s = s[next:]
			continue
		}
		if len(s) < 2 {
			return "", &Error{Kind: KindBadEscape, Template: tmpl, Detail: "trailing backslash"}
		}
		// Quote escapes pass through as the quote itself; everything
		// else follows Go escape syntax.
		if s[1] == '\'' || s[1] == '"' {
			b.WriteByte(s[1])
			s = s[2:]
			continue
		}
		r, _, tail, err := strconv.UnquoteChar(s, 0)
		if err != nil {
			return "", &Error{Kind: KindBadEscape, Template: tmpl, Detail: fmt.Sprintf("%v in %q", err, s)}
		}
		b.WriteRune(r)
		s = tail
	}
	return b.String(), nil
}
