package sequence

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTemplate is returned for malformed templates and unknown tokens.
var ErrInvalidTemplate = errors.New("invalid sequence template")

// Interpolate substitutes %(name)s placeholders from tokens; %% is a literal
// percent sign. Any other use of % is malformed. On error no partial result
// is returned.
func Interpolate(template string, tokens Tokens) (string, error) {
	if template == "" {
		return "", nil
	}
	if !strings.Contains(template, "%") {
		return template, nil
	}

	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(template) {
			return "", fmt.Errorf("%w: dangling %% at end of %q", ErrInvalidTemplate, template)
		}

		switch template[i+1] {
		case '%':
			b.WriteByte('%')
			i++
		case '(':
			closing := strings.IndexByte(template[i+2:], ')')
			if closing < 0 {
				return "", fmt.Errorf("%w: unterminated placeholder in %q", ErrInvalidTemplate, template)
			}
			name := template[i+2 : i+2+closing]
			conv := i + 2 + closing + 1
			if conv >= len(template) || template[conv] != 's' {
				return "", fmt.Errorf("%w: placeholder %q must end with 's'", ErrInvalidTemplate, name)
			}
			value, ok := tokens[name]
			if !ok {
				return "", fmt.Errorf("%w: unknown token %q", ErrInvalidTemplate, name)
			}
			b.WriteString(value)
			i = conv
		default:
			return "", fmt.Errorf("%w: unsupported directive %%%c in %q", ErrInvalidTemplate, template[i+1], template)
		}
	}

	return b.String(), nil
}

// Format assembles prefix + zero-padded value + suffix. Padding narrower than
// the value never truncates it.
func Format(prefix, suffix string, padding int, value int64, tokens Tokens) (string, error) {
	p, err := Interpolate(prefix, tokens)
	if err != nil {
		return "", fmt.Errorf("prefix: %w", err)
	}
	s, err := Interpolate(suffix, tokens)
	if err != nil {
		return "", fmt.Errorf("suffix: %w", err)
	}
	return p + fmt.Sprintf("%0*d", padding, value) + s, nil
}
