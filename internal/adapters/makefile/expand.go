package makefile

import "strings"

// variables is the Make variable table. Values are stored fully expanded.
type variables map[string]string

// expand substitutes $(VAR), ${VAR}, single-character $X references, and the
// $$ escape. Undefined variables expand to the empty string, as in make.
func (v variables) expand(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '$' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}

		next := s[i+1]
		switch next {
		case '$':
			b.WriteByte('$')
			i++
		case '(', '{':
			closer := byte(')')
			if next == '{' {
				closer = '}'
			}
			end := strings.IndexByte(s[i+2:], closer)
			if end < 0 {
				// Unterminated reference: leave the text as-is.
				b.WriteString(s[i:])
				return b.String()
			}
			name := s[i+2 : i+2+end]
			b.WriteString(v[name]) // values are stored fully expanded
			i += 2 + end
		default:
			// $X single-character reference, e.g. the automatic $@ $< $^.
			b.WriteString(v[string(next)])
			i++
		}
	}
	return b.String()
}
