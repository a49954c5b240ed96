package argparse

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupBrackets joins runs of words that together form a bracketed list, so
// that "[1," "2," "3]" becomes the single word "[1, 2, 3]". Words that do not
// start a list are passed through unchanged.
func GroupBrackets(args []string) ([]string, error) {
	var out []string
	var group []string
	depth := 0
	for _, arg := range args {
		if depth == 0 && !strings.HasPrefix(arg, "[") {
			out = append(out, arg)
			continue
		}
		group = append(group, arg)
		depth += strings.Count(arg, "[") - strings.Count(arg, "]")
		if depth < 0 {
			return nil, fmt.Errorf("unbalanced ']' in %q", strings.Join(group, " "))
		}
		if depth == 0 {
			out = append(out, strings.Join(group, " "))
			group = nil
		}
	}
	if depth > 0 {
		return nil, fmt.Errorf("unterminated list %q", strings.Join(group, " "))
	}
	return out, nil
}

// ParseLiteral parses a literal as the queue server writes them. Integers become int, other
// numbers float64, quoted strings and bare words string, True/False bool,
// None nil, and bracketed or parenthesized sequences []any.
func ParseLiteral(s string) (any, error) {
	lp := &literalParser{src: s}
	v, err := lp.value()
	if err != nil {
		return nil, err
	}
	lp.skipSpace()
	if lp.pos < len(lp.src) {
		return nil, fmt.Errorf("invalid literal %q: trailing %q", s, lp.src[lp.pos:])
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (lp *literalParser) skipSpace() {
	for lp.pos < len(lp.src) && (lp.src[lp.pos] == ' ' || lp.src[lp.pos] == '\t') {
		lp.pos++
	}
}

func (lp *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("invalid literal %q at %d: %s", lp.src, lp.pos, fmt.Sprintf(format, args...))
}

func (lp *literalParser) value() (any, error) {
	lp.skipSpace()
	if lp.pos >= len(lp.src) {
		return nil, lp.errorf("unexpected end")
	}
	switch c := lp.src[lp.pos]; c {
	case '[':
		return lp.list(']')
	case '(':
		return lp.list(')')
	case '\'', '"':
		return lp.quoted(c)
	case ']', ')', ',':
		return nil, lp.errorf("unexpected %q", c)
	}
	return lp.word(), nil
}

func (lp *literalParser) list(closer byte) (any, error) {
	lp.pos++
	items := []any{}
	for {
		lp.skipSpace()
		if lp.pos >= len(lp.src) {
			return nil, lp.errorf("missing %q", closer)
		}
		if lp.src[lp.pos] == closer {
			lp.pos++
			return items, nil
		}
		v, err := lp.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		lp.skipSpace()
		if lp.pos < len(lp.src) && lp.src[lp.pos] == ',' {
			lp.pos++
		} else if lp.pos < len(lp.src) && lp.src[lp.pos] != closer {
			return nil, lp.errorf("expected ',' or %q", closer)
		}
	}
}

func (lp *literalParser) quoted(quote byte) (any, error) {
	lp.pos++
	var sb strings.Builder
	for lp.pos < len(lp.src) {
		c := lp.src[lp.pos]
		lp.pos++
		switch {
		case c == '\\' && lp.pos < len(lp.src):
			sb.WriteByte(lp.src[lp.pos])
			lp.pos++
		case c == quote:
			return sb.String(), nil
		default:
			sb.WriteByte(c)
		}
	}
	return nil, lp.errorf("unterminated string")
}

func (lp *literalParser) word() any {
	start := lp.pos
	for lp.pos < len(lp.src) && !strings.ContainsRune(",])( \t", rune(lp.src[lp.pos])) {
		lp.pos++
	}
	w := lp.src[start:lp.pos]
	switch w {
	case "True":
		return true
	case "False":
		return false
	case "None":
		return nil
	}
	if i, err := strconv.Atoi(w); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(w, 64); err == nil {
		return f
	}
	return w
}
