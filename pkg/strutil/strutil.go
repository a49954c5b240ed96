// Package strutil provides string utilities for command lines.
package strutil

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned by SplitWords when a quote is not closed.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// SplitWords splits a command line into words the way a POSIX shell does,
// minus expansions: words are separated by spaces and tabs, single quotes
// preserve everything up to the next single quote, double quotes preserve
// everything except backslash escapes, and an unquoted backslash escapes the
// next character. Brackets get no special treatment.
func SplitWords(line string) ([]string, error) {
	var words []string
	var sb strings.Builder
	inWord := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if inWord {
				words = append(words, sb.String())
				sb.Reset()
				inWord = false
			}
		case c == '\\':
			inWord = true
			if i+1 < len(line) {
				i++
				sb.WriteByte(line[i])
			}
		case c == '\'':
			inWord = true
			end := strings.IndexByte(line[i+1:], '\'')
			if end == -1 {
				return nil, ErrUnterminatedQuote
			}
			sb.WriteString(line[i+1 : i+1+end])
			i += end + 1
		case c == '"':
			inWord = true
			i++
			for ; i < len(line) && line[i] != '"'; i++ {
				if line[i] == '\\' && i+1 < len(line) && strings.IndexByte(`"\$`+"`", line[i+1]) != -1 {
					i++
				}
				sb.WriteByte(line[i])
			}
			if i >= len(line) {
				return nil, ErrUnterminatedQuote
			}
		default:
			inWord = true
			sb.WriteByte(c)
		}
	}
	if inWord {
		words = append(words, sb.String())
	}
	return words, nil
}

// CutCommand splits a line into its first word and the rest, with the
// surrounding whitespace trimmed.
func CutCommand(line string) (cmd, rest string) {
	line = strings.TrimSpace(line)
	i := strings.IndexAny(line, " \t")
	if i == -1 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}

// ChopLineEnding removes a line ending ("\r\n" or "\n") from the end of s. It
// returns s if it doesn't end with a line ending.
func ChopLineEnding(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}
