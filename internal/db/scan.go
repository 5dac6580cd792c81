package db

import (
	"regexp"
	"strings"
	"unicode"
)

// blankLiterals returns q with quoted text and comments replaced by spaces,
// leaving only the statement's own tokens. backslash selects MySQL-style
// escapes inside quotes.
func blankLiterals(q string, backslash bool) string {
	b := []byte(q)
	var quote byte
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case quote != 0:
			if backslash && c == '\\' && i+1 < len(b) {
				b[i], b[i+1] = ' ', ' '
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			b[i] = ' '
		case c == '\'' || c == '"' || c == '`':
			quote = c
			b[i] = ' '
		case c == '-' && i+1 < len(b) && b[i+1] == '-':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			stop := len(b)
			if end := strings.Index(q[i+2:], "*/"); end >= 0 {
				stop = i + 2 + end + 2
			}
			for ; i < stop; i++ {
				b[i] = ' '
			}
			i--
		}
	}
	return string(b)
}

// multiStatement reports whether q carries anything after a statement
// separator. Both quoting conventions are checked, so text that only looks
// quoted under one of them is still caught.
func multiStatement(q string) bool {
	for _, backslash := range []bool{false, true} {
		t := blankLiterals(q, backslash)
		if i := strings.IndexByte(t, ';'); i >= 0 && strings.Trim(t[i:], "; \t\r\n") != "" {
			return true
		}
	}
	return false
}

var returningRe = regexp.MustCompile(`(?i)\breturning\b`)

func firstKeyword(q string) string {
	q = strings.TrimLeftFunc(q, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
	end := strings.IndexFunc(q, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(q)
	}
	return strings.ToLower(q[:end])
}

func returnsRows(q string, backslash bool) bool {
	switch firstKeyword(q) {
	case "select", "show", "describe", "desc", "explain", "pragma", "with", "values":
		return true
	case "insert", "update", "delete", "replace":
		return returningRe.MatchString(blankLiterals(q, backslash))
	}
	return false
}

func mutates(q string) bool {
	switch firstKeyword(q) {
	case "insert", "update", "delete", "replace", "create", "drop", "alter", "truncate", "rename":
		return true
	}
	return false
}
