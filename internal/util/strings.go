package util

import (
	"regexp"
	"strings"
)

// FirstNonEmpty returns the first non-empty string (after trimming).
func FirstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var numericRe = regexp.MustCompile(`^\s*[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?\s*$`)

// IsNumeric reports whether s is a plain decimal number, optionally signed,
// with an optional fraction and exponent. Hex, "Inf" and "NaN" are rejected.
func IsNumeric(s string) bool {
	return numericRe.MatchString(s)
}

// StripSlashes removes one level of backslash quoting: `\'` becomes `'`,
// `\\` becomes `\` and `\0` becomes a NUL byte. A trailing lone backslash is dropped.
func StripSlashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(s) {
			break
		}
		if s[i] == '0' {
			b.WriteByte(0)
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
