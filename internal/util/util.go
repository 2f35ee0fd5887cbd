// Package util provides small text helpers shared by code generation and
// exports.
package util

import (
	"strconv"
	"strings"
)

// FormatFixed formats v with prec decimals, like JavaScript's toFixed.
// Negative zero is printed without a sign.
func FormatFixed(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if strings.HasPrefix(s, "-") && strings.Trim(s[1:], "0.") == "" {
		return s[1:]
	}
	return s
}

// Indent prefixes every non-empty line of s with prefix.
func Indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// SafeFileName replaces characters that are awkward in file names.
func SafeFileName(name string) string {
	if name == "" {
		return "untitled"
	}
	r := strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	return r.Replace(name)
}
