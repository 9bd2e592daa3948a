package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Command names are matched case-insensitively in chat, so validation runs on
// the lowercased, trimmed form the compiler extracts from the entry node.
const (
	minNameLength = 1
	maxNameLength = 32
)

// NameRulesMessage is the fixed, user-displayable message shown whenever a
// name breaks any lexical rule. It enumerates all rules rather than the one
// that failed, so the editor can render it as-is.
const NameRulesMessage = `Command names must satisfy all of the following:
- between 1 and 32 characters long
- only letters, digits, hyphens and underscores (spaces are not allowed)
- no two underscores in a row
- must not begin or end with a hyphen or underscore`

// allowedLetters admits lowercase letters plus the letter classes that cover
// non-Latin scripts, with Hangul and Han listed explicitly.
var allowedLetters = []*unicode.RangeTable{
	unicode.Ll,
	unicode.Lm,
	unicode.Lo,
	unicode.Hangul,
	unicode.Han,
}

// ValidateName checks a normalized command name against the lexical rules.
// It is pure: no I/O, no state. A failure returns a *ValidationError carrying
// NameRulesMessage.
func ValidateName(name string) error {
	length := utf8.RuneCountInString(name)
	if length < minNameLength || length > maxNameLength {
		return nameError()
	}

	for _, r := range name {
		if !allowedRune(r) {
			return nameError()
		}
	}

	if strings.Contains(name, "__") {
		return nameError()
	}

	first, _ := utf8.DecodeRuneInString(name)
	last, _ := utf8.DecodeLastRuneInString(name)
	if isSeparator(first) || isSeparator(last) {
		return nameError()
	}

	return nil
}

// NormalizeName produces the stored form of a raw entry-node label.
func NormalizeName(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func allowedRune(r rune) bool {
	if r == '-' || r == '_' {
		return true
	}
	if unicode.IsDigit(r) {
		return true
	}
	return unicode.IsOneOf(allowedLetters, r)
}

func isSeparator(r rune) bool {
	return r == '-' || r == '_'
}

func nameError() *ValidationError {
	return &ValidationError{
		Message: NameRulesMessage,
		Reasons: []string{"invalid command name"},
	}
}
