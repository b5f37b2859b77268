package bundoc

import (
	"strings"
	"unicode/utf8"
)

const maxNameLength = 64

const forbiddenNameChars = "/\\.\"$*<>:|? "

// validName enforces the database/collection naming rule (spec §6.4):
// non-empty, at most 64 characters, none of / \ . " $ * < > : | ? or space.
func validName(name string) bool {
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return false
	}
	return !strings.ContainsAny(name, forbiddenNameChars)
}

// validFieldName enforces the field-naming rule: non-empty and not starting
// with '$' (operator prefix is reserved for filter/update grammars).
func validFieldName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "$")
}
