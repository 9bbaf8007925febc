package expr

import (
	"fmt"
	"strings"
)

// dangerousSubstrings names the type-reference, construction,
// reflection, and process/runtime identifiers spec §4.3 requires be
// rejected outright before parsing even begins. Matching is
// case-sensitive and deliberately broad — false positives (rejecting a
// benign path that happens to contain one of these words) are
// preferable to a single false negative here.
var dangerousSubstrings = []string{
	"__proto__", "constructor", "prototype",
	"class ", "new ", "Function(", "eval(",
	"import(", "import ", "require(",
	"process.", "Process.", "os.", "OS.",
	"runtime.", "Runtime.", "reflect.", "Reflect.",
	"System.", "syscall", "unsafe.",
	"exec(", "Exec(", "Command(",
}

// isAllowedChar tests the character allow-set: identifiers, dots,
// whitespace, digits, operator symbols, parens/comma, and the double
// quote and backslash of string literals. Anything outside this set
// fails closed.
func isAllowedChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '_', '.', ' ', '\t', '\n', '\r',
		'+', '-', '*', '/', '%',
		'=', '!', '<', '>', '&', '|',
		'(', ')', ',', '"', '\\':
		return true
	}
	return false
}

// checkSecurity rejects src if it contains a disallowed character, or
// any of dangerousSubstrings outside of a string literal.
func checkSecurity(src string) error {
	for _, c := range src {
		if !isAllowedChar(c) {
			return fmt.Errorf("%w: disallowed character %q", ErrSecurity, string(c))
		}
	}

	inString := false
	escaped := false
	var sb strings.Builder
	for _, c := range src {
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			continue
		}
		sb.WriteRune(c)
	}

	outsideStrings := sb.String()
	for _, bad := range dangerousSubstrings {
		if strings.Contains(outsideStrings, bad) {
			return fmt.Errorf("%w: forbidden token %q", ErrSecurity, bad)
		}
	}
	return nil
}
