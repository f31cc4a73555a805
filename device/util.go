package device

import "strings"

// sanitizeUTF8 replaces invalid byte sequences so ScriptResponse fields
// are always valid Go strings, per spec.md's "decoded as UTF-8 with
// invalid sequences replaced" requirement.
func sanitizeUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// lastNonEmptyLine returns the last non-blank line of s, used to derive
// ScriptResponse.Exception from a full Python traceback.
func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line
		}
	}
	return ""
}
