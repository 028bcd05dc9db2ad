package ingest

import "strings"

// splitScript splits an uploaded SQL script on ';' and drops blank
// statements. Semicolons inside string literals are not special.
func splitScript(script string) []string {
	parts := strings.Split(script, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
