package nl2sql

import (
	"regexp"
	"strings"
)

const fence = "```"

var (
	// A fence opening its own line may carry any info string: ```SQL, ```pgsql.
	taggedFenceLine = regexp.MustCompile("(?i)```[a-z0-9_+.-]*[ \t]*(?:\r?\n|$)")
	// Same-line openers are only trusted for SQL dialect tags.
	inlineSQLFence = regexp.MustCompile("(?i)```(?:postgresql|postgres|pgsql|psql|sql)\\b")
)

// SanitizeSQL strips code-fence markers and surrounding whitespace from a
// generated statement. It does not parse or validate the SQL.
func SanitizeSQL(value string) string {
	cleaned := strings.TrimSpace(value)
	cleaned = taggedFenceLine.ReplaceAllString(cleaned, "")
	cleaned = inlineSQLFence.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, fence, "")
	return strings.TrimSpace(cleaned)
}
