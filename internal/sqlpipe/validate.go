package sqlpipe

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrNotSQL = errors.New("not a SQL statement")

// ValidationError carries the user-facing status of a rejected statement.
type ValidationError struct {
	Status string
}

func (e *ValidationError) Error() string { return e.Status }

func (e *ValidationError) Unwrap() error { return ErrNotSQL }

var (
	writeVerbs    = []string{"SELECT", "UPDATE", "INSERT", "DELETE", "WITH"}
	readOnlyVerbs = []string{"SELECT", "WITH"}
)

var naturalLanguagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bIn \d{4}, a total of\b`),
	regexp.MustCompile(`(?i)\bThis is a significant\b`),
	regexp.MustCompile(`(?i)\bThe results show\b`),
	regexp.MustCompile(`(?i)\bBased on the data\b`),
	regexp.MustCompile(`(?i)\bLooking at the\b`),
}

// Validate rejects text that does not start with an allowed verb or reads like prose.
// The returned error is a *ValidationError wrapping ErrNotSQL.
func (p *Pipeline) Validate(sql string) error {
	return validate(sql, p.cfg.ReadOnly)
}

func validate(sql string, readOnly bool) error {
	verbs := writeVerbs
	if readOnly {
		verbs = readOnlyVerbs
	}
	if !hasPrefixFold(strings.TrimSpace(sql), verbs) {
		return &ValidationError{Status: fmt.Sprintf("Error: Received non-SQL input: %s...", truncate(sql, 100))}
	}
	for _, re := range naturalLanguagePatterns {
		if re.MatchString(sql) {
			return &ValidationError{Status: fmt.Sprintf("Error: Input appears to be natural language, not SQL: %s...", truncate(sql, 100))}
		}
	}
	return nil
}

// ReadOnlyStatement reports whether sql starts with SELECT or WITH.
func ReadOnlyStatement(sql string) bool {
	return hasPrefixFold(strings.TrimSpace(sql), readOnlyVerbs)
}
