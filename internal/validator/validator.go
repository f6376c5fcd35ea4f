// Package validator performs safety and structure checks on generated
// SQL before anything is allowed to execute it. Blocking checks reject
// the statement outright; advisory checks only attach warnings.
package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// deniedKeywords are statement types that must never reach the
// executor. Matched as whole words, case-insensitive.
var deniedKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "ALTER", "CREATE",
	"INSERT", "UPDATE", "GRANT", "REVOKE",
	"EXEC", "EXECUTE", "CALL", "MERGE",
}

var (
	wordPattern            = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	tablePattern           = regexp.MustCompile(`(?i)(?:FROM|JOIN)\s+([A-Za-z_][A-Za-z0-9_.]*)`)
	commentPattern         = regexp.MustCompile(`--|/\*`)
	stackedStmtPattern     = regexp.MustCompile(`;\s*\S`)
	orTruePattern          = regexp.MustCompile(`(?i)\bOR\s+'[^']*'\s*=\s*'[^']*'`)
	orNumericTruePattern   = regexp.MustCompile(`(?i)\bOR\s+\d+\s*=\s*\d+`)
	unionProbePattern      = regexp.MustCompile(`(?i)\bUNION\b[\s(]*SELECT\b`)
	systemCatalogPattern   = regexp.MustCompile(`(?i)\binformation_schema\b|\bpg_catalog\b`)
	joinPattern            = regexp.MustCompile(`(?i)\bJOIN\b`)
	aggregatePattern       = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)
	selectStarPattern      = regexp.MustCompile(`(?i)SELECT\s+\*`)
	limitPattern           = regexp.MustCompile(`(?i)\b(LIMIT\s+\d+|TOP\s+\d+|FETCH\s+FIRST)\b`)
)

// ValidationResult reports whether a statement may execute and why
// not. Warnings are advisory and never block.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// QueryInfo summarizes the structure of a statement for response
// metadata and complexity reporting.
type QueryInfo struct {
	Tables         []string `json:"tables"`
	HasJoins       bool     `json:"has_joins"`
	HasAggregation bool     `json:"has_aggregation"`
	HasSubquery    bool     `json:"has_subquery"`
	HasGroupBy     bool     `json:"has_group_by"`
	Complexity     string   `json:"complexity"`
}

type Validator struct {
	// MaxLength bounds accepted statement length in bytes. Zero
	// disables the check.
	MaxLength int
}

func New(maxLength int) *Validator {
	return &Validator{MaxLength: maxLength}
}

// Validate runs the blocking checks in order and stops at the first
// failure, then collects advisory warnings for statements that passed.
func (v *Validator) Validate(sql string) ValidationResult {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return invalid("query is empty")
	}
	if v.MaxLength > 0 && len(trimmed) > v.MaxLength {
		return invalid(fmt.Sprintf("query exceeds maximum length of %d characters", v.MaxLength))
	}

	// The denylist runs before the statement-type check so a
	// mutating statement is reported as prohibited rather than as
	// merely non-SELECT.
	if keyword, found := firstDeniedKeyword(trimmed); found {
		return invalid(fmt.Sprintf("statement contains prohibited keyword: %s", keyword))
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return invalid("only SELECT and WITH statements are allowed")
	}

	if !balancedParens(trimmed) {
		return invalid("unbalanced parentheses")
	}

	return ValidationResult{Valid: true, Warnings: advisoryWarnings(trimmed)}
}

func invalid(message string) ValidationResult {
	return ValidationResult{Valid: false, Errors: []string{message}}
}

func firstDeniedKeyword(sql string) (string, bool) {
	denied := make(map[string]struct{}, len(deniedKeywords))
	for _, keyword := range deniedKeywords {
		denied[keyword] = struct{}{}
	}
	for _, word := range wordPattern.FindAllString(sql, -1) {
		upper := strings.ToUpper(word)
		if _, ok := denied[upper]; ok {
			return upper, true
		}
	}
	return "", false
}

func balancedParens(sql string) bool {
	depth := 0
	inSingle := false
	inDouble := false
	for _, r := range sql {
		switch {
		case inSingle:
			if r == '\'' {
				inSingle = false
			}
		case inDouble:
			if r == '"' {
				inDouble = false
			}
		case r == '\'':
			inSingle = true
		case r == '"':
			inDouble = true
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func advisoryWarnings(sql string) []string {
	var warnings []string
	if commentPattern.MatchString(sql) {
		warnings = append(warnings, "query contains SQL comments")
	}
	if stackedStmtPattern.MatchString(sql) {
		warnings = append(warnings, "query appears to contain multiple statements")
	}
	if orTruePattern.MatchString(sql) || orNumericTruePattern.MatchString(sql) {
		warnings = append(warnings, "query contains a suspicious always-true condition")
	}
	if unionProbePattern.MatchString(sql) {
		warnings = append(warnings, "query contains a UNION SELECT pattern; review for injection risk")
	}
	if systemCatalogPattern.MatchString(sql) {
		warnings = append(warnings, "query reads system catalog tables; review for injection risk")
	}
	if !limitPattern.MatchString(sql) {
		warnings = append(warnings, "query has no row limit; large result sets may be slow")
	}
	if selectStarPattern.MatchString(sql) {
		warnings = append(warnings, "SELECT * returns all columns; prefer an explicit column list")
	}
	return warnings
}

// Info derives structural metadata from a statement. It never fails;
// unparseable input just yields an empty summary.
func (v *Validator) Info(sql string) QueryInfo {
	upper := strings.ToUpper(sql)
	selectCount := strings.Count(upper, "SELECT")

	joinCount := len(joinPattern.FindAllString(sql, -1))
	tables := extractTables(sql)
	info := QueryInfo{
		Tables:         tables,
		HasJoins:       joinCount > 0,
		HasAggregation: aggregatePattern.MatchString(sql),
		HasSubquery:    selectCount > 1,
		HasGroupBy:     strings.Contains(upper, "GROUP BY"),
	}

	score := 2 * joinCount
	if info.HasSubquery {
		score += 3
	}
	if info.HasGroupBy {
		score += 2
	}
	if info.HasAggregation {
		score++
	}
	info.Complexity = complexityLabel(score)
	return info
}

func complexityLabel(score int) string {
	switch {
	case score == 0:
		return "Simple"
	case score <= 3:
		return "Moderate"
	case score <= 6:
		return "Complex"
	default:
		return "Very Complex"
	}
}

func extractTables(sql string) []string {
	seen := map[string]struct{}{}
	var tables []string
	for _, match := range tablePattern.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(match[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// SuggestLimit appends a LIMIT clause when the statement has no row
// bound of its own. Statements that already limit rows pass through
// unchanged.
func SuggestLimit(sql string, limit int) string {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" || limit <= 0 {
		return sql
	}
	if limitPattern.MatchString(trimmed) {
		return trimmed
	}
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	return fmt.Sprintf("%s LIMIT %d", trimmed, limit)
}
