package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// maxResultRows bounds what is fed back into the summarisation prompt.
const maxResultRows = 200

var (
	fenceRe     = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)```")
	leadRe      = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)
	forbiddenRe = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE|RENAME|ATTACH|DETACH|SYSTEM|GRANT|REVOKE|KILL|OPTIMIZE)\b|\bINTO\s+OUTFILE\b`)
	qualifiedRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-z0-9_]+)\.([a-z0-9_]+)`)
	limitRe     = regexp.MustCompile(`(?i)\bLIMIT\s+\d+(\s*,\s*\d+)?\s*$`)
)

// sanitizeSQL pulls the statement out of a fenced block when the model
// wrapped it, then drops a trailing semicolon.
func sanitizeSQL(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	} else if rest, ok := strings.CutPrefix(strings.TrimSpace(s), "```"); ok {
		s = strings.TrimPrefix(strings.TrimSpace(rest), "sql")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, ";"))
}

// validateSQL accepts a single read-only statement over swap_outcomes.
func validateSQL(s, database string) error {
	if s == "" {
		return errors.New("empty SQL generated by LLM")
	}
	if !leadRe.MatchString(s) {
		return errors.New("only SELECT queries are allowed")
	}
	if kw := forbiddenRe.FindString(s); kw != "" {
		return fmt.Errorf("disallowed SQL keyword %q in generated query", strings.ToUpper(kw))
	}
	if strings.Contains(s, ";") {
		return errors.New("multiple statements are not allowed")
	}

	table := regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+(?:` + regexp.QuoteMeta(database) + `\.)?swap_outcomes\b`)
	if !table.MatchString(s) {
		return fmt.Errorf("query must target %s.swap_outcomes", database)
	}
	for _, m := range qualifiedRe.FindAllStringSubmatch(s, -1) {
		if !strings.EqualFold(m[1], database) || !strings.EqualFold(m[2], "swap_outcomes") {
			return fmt.Errorf("query may only read %s.swap_outcomes, not %s.%s", database, m[1], m[2])
		}
	}
	return nil
}

// withRowLimit appends a LIMIT when the statement does not end with one.
func withRowLimit(s string) string {
	if limitRe.MatchString(s) {
		return s
	}
	return fmt.Sprintf("%s LIMIT %d", s, maxResultRows)
}

// runQuery executes generated SQL under read-only session settings and
// returns at most maxResultRows rows as a JSON array.
func (a *Agent) runQuery(ctx context.Context, sqlQuery string) (string, error) {
	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"readonly":           2,
		"max_execution_time": 15,
	}))
	rows, err := a.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return "", fmt.Errorf("execute generated query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("read columns: %w", err)
	}

	out := make([]map[string]any, 0)
	for len(out) < maxResultRows && rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("scan row %d: %w", len(out), err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = cells[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate rows: %w", err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	return string(data), nil
}
