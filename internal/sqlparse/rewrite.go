package sqlparse

import (
	"fmt"
	"strings"
)

// InjectLimit appends a LIMIT clause to a SELECT statement that has no
// top-level LIMIT. Statements that already carry one are returned
// unchanged. The clause lands on its own line so a trailing line comment
// cannot swallow it, and the rewritten text is re-classified to prove
// the limit is really in effect before it is handed to the driver.
func InjectLimit(raw string, maxRows int) (string, error) {
	if maxRows <= 0 {
		return raw, nil
	}
	stmt, err := Classify(raw)
	if err != nil {
		return "", err
	}
	if stmt.HasLimit {
		return raw, nil
	}
	trimmed := strings.TrimRight(strings.TrimSpace(raw), ";")
	trimmed = strings.TrimRight(trimmed, " \t\n\r")
	rewritten := fmt.Sprintf("%s\nLIMIT %d", trimmed, maxRows)

	check, err := Classify(rewritten)
	if err != nil || !check.HasLimit {
		return "", fmt.Errorf("limit injection produced no top-level LIMIT")
	}
	return rewritten, nil
}
