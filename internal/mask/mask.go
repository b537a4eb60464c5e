// Package mask redacts PII columns in result sets after execution.
package mask

import (
	"fmt"
	"strings"

	"sqlguard/internal/domain"
)

// Redacted is the constant token used for fully masked values and for
// values too short to mask partially without giving the original away.
const Redacted = "****"

// Apply returns a new result set with the named columns masked and the
// row count capped. The input is never mutated: audit and masking read
// the same rows, so an in-place rewrite would corrupt what gets logged.
//
// Columns absent from the result are ignored; masking only ever redacts
// what the result actually carries. A rowCap of 0 means uncapped. The
// cap is applied here even though the statement rewrite normally
// enforces it, covering execution paths that bypassed the rewrite.
func Apply(rs *domain.ResultSet, columns []string, mode domain.MaskingMode, rowCap int) *domain.ResultSet {
	if rs == nil {
		return nil
	}

	masked := make(map[int]bool, len(columns))
	for i, name := range rs.Columns {
		for _, c := range columns {
			if strings.EqualFold(name, c) {
				masked[i] = true
			}
		}
	}

	n := len(rs.Rows)
	if rowCap > 0 && n > rowCap {
		n = rowCap
	}

	out := &domain.ResultSet{
		Columns: append([]string(nil), rs.Columns...),
		Rows:    make([][]interface{}, n),
	}
	for i := 0; i < n; i++ {
		row := make([]interface{}, len(rs.Rows[i]))
		for j, v := range rs.Rows[i] {
			if masked[j] {
				row[j] = maskValue(v, mode)
			} else {
				row[j] = v
			}
		}
		out.Rows[i] = row
	}
	return out
}

// MaskedColumns returns the subset of the configured columns that are
// present in the result, in result-column order.
func MaskedColumns(rs *domain.ResultSet, columns []string) []string {
	if rs == nil {
		return nil
	}
	var out []string
	for _, name := range rs.Columns {
		for _, c := range columns {
			if strings.EqualFold(name, c) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// maskValue redacts a single value. NULLs stay NULL; everything else is
// rendered as a string first so numeric PII does not leak through type
// preservation.
func maskValue(v interface{}, mode domain.MaskingMode) interface{} {
	if v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	if mode == domain.MaskFull {
		return Redacted
	}
	// Partial keeps the first and last rune. The middle collapses to a
	// fixed-width token so the masked form does not reveal length.
	runes := []rune(s)
	if len(runes) <= 2 {
		return Redacted
	}
	return string(runes[0]) + Redacted + string(runes[len(runes)-1])
}
