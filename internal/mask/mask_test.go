package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlguard/internal/domain"
)

func sampleResult() *domain.ResultSet {
	return &domain.ResultSet{
		Columns: []string{"id", "email", "name"},
		Rows: [][]interface{}{
			{int64(1), "alice@example.com", "Alice"},
			{int64(2), "bob@example.com", "Bob"},
			{int64(3), nil, "Carol"},
		},
	}
}

func TestApply_PartialMask(t *testing.T) {
	out := Apply(sampleResult(), []string{"email"}, domain.MaskPartial, 0)
	require.Equal(t, 3, out.RowCount())
	assert.Equal(t, "a****m", out.Rows[0][1])
	assert.Equal(t, "b****m", out.Rows[1][1])
	assert.Nil(t, out.Rows[2][1], "NULL stays NULL")
	assert.Equal(t, "Alice", out.Rows[0][2], "unmasked columns pass through")
}

func TestApply_FullMask(t *testing.T) {
	out := Apply(sampleResult(), []string{"email"}, domain.MaskFull, 0)
	assert.Equal(t, Redacted, out.Rows[0][1])
	assert.Equal(t, Redacted, out.Rows[1][1])
}

func TestApply_ShortValuesNeverLeak(t *testing.T) {
	rs := &domain.ResultSet{
		Columns: []string{"pin"},
		Rows:    [][]interface{}{{"ab"}, {"a"}, {""}},
	}
	out := Apply(rs, []string{"pin"}, domain.MaskPartial, 0)
	for _, row := range out.Rows {
		assert.Equal(t, Redacted, row[0])
	}
}

func TestApply_NumericPIIIsMaskedAsString(t *testing.T) {
	rs := &domain.ResultSet{
		Columns: []string{"ssn"},
		Rows:    [][]interface{}{{int64(123456789)}},
	}
	out := Apply(rs, []string{"ssn"}, domain.MaskPartial, 0)
	assert.Equal(t, "1****9", out.Rows[0][0])
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := sampleResult()
	_ = Apply(in, []string{"email"}, domain.MaskFull, 1)
	assert.Equal(t, "alice@example.com", in.Rows[0][1])
	assert.Equal(t, 3, in.RowCount())
}

func TestApply_RowCap(t *testing.T) {
	out := Apply(sampleResult(), nil, domain.MaskPartial, 2)
	assert.Equal(t, 2, out.RowCount())

	out = Apply(sampleResult(), nil, domain.MaskPartial, 0)
	assert.Equal(t, 3, out.RowCount(), "zero cap means uncapped")
}

func TestApply_ColumnMatchingIsCaseInsensitive(t *testing.T) {
	out := Apply(sampleResult(), []string{"EMAIL"}, domain.MaskFull, 0)
	assert.Equal(t, Redacted, out.Rows[0][1])
}

func TestApply_AbsentColumnsAreIgnored(t *testing.T) {
	out := Apply(sampleResult(), []string{"phone"}, domain.MaskFull, 0)
	assert.Equal(t, sampleResult().Rows, out.Rows)
}

func TestMaskedColumns_IntersectsWithResult(t *testing.T) {
	rs := sampleResult()
	assert.Equal(t, []string{"email"}, MaskedColumns(rs, []string{"email", "phone"}))
	assert.Empty(t, MaskedColumns(rs, []string{"phone"}))
	assert.Nil(t, MaskedColumns(nil, []string{"email"}))
}
