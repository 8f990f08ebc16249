package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/model"
)

func editFixture(t *testing.T) *Result {
	t.Helper()
	result, err := Compare([]model.SheetResult{
		sheet("Sheet1",
			rec(2, model.FieldName, "张三", model.FieldDisabilityNo, "X1", model.FieldPhone, "111"),
			rec(3, model.FieldName, "李四", model.FieldDisabilityNo, "X2"),
		),
		sheet("Sheet2", rec(2, model.FieldName, "张三", model.FieldDisabilityNo, "X1", model.FieldPhone, "222")),
	})
	require.NoError(t, err)
	return result
}

func TestEditField_RecomputesDerivedState(t *testing.T) {
	t.Parallel()

	before := editFixture(t)
	g, _ := before.Group("张三_X1")
	require.True(t, g.HasDiff())
	require.Equal(t, 1, before.Stats.WithDiffCount)

	after, err := EditField(before, "张三_X1", "Sheet2", model.FieldPhone, "111")
	require.NoError(t, err)

	g, ok := after.Group("张三_X1")
	require.True(t, ok)
	assert.False(t, g.HasDiff())
	assert.Equal(t, "111", g.PerSheet["Sheet2"].Get(model.FieldPhone))
	assert.Equal(t, 0, after.Stats.WithDiffCount)

	// 原结果保持不变
	orig, _ := before.Group("张三_X1")
	assert.Equal(t, "222", orig.PerSheet["Sheet2"].Get(model.FieldPhone))
	assert.Equal(t, 1, before.Stats.WithDiffCount)
}

func TestEditField_AddsCompleteness(t *testing.T) {
	t.Parallel()

	before := editFixture(t)
	g, _ := before.Group("李四_X2")
	require.Equal(t, 2, g.Completeness)

	after, err := EditField(before, "李四_X2", "Sheet1", model.FieldIDCard, "110101199001011234")
	require.NoError(t, err)

	g, _ = after.Group("李四_X2")
	assert.Equal(t, 3, g.Completeness)
	assert.InDelta(t, 3.0, after.Stats.AvgCompleteness, 1e-9)
}

func TestEditField_IdentityFieldKeepsKey(t *testing.T) {
	t.Parallel()

	after, err := EditField(editFixture(t), "张三_X1", "Sheet1", model.FieldName, "张叁")
	require.NoError(t, err)

	g, ok := after.Group("张三_X1")
	require.True(t, ok)
	assert.Equal(t, "张叁", g.PerSheet["Sheet1"].Get(model.FieldName))
	assert.Equal(t, []string{"张叁", "张三"}, g.FieldDisagreements[model.FieldName])
}

func TestEditField_Errors(t *testing.T) {
	t.Parallel()

	result := editFixture(t)

	_, err := EditField(result, "王五_X9", "Sheet1", model.FieldPhone, "1")
	assert.True(t, apperr.HasCode(err, apperr.CodeGroupNotFound))

	_, err = EditField(result, "李四_X2", "Sheet2", model.FieldPhone, "1")
	assert.True(t, apperr.HasCode(err, apperr.CodeSheetNotFound))

	_, err = EditField(result, "李四_X2", "Sheet1", "籍贯", "1")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	_, err = EditField(nil, "李四_X2", "Sheet1", model.FieldPhone, "1")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}
