package table

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

const survey = "\ufeffName,Q1,Q1 Eval\n" +
	"ann,great movie,Positive\n" +
	"bob,\"terrible, really\",N/A\n" +
	"cy,,\n"

func TestRead(t *testing.T) {
	tbl, err := Read(strings.NewReader(survey))
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Q1", "Q1 Eval"}, tbl.Header(), "BOM is stripped")
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, "terrible, really", tbl.Cell(1, "Q1"))
	assert.Equal(t, "", tbl.Cell(2, "Q1"), "empty cells stay empty strings")
	assert.Equal(t, "N/A", tbl.Cell(1, "Q1 Eval"))
	assert.Equal(t, "", tbl.Cell(0, "missing"))
}

func TestRead_RaggedRows(t *testing.T) {
	tbl, err := Read(strings.NewReader("a,b,c\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "", ""}, tbl.Row(0))

	_, err = Read(strings.NewReader("a\n1,2\n"))
	assert.True(t, errors.IsValidation(err))

	_, err = Read(strings.NewReader(""))
	assert.True(t, errors.IsValidation(err))
}

func TestRequire(t *testing.T) {
	tbl, err := Read(strings.NewReader(survey))
	require.NoError(t, err)

	assert.NoError(t, tbl.Require("Q1", "Q1 Eval"))

	err = tbl.Require("Q1", "Q2", "Q3")
	require.True(t, errors.IsSchema(err))
	assert.Contains(t, err.Error(), `"Q2"`)
}

func TestWithColumns_CopyWithAdditions(t *testing.T) {
	tbl, err := Read(strings.NewReader(survey))
	require.NoError(t, err)

	out := tbl.WithColumns("Q1 Result", "Q1 Score", "Q1")
	assert.Equal(t, []string{"Name", "Q1", "Q1 Eval", "Q1 Result", "Q1 Score"}, out.Header())
	require.NoError(t, out.Set(0, "Q1 Result", "Positive"))
	require.NoError(t, out.Set(0, "Q1", "changed"))

	// the source is untouched
	assert.Equal(t, []string{"Name", "Q1", "Q1 Eval"}, tbl.Header())
	assert.Equal(t, "great movie", tbl.Cell(0, "Q1"))
	_, ok := tbl.Column("Q1 Result")
	assert.False(t, ok)

	assert.Equal(t, "Positive", out.Cell(0, "Q1 Result"))
	assert.Equal(t, "", out.Cell(1, "Q1 Score"))
}

func TestSet_Errors(t *testing.T) {
	tbl, err := New([]string{"a"}, [][]string{{"1"}})
	require.NoError(t, err)
	assert.True(t, errors.IsSchema(tbl.Set(0, "b", "x")))
	assert.Error(t, tbl.Set(1, "a", "x"))
}

func TestWriteRead_PreservesOrder(t *testing.T) {
	tbl, err := Read(strings.NewReader(survey))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tbl.Write(&buf))
	assert.Equal(t, "Name,Q1,Q1 Eval\nann,great movie,Positive\nbob,\"terrible, really\",N/A\ncy,,\n", buf.String())

	path := filepath.Join(t.TempDir(), "out", "scored.csv")
	require.NoError(t, tbl.WriteFile(path))
	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Header(), back.Header())
	for i := range tbl.Len() {
		assert.Equal(t, tbl.Row(i), back.Row(i))
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, errors.IsConfiguration(err))
}
