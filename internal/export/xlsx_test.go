package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf, Table{
		Columns: []string{"region", "revenue"},
		Rows:    [][]any{{"West", 500.5}, {"North", nil}},
		SQL:     "SELECT region, revenue FROM sales",
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(resultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"region", "revenue"}, rows[0])
	assert.Equal(t, []string{"West", "500.5"}, rows[1])
	assert.Equal(t, []string{"North"}, rows[2])

	q, err := f.GetCellValue(querySheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT region, revenue FROM sales", q)
}

func TestWriteXLSX_NoResult(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteXLSX(&buf, Table{}), ErrNoResult)
	assert.Zero(t, buf.Len())
}
