package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/evidence-cli/internal/model"
)

var testFindings = []model.Finding{
	{
		Number:             1,
		Label:              "1",
		Criteria:           "Sleep duration",
		Value:              "Eight hours improved recall by 12%",
		EvidenceLevel:      "2",
		MethodologyQuality: "High, randomized",
		Importance:         "Supports sleep hygiene guidance",
		Source:             "[doi: 10.1000/s1](https://doi.org/10.1000/s1)",
	},
	{
		Number:             2,
		Criteria:           "Caffeine timing",
		Value:              "Late intake \"reduced\" sleep quality",
		EvidenceLevel:      "Not determined",
		MethodologyQuality: "Not assessed",
		Importance:         "Not stated",
		Source:             "Not cited",
	},
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"csv": FormatCSV, ".XLSX": FormatXLSX, " json ": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testFindings))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"1", "Sleep duration", "Eight hours improved recall by 12%", "2", "High, randomized", "Supports sleep hygiene guidance", "[doi: 10.1000/s1](https://doi.org/10.1000/s1)"}, rows[1])
	assert.Equal(t, `Late intake "reduced" sleep quality`, rows[2][2])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "Key Finding Number,Criteria,Value,Evidence Level,Methodology Quality,Importance,Source\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, testFindings))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	header := make([]string, 0, len(Columns))
	for _, c := range sheet.Rows[0].Cells {
		header = append(header, c.String())
	}
	assert.Equal(t, Columns, header)
	assert.Equal(t, "1", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "Sleep duration", sheet.Rows[1].Cells[1].String())
	assert.Equal(t, "Not cited", sheet.Rows[2].Cells[6].String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, testFindings))

	var got []model.Finding
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, testFindings, got)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.csv", "out.xlsx", "out.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, testFindings))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	err := WriteFile(filepath.Join(dir, "out.txt"), testFindings)
	require.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", FormatJSON.ContentType())
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
}
