// Package export writes extracted findings as CSV, XLSX or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/evidence-cli/internal/model"
)

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Key Findings"

// Columns is the header row shared by the tabular formats.
var Columns = []string{
	"Key Finding Number",
	"Criteria",
	"Value",
	"Evidence Level",
	"Methodology Quality",
	"Importance",
	"Source",
}

// colWidths are XLSX column widths, in characters, matching Columns.
var colWidths = []float64{12, 30, 50, 16, 30, 40, 50}

// ParseFormat parses a format name such as "csv" or ".XLSX".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	switch f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	}
	return "", eris.Errorf("export: unsupported format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Write encodes findings to w in format f.
func Write(w io.Writer, f Format, findings []model.Finding) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, findings)
	case FormatXLSX:
		return WriteXLSX(w, findings)
	case FormatJSON:
		return WriteJSON(w, findings)
	}
	return eris.Errorf("export: unsupported format %q", f)
}

// WriteFile writes findings to path, choosing the format from its extension.
func WriteFile(path string, findings []model.Finding) error {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Write(out, f, findings); err != nil {
		_ = out.Close()
		return err
	}
	return eris.Wrapf(out.Close(), "export: close %s", path)
}

func record(f model.Finding) []string {
	return []string{
		strconv.Itoa(f.Number),
		f.Criteria,
		f.Value,
		f.EvidenceLevel,
		f.MethodologyQuality,
		f.Importance,
		f.Source,
	}
}

// WriteCSV writes a header row and one row per finding.
func WriteCSV(w io.Writer, findings []model.Finding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, f := range findings {
		if err := cw.Write(record(f)); err != nil {
			return eris.Wrapf(err, "export: write csv row %d", f.Number)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a single "Key Findings" sheet with a bold header row.
func WriteXLSX(w io.Writer, findings []model.Finding) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	style := xlsx.NewStyle()
	style.Font.Bold = true
	style.ApplyFont = true
	for _, col := range Columns {
		cell := header.AddCell()
		cell.SetString(col)
		cell.SetStyle(style)
	}

	for _, f := range findings {
		row := sheet.AddRow()
		num := row.AddCell()
		num.SetInt(f.Number)
		for _, v := range record(f)[1:] {
			row.AddCell().SetString(v)
		}
	}

	for i, width := range colWidths {
		sheet.SetColWidth(i, i, width)
	}

	return eris.Wrap(file.Write(w), "export: write xlsx")
}

// WriteJSON writes findings as an indented JSON array. A nil slice is
// written as [].
func WriteJSON(w io.Writer, findings []model.Finding) error {
	if findings == nil {
		findings = []model.Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(findings), "export: write json")
}
