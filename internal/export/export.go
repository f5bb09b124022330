package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/fyerfyer/doc-extract/internal/listing"
)

// SheetName is the worksheet the xlsx export writes to
const SheetName = "Properties"

// Exporter writes a result table in one file format
type Exporter interface {
	Export(w io.Writer, table *listing.ResultTable) error
	ContentType() string
	Extension() string
}

// NewExporter returns the exporter for "xlsx" or "csv"
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "xlsx", "":
		return XLSXExporter{}, nil
	case "csv":
		return CSVExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// XLSXExporter writes one header row and one row per record
type XLSXExporter struct{}

// ContentType returns the xlsx MIME type
func (XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension returns ".xlsx"
func (XLSXExporter) Extension() string {
	return ".xlsx"
}

// Export writes the workbook to w
func (XLSXExporter) Export(w io.Writer, table *listing.ResultTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(listing.Columns))
	for i, c := range listing.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, record := range table.Rows() {
		values := record.Values()
		row := make([]interface{}, len(values))
		for j, v := range values {
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// CSVExporter writes the same columns as comma separated values
type CSVExporter struct{}

// ContentType returns the csv MIME type
func (CSVExporter) ContentType() string {
	return "text/csv"
}

// Extension returns ".csv"
func (CSVExporter) Extension() string {
	return ".csv"
}

// Export writes the header and rows to w
func (CSVExporter) Export(w io.Writer, table *listing.ResultTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(listing.Columns); err != nil {
		return err
	}
	for _, record := range table.Rows() {
		if err := cw.Write(record.Values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
