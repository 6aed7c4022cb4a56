// Package export writes attendance history as CSV or XLSX and reads staff
// rosters from XLSX sheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"staffattend/internal/attendance"
)

// Format of an attendance export.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat accepts csv or xlsx; empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", CSV:
		return CSV, nil
	case XLSX:
		return XLSX, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

const sheetName = "Attendance"

var header = []string{
	"date", "staff_id", "staff_name", "status", "method",
	"check_in_at", "check_out_at", "confidence", "device_id", "notes",
}

func row(r attendance.Record) []string {
	return []string{
		r.Date,
		r.StaffID,
		r.StaffName,
		string(r.Status),
		string(r.Method),
		formatTime(r.CheckInAt),
		formatTime(r.CheckOutAt),
		formatConfidence(r.Confidence),
		r.DeviceID,
		r.Notes,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatConfidence(c *float64) string {
	if c == nil {
		return ""
	}
	return strconv.FormatFloat(*c, 'f', 4, 64)
}

// Write encodes records in format f.
func Write(w io.Writer, f Format, records []attendance.Record) error {
	if f == XLSX {
		return WriteXLSX(w, records)
	}
	return WriteCSV(w, records)
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []attendance.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes records to a single-sheet workbook.
func WriteXLSX(w io.Writer, records []attendance.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	def := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(def, sheetName); err != nil {
		return err
	}
	if err := setRow(f, 1, header); err != nil {
		return err
	}
	for i, r := range records {
		if err := setRow(f, i+2, row(r)); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, line int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return f.SetSheetRow(sheetName, cell, &vals)
}
