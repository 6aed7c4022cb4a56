package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/catalog"
)

// StaffRow is one parsed line of a roster sheet.
type StaffRow struct {
	Line           int
	StaffNo        string
	Name           string
	Email          string
	DepartmentCode string
}

// RowError reports why a roster line was not imported.
type RowError struct {
	Line    int    `json:"line"`
	StaffNo string `json:"staff_no,omitempty"`
	Error   string `json:"error"`
}

// ImportResult summarizes a roster import.
type ImportResult struct {
	Imported int        `json:"imported"`
	Errors   []RowError `json:"errors"`
}

var rosterColumns = []string{"staff_no", "name", "email", "department_code"}

// ReadStaffRows parses the first sheet of an XLSX workbook. The first row is
// a header naming the columns in any order; staff_no and name are required.
// Blank lines are skipped.
func ReadStaffRows(r io.Reader) ([]StaffRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("read workbook: %v", err))
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("read sheet: %v", err))
	}
	if len(rows) == 0 {
		return nil, apperrors.Validation("workbook is empty")
	}

	idx := make(map[string]int)
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range rosterColumns[:2] {
		if _, ok := idx[col]; !ok {
			return nil, apperrors.Validation(fmt.Sprintf("missing column %q", col))
		}
	}
	get := func(cells []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	var out []StaffRow
	for n, cells := range rows[1:] {
		sr := StaffRow{
			Line:           n + 2,
			StaffNo:        get(cells, "staff_no"),
			Name:           get(cells, "name"),
			Email:          get(cells, "email"),
			DepartmentCode: get(cells, "department_code"),
		}
		if sr.StaffNo == "" && sr.Name == "" && sr.Email == "" && sr.DepartmentCode == "" {
			continue
		}
		out = append(out, sr)
	}
	return out, nil
}

// StaffCreator creates staff members.
type StaffCreator interface {
	CreateStaff(ctx context.Context, st *attendance.Staff) error
}

// DepartmentFinder resolves department codes.
type DepartmentFinder interface {
	GetDepartmentByCode(ctx context.Context, code string) (*catalog.Department, error)
}

// ImportStaff creates a staff member per roster row. Row-level failures are
// collected; any other error aborts the import.
func ImportStaff(ctx context.Context, r io.Reader, staff StaffCreator, depts DepartmentFinder) (ImportResult, error) {
	rows, err := ReadStaffRows(r)
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Errors: []RowError{}}
	codes := make(map[string]string)
	for _, sr := range rows {
		st := &attendance.Staff{StaffNo: sr.StaffNo, Name: sr.Name, Email: sr.Email}
		if sr.DepartmentCode != "" {
			id, ok := codes[sr.DepartmentCode]
			if !ok {
				d, err := depts.GetDepartmentByCode(ctx, sr.DepartmentCode)
				if errors.Is(err, apperrors.ErrNotFound) {
					res.Errors = append(res.Errors, RowError{Line: sr.Line, StaffNo: sr.StaffNo, Error: "unknown department " + sr.DepartmentCode})
					continue
				}
				if err != nil {
					return res, err
				}
				id = d.ID
				codes[sr.DepartmentCode] = id
			}
			st.DepartmentID = &id
		}

		if err := staff.CreateStaff(ctx, st); err != nil {
			if !apperrors.Is(err, apperrors.ErrValidation, apperrors.ErrConflict) {
				return res, err
			}
			res.Errors = append(res.Errors, RowError{Line: sr.Line, StaffNo: sr.StaffNo, Error: err.Error()})
			continue
		}
		res.Imported++
	}
	return res, nil
}
