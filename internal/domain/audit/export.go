package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var exportHeader = []string{"changed_at", "employee", "old_role", "new_role", "changed_by", "reason"}

// BuildRows resolves ids through the supplied lookups; unknown ids are kept verbatim.
func BuildRows(entries []Entry, employeeName, roleName, userName func(string) string) []Row {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		oldRole := ""
		if e.OldRoleID != nil {
			oldRole = resolve(roleName, *e.OldRoleID)
		}
		rows = append(rows, Row{
			ChangedAt: e.ChangedAt,
			Employee:  resolve(employeeName, e.EmployeeID),
			OldRole:   oldRole,
			NewRole:   resolve(roleName, e.NewRoleID),
			ChangedBy: resolve(userName, e.ChangedBy),
			Reason:    e.Reason,
		})
	}
	return rows
}

func resolve(fn func(string) string, id string) string {
	if fn == nil {
		return id
	}
	if name := fn(id); name != "" {
		return name
	}
	return id
}

func (r Row) fields() []string {
	return []string{r.ChangedAt.UTC().Format(exportTimeLayout), r.Employee, r.OldRole, r.NewRole, r.ChangedBy, r.Reason}
}

func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row.fields()); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WritePDF(w io.Writer, title string, generatedAt time.Time, rows []Row) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, title)
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s, %d entries", generatedAt.UTC().Format(exportTimeLayout), len(rows)))
	pdf.Ln(10)

	widths := []float64{38, 55, 35, 35, 45, 69}
	pdf.SetFont("Helvetica", "B", 9)
	for i, col := range exportHeader {
		pdf.CellFormat(widths[i], 7, col, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, row := range rows {
		for i, value := range row.fields() {
			pdf.CellFormat(widths[i], 6, tr(truncate(value, 48)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf.Output(w)
}

func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Role changes"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	for i, col := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, value := range row.fields() {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	for i := range exportHeader {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, 22); err != nil {
			return err
		}
	}
	_, err = f.WriteTo(w)
	return err
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
