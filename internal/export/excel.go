// Package export renders cached entities as xlsx workbooks.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"routemaster/internal/domain"

	"github.com/xuri/excelize/v2"
)

// column header plus the width it is rendered with
type column struct {
	header string
	width  float64
}

var contactColumns = []column{
	{"Customer ID", 15},
	{"First Name", 18},
	{"Last Name", 18},
	{"Email", 28},
	{"Phone", 18},
	{"Street", 24},
	{"House Number", 12},
	{"Zip", 8},
	{"City", 18},
	{"Latitude", 12},
	{"Longitude", 12},
}

var jobColumns = []column{
	{"Job ID", 38},
	{"Contact ID", 38},
	{"Date", 12},
	{"State", 12},
	{"Priority", 10},
	{"Description", 30},
	{"Onsite Minutes", 14},
	{"Time Windows", 24},
	{"Notes", 30},
}

// ContactsWorkbook returns an xlsx file with one row per contact.
func ContactsWorkbook(contacts []domain.Contact) ([]byte, error) {
	rows := make([][]any, len(contacts))
	for i, c := range contacts {
		rows[i] = []any{
			c.CustomerID,
			c.FirstName,
			c.LastName,
			c.Email,
			c.Phone,
			c.Address.Street,
			c.Address.HouseNumber,
			zipValue(c.Address.Zip),
			c.Address.City,
			coordinate(c.Address.Latitude),
			coordinate(c.Address.Longitude),
		}
	}
	return workbook("Contacts", contactColumns, rows)
}

// JobsWorkbook returns an xlsx file with one row per job.
func JobsWorkbook(jobs []domain.Job) ([]byte, error) {
	rows := make([][]any, len(jobs))
	for i, j := range jobs {
		windows := make([]string, len(j.TimeWindows))
		for k, w := range j.TimeWindows {
			windows[k] = w.StartTime + "-" + w.EndTime
		}
		rows[i] = []any{
			j.ID,
			j.ContactID,
			j.OnDate,
			string(j.State),
			j.Priority,
			j.Description,
			j.EstimatedOnsiteDurationInMinutes,
			strings.Join(windows, ", "),
			j.Notes,
		}
	}
	return workbook("Jobs", jobColumns, rows)
}

func zipValue(zip int) any {
	if zip == 0 {
		return ""
	}
	return strconv.Itoa(zip)
}

func coordinate(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func workbook(sheet string, columns []column, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open; every exit path closes it explicitly

	index, err := f.NewSheet(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, col.header); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header cell %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetColWidth(sheet, name, name, col.width); err != nil {
			f.Close()
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}
