package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// BuildLogXLSX renders a site's daily logs as a workbook with one row per entry.
func BuildLogXLSX(siteID string, logs []status.DailyStatusLog) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "status_log"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(sheet, "A1", "Site")
	_ = f.SetCellValue(sheet, "B1", siteID)
	_ = f.SetCellValue(sheet, "A3", "Date")
	_ = f.SetCellValue(sheet, "B3", "Time (UTC)")
	_ = f.SetCellValue(sheet, "C3", "Status")
	_ = f.SetCellValue(sheet, "D3", "Reason")

	row := 4
	for _, log := range logs {
		for _, entry := range log.Entries {
			_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), log.Date)
			_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), entry.Timestamp.UTC().Format(time.RFC3339))
			_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), string(entry.Status))
			_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), entry.Reason)
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
