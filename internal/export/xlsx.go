package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"
)

const sheetName = "Results"

// XLSX renders the same table as CSV with a header row and a leading player column.
func XLSX(quiz domain.Quiz, rows []scoring.Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create stream writer: %w", err)
	}

	header := []any{"Player"}
	for i := range quiz.Questions {
		header = append(header, fmt.Sprintf("Q%d score", i+1), fmt.Sprintf("Q%d rank", i+1))
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{sanitizeForExcel(row.PlayerName)}
		for _, c := range row.Cells {
			values = append(values, c.Score.InexactFloat64(), c.Rank)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitizeForExcel stops player names from being evaluated as formulas.
func sanitizeForExcel(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
