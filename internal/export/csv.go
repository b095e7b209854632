// Package export renders the per-question rank table of a finished session and
// stores the rendered artifacts.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"live-quiz-service/internal/scoring"
)

// CSV writes one line per row: score,rank for every question in quiz order.
// There is no header and no name column.
func CSV(rows []scoring.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		record := make([]string, 0, 2*len(row.Cells))
		for _, c := range row.Cells {
			record = append(record, c.Score.StringFixed(1), strconv.Itoa(c.Rank))
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row for %s: %w", row.PlayerName, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
