package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadCSV reads CSV rows from r. The first record is the header.
func LoadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv: input is empty (no header row)")
	}

	headers := make([]string, len(records[0]))
	seen := make(map[string]bool, len(headers))
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			return nil, fmt.Errorf("csv: header column %d is empty", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("csv: duplicate header column %q", h)
		}
		seen[h] = true
		headers[i] = h
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(headers) {
			return nil, fmt.Errorf("csv: row %d has %d columns, expected %d", i+2, len(record), len(headers))
		}
		row := NewRow()
		for j, h := range headers {
			row.Set(h, ParseValue(record[j]))
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// LoadCSVFile opens path and loads it with LoadCSV.
func LoadCSVFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	rows, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// WriteCSV writes rows with the given columns as a header. Missing cells are
// written empty.
func WriteCSV(w io.Writer, columns []string, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			v, _ := row.Get(c)
			record[i] = v.Text
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
