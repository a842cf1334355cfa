package io

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

func readRecords(path string, comma rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to open file: %w", err)
	}
	defer f.Close()

	csvReader := csv.NewReader(f)
	csvReader.Comma = comma
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("Failed to parse %s: %w", path, err)
	}

	return records, nil
}

// CSVColumn returns the values of the named column of a delimited file with a header line
func CSVColumn(path string, comma rune, name string) ([]string, error) {
	records, err := readRecords(path, comma)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty table", path)
	}

	col := -1
	for i, field := range records[0] {
		if strings.EqualFold(strings.TrimSpace(field), name) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%s: no column %q", path, name)
	}

	return column(records[1:], col, path)
}

// CSVtoStrings returns column col of a delimited file without a header line
func CSVtoStrings(path string, comma rune, col int) ([]string, error) {
	records, err := readRecords(path, comma)
	if err != nil {
		return nil, err
	}

	return column(records, col, path)
}

func column(records [][]string, col int, path string) ([]string, error) {
	values := make([]string, 0, len(records))
	for i, record := range records {
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if col >= len(record) {
			return nil, fmt.Errorf("%s: line %d has %d fields, want column %d", path, i+1, len(record), col)
		}
		values = append(values, strings.TrimSpace(record[col]))
	}

	return values, nil
}
