// Package tabular moves row tables in and out of CSV files. The batch core
// never touches files; it consumes and produces models.Row only.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gothamgeo/geoclient/internal/models"
)

// Read loads CSV content into header-keyed rows, returning the column order
// alongside so writers can reproduce it.
func Read(reader io.Reader) ([]models.Row, []string, error) {
	csvReader := csv.NewReader(reader)

	header, err := csvReader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("input has no header row")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header row: %w", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for idx, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, nil, fmt.Errorf("header column %d is empty", idx+1)
		}
		if seen[name] {
			return nil, nil, fmt.Errorf("duplicate header column %q", name)
		}
		seen[name] = true
		columns[idx] = name
	}

	var rows []models.Row
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row %d: %w", len(rows)+2, err)
		}

		row := make(models.Row, len(columns))
		for idx, column := range columns {
			row[column] = record[idx]
		}
		rows = append(rows, row)
	}

	return rows, columns, nil
}

// ReadFile loads a CSV file into header-keyed rows.
func ReadFile(path string) ([]models.Row, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return Read(file)
}

// Write emits rows as CSV in the given column order. Cells missing from a
// row are written as empty values.
func Write(writer io.Writer, rows models.Table, columns []string) error {
	csvWriter := csv.NewWriter(writer)

	if err := csvWriter.Write(columns); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	record := make([]string, len(columns))
	for idx, row := range rows {
		for i, column := range columns {
			record[i] = row[column]
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", idx+1, err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	return nil
}

// WriteFile emits rows as a CSV file, replacing an existing file at path.
func WriteFile(path string, rows models.Table, columns []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := Write(file, rows, columns); err != nil {
		file.Close()
		return err
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	return nil
}
