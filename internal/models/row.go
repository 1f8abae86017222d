package models

import "strings"

// ErrorColumn is the output column carrying the row-scoped error indicator.
// It is empty for rows that succeeded or had no match.
const ErrorColumn = "geocoding_error"

// Row represents one tabular record as a mapping from column name to cell
// value. Cells are always strings; a missing value is the empty string.
type Row map[string]string

// Table is an ordered sequence of rows sharing the same column set.
type Table []Row

// Get returns the trimmed value of the named column.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Has reports whether the named column holds a non-empty value.
func (r Row) Has(column string) bool {
	return r.Get(column) != ""
}
