package models

import (
	"fmt"
	"strings"
)

// ExportFormat is a history export file format.
type ExportFormat string

const (
	ExportXLSX ExportFormat = "xlsx"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat validates s, defaulting to xlsx when empty.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return ExportXLSX, nil
	case ExportXLSX, ExportCSV:
		return f, nil
	default:
		return "", &ValidationError{Type: "export", Fields: []string{"format"}, Reason: fmt.Sprintf("unsupported format %q", s)}
	}
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportCSV {
		return "text/csv"
	}

	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Filename returns a download file name for the format.
func (f ExportFormat) Filename() string {
	return "history." + string(f)
}
