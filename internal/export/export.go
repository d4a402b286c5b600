// Package export renders history records as spreadsheet rows.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/persistorai/doctrail/internal/models"
)

const (
	sheetName = "History"
	pageSize  = 1000

	// MaxRows bounds one export.
	MaxRows = 100_000
)

// Header is the column layout shared by every format.
var Header = []string{
	"id", "created_at", "scope", "type", "chain", "action", "version",
	"modifier", "original", "modified", "tracked_changes",
}

// Lister pages through history views, newest first.
type Lister interface {
	ListHistory(ctx context.Context, q models.HistoryQuery) ([]models.HistoryView, bool, error)
}

// Write exports every record matching q to w in the given format. Rows
// beyond MaxRows are not written; truncated reports whether that happened.
func Write(ctx context.Context, src Lister, q models.HistoryQuery, format models.ExportFormat, w io.Writer) (rows int, truncated bool, err error) {
	views, truncated, err := collect(ctx, src, q)
	if err != nil {
		return 0, false, err
	}

	switch format {
	case models.ExportCSV:
		err = WriteCSV(w, views)
	case models.ExportXLSX:
		err = WriteXLSX(w, views)
	default:
		return 0, false, fmt.Errorf("%w: unsupported export format %q", models.ErrValidation, format)
	}

	return len(views), truncated, err
}

func collect(ctx context.Context, src Lister, q models.HistoryQuery) ([]models.HistoryView, bool, error) {
	q.Limit = pageSize
	q.Offset = 0

	var out []models.HistoryView

	for {
		page, hasMore, err := src.ListHistory(ctx, q)
		if err != nil {
			return nil, false, fmt.Errorf("listing history: %w", err)
		}

		out = append(out, page...)

		if len(out) >= MaxRows {
			return out[:MaxRows], hasMore || len(out) > MaxRows, nil
		}

		if !hasMore || len(page) == 0 {
			return out, false, nil
		}

		q.Offset += len(page)
	}
}

// Row flattens one view into Header order.
func Row(v *models.HistoryView) []string {
	return []string{
		v.ID.String(),
		v.CreatedAt.UTC().Format(time.RFC3339Nano),
		v.Scope,
		v.Type,
		v.Chain.String(),
		string(v.Action),
		fmt.Sprint(v.Version),
		v.Modifier,
		jsonCell(v.Original),
		jsonCell(v.Modified),
		jsonCell(v.TrackedChanges),
	}
}

func jsonCell(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(b)
}

// WriteCSV writes views as CSV with a header row.
func WriteCSV(w io.Writer, views []models.HistoryView) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for i := range views {
		if err := cw.Write(Row(&views[i])); err != nil {
			return fmt.Errorf("writing csv row %d: %w", i+1, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// WriteXLSX writes views as a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, views []models.HistoryView) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // in-memory workbook.

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("opening stream writer: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = excelize.Cell{StyleID: bold, Value: h}
	}

	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i := range views {
		cells := Row(&views[i])
		row := make([]any, len(cells))

		for j, c := range cells {
			row[j] = c
		}

		// Version stays numeric so it sorts in a spreadsheet.
		row[6] = views[i].Version

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flushing sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}

	return nil
}
