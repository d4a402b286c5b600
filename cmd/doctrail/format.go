package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/persistorai/doctrail/client"
)

var stdout io.Writer = os.Stdout

func formatJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func formatTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			w := 0
			if i < len(widths) {
				w = widths[i]
			}
			parts[i] = fmt.Sprintf("%-*s", w, cell)
		}
		fmt.Fprintln(stdout, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	printRow(headers)
	seps := make([]string, len(headers))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	printRow(seps)
	for _, row := range rows {
		printRow(row)
	}
}

func formatQuiet(id string) {
	fmt.Fprintln(stdout, id)
}

// output writes v as JSON, or quietVal alone in quiet mode. Table mode
// falls back to JSON for values without a table rendering.
func output(v any, quietVal string) error {
	if flagFmt == "quiet" {
		formatQuiet(quietVal)
		return nil
	}
	return formatJSON(v)
}

// cell renders an attribute value compactly for table output.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func outputDocuments(docs []client.Document) error {
	switch flagFmt {
	case "table":
		rows := make([][]string, 0, len(docs))
		for _, d := range docs {
			rows = append(rows, []string{d.Type, d.ID, strconv.FormatInt(d.Revision, 10), d.UpdatedAt.Format("2006-01-02 15:04:05")})
		}
		formatTable([]string{"TYPE", "ID", "REVISION", "UPDATED"}, rows)
		return nil
	case "quiet":
		for _, d := range docs {
			formatQuiet(d.ID)
		}
		return nil
	default:
		return formatJSON(docs)
	}
}

// changesSummary renders tracked changes as "field: from -> to" pairs.
func changesSummary(changes map[string]client.FromTo) string {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		c := changes[k]
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", k, cell(c.From), cell(c.To)))
	}
	return strings.Join(parts, "; ")
}

func outputHistory(recs []client.HistoryRecord) error {
	switch flagFmt {
	case "table":
		rows := make([][]string, 0, len(recs))
		for i := range recs {
			r := &recs[i]
			rows = append(rows, []string{
				r.ID,
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.Action,
				r.ChainString(),
				strconv.FormatInt(r.Version, 10),
				r.Modifier,
				changesSummary(r.TrackedChanges),
			})
		}
		formatTable([]string{"ID", "CREATED", "ACTION", "CHAIN", "VERSION", "MODIFIER", "CHANGES"}, rows)
		return nil
	case "quiet":
		for _, r := range recs {
			formatQuiet(r.ID)
		}
		return nil
	default:
		return formatJSON(recs)
	}
}

func outputChanges(changes map[string]client.FromTo) error {
	if flagFmt != "table" {
		return formatJSON(changes)
	}

	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, cell(changes[k].From), cell(changes[k].To)})
	}
	formatTable([]string{"FIELD", "FROM", "TO"}, rows)
	return nil
}
