package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// resolveFormat picks the explicit format, else a table on terminals and
// JSON when piped.
func resolveFormat(explicit string, out io.Writer) (string, error) {
	switch f := strings.ToLower(explicit); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	case "":
		if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			return formatTable, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("invalid format %q: must be one of table, json, yaml", explicit)
	}
}

type column[T any] struct {
	header string
	value  func(T) string
}

func render[T any](w io.Writer, format string, records []T, cols []column[T]) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []T{}
		}
		return enc.Encode(records)
	case formatYAML:
		// Round-trip through JSON so YAML keys match the API field names.
		data, err := json.Marshal(records)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		return yaml.NewEncoder(w).Encode(generic)
	}

	table := tablewriter.NewTable(w)
	headers := make([]any, len(cols))
	for i, c := range cols {
		headers[i] = c.header
	}
	table.Header(headers...)
	for _, r := range records {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = c.value(r)
		}
		if err := table.Append(row...); err != nil {
			return err
		}
	}
	return table.Render()
}

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// money renders whole dollars with thousands separators.
func money(v float64) string {
	if v == 0 {
		return "-"
	}
	return printer.Sprintf("$%.0f", v)
}

// label turns an enum value like "under_contract" into "Under Contract".
func label(v string) string {
	if v == "" {
		return "-"
	}
	return titler.String(strings.ReplaceAll(v, "_", " "))
}

func date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}

func datePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return date(*t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
