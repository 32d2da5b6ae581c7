package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/simbench/internal/config"
	"github.com/signalnine/simbench/internal/result"
)

// Formats lists the supported output formats.
var Formats = config.Formats

// Prefix is the fixed leading column order. Every other column follows
// in lexicographic order.
var Prefix = []string{
	result.ColCategory,
	result.ColEngine,
	result.ColModelType,
	result.ColPopulation,
	result.ColWorlds,
	result.ColWorldMode,
	result.ColModelFile,
	result.ColSteps,
	result.ColScale,
	"SimulationTime_s",
	"StepsPerSecond",
	"TimePerStep_us",
	"DOF",
	"Profiler_step_us",
	"Profiler_constraint_us",
	"Profiler_collision_us",
	result.ColError,
	result.ColDiagnostic,
}

// Table is a rendered report: a header and one line per row.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Columns returns Prefix followed by the rest of fields, sorted.
func Columns(fields *result.FieldRegistry) []string {
	cols := append([]string(nil), Prefix...)
	inPrefix := make(map[string]bool, len(Prefix))
	for _, c := range Prefix {
		inPrefix[c] = true
	}
	for _, k := range fields.Keys() {
		if !inPrefix[k] {
			cols = append(cols, k)
		}
	}
	return cols
}

// Build lays rows out under Columns(fields). Absent cells hold missing.
func Build(rows []*result.Row, fields *result.FieldRegistry, missing string) *Table {
	t := &Table{Columns: Columns(fields)}
	for _, r := range rows {
		cells := r.Cells()
		line := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			v, ok := cells[c]
			if !ok {
				v = missing
			}
			line[i] = v
		}
		t.Rows = append(t.Rows, line)
	}
	return t
}

// FromAggregator builds the table for everything collected so far.
func FromAggregator(agg *result.Aggregator, missing string) *Table {
	return Build(agg.Rows(), agg.Fields(), missing)
}

// Generate reloads the rows stored under runDir and renders them.
func Generate(runDir, format, missing string, w io.Writer) error {
	rows, err := result.LoadRows(runDir)
	if err != nil {
		return fmt.Errorf("loading rows: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no rows found in %s", runDir)
	}
	agg := result.NewAggregator()
	for _, r := range rows {
		agg.Add(r)
	}
	return Write(FromAggregator(agg, missing), format, w)
}

func Write(t *Table, format string, w io.Writer) error {
	switch format {
	case "csv":
		return writeCSV(t, w)
	case "markdown":
		return writeMarkdown(t, w)
	case "json":
		return writeJSON(t, w)
	case "table", "":
		return writeTable(t, w)
	default:
		return config.CheckFormat(format)
	}
}

// WriteCSVFile writes the CSV artifact to path, creating parent dirs.
func WriteCSVFile(t *Table, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	var buf bytes.Buffer
	if err := writeCSV(t, &buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeCSV(t *Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func writeTable(t *Table, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = oneLine(c)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeMarkdown(t *Table, w io.Writer) error {
	fmt.Fprintf(w, "| %s |\n", strings.Join(t.Columns, " | "))
	fmt.Fprintf(w, "|%s\n", strings.Repeat("---|", len(t.Columns)))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(oneLine(c), "|", `\|`)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// writeJSON emits an array of objects whose keys keep column order.
func writeJSON(t *Table, w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  {")
		for j, col := range t.Columns {
			if j > 0 {
				buf.WriteString(",")
			}
			k, err := json.Marshal(col)
			if err != nil {
				return err
			}
			v, err := json.Marshal(row[j])
			if err != nil {
				return err
			}
			buf.WriteString("\n    ")
			buf.Write(k)
			buf.WriteString(": ")
			buf.Write(v)
		}
		buf.WriteString("\n  }")
	}
	if len(t.Rows) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")
	_, err := w.Write(buf.Bytes())
	return err
}
