package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/simbench/internal/report"
	"github.com/signalnine/simbench/internal/result"
)

func sampleRows() []*result.Row {
	ok := &result.Row{
		Seq: 1, Category: "ModelScaling", Engine: "mujoco", ModelType: "dense",
		Population: 1, Worlds: 1, ModelFile: "humanoid.xml", Steps: 1000,
		LaunchQueueScale: "not_applicable", RunID: "r1",
	}
	ok.SetMetrics(map[string]float64{"SimulationTime_s": 12.3, "TimePerStep_us": 45.6, "Zeta": 1})

	warp := &result.Row{
		Seq: 2, Category: "WorldScaling", Engine: "mujoco_warp", WorldMode: "batched",
		Population: 1, Worlds: 4, ModelFile: "humanoid.xml", Steps: 1000,
		LaunchQueueScale: "not_applicable", RunID: "r2",
	}
	warp.SetMetrics(map[string]float64{"StepsPerSecond": 1234567, "Alpha": 2})

	crash := &result.Row{
		Seq: 3, Category: "ModelScaling", Engine: "cuda_mujoco",
		Population: 8, Worlds: 1, ModelFile: "8_humanoids.xml", Steps: 500,
		LaunchQueueScale: "4x", RunID: "r3",
	}
	crash.Fail(result.NonZeroExit, "CUDA error | out of memory\nabort", 500)
	return []*result.Row{ok, warp, crash}
}

func sampleTable() *report.Table {
	agg := result.NewAggregator()
	for _, r := range sampleRows() {
		agg.Add(r)
	}
	return report.FromAggregator(agg, "N/A")
}

func TestColumnsPrefixThenSorted(t *testing.T) {
	tbl := sampleTable()
	n := len(report.Prefix)
	for i, c := range report.Prefix {
		if tbl.Columns[i] != c {
			t.Fatalf("column %d = %q, want %q", i, tbl.Columns[i], c)
		}
	}
	rest := strings.Join(tbl.Columns[n:], ",")
	if rest != "Alpha,RunID,Zeta" {
		t.Errorf("trailing columns = %s", rest)
	}
}

func TestColumnsAlwaysIncludePrefix(t *testing.T) {
	cols := report.Columns(result.NewFieldRegistry())
	if len(cols) != len(report.Prefix) {
		t.Errorf("got %d columns for an empty registry, want %d", len(cols), len(report.Prefix))
	}
}

func TestBuildFillsMissing(t *testing.T) {
	tbl := sampleTable()
	idx := map[string]int{}
	for i, c := range tbl.Columns {
		idx[c] = i
	}
	if got := tbl.Rows[0][idx["SimulationTime_s"]]; got != "12.3" {
		t.Errorf("SimulationTime_s = %q", got)
	}
	if got := tbl.Rows[0][idx["WorldMode"]]; got != "N/A" {
		t.Errorf("WorldMode on a model-scaling row = %q, want N/A", got)
	}
	if got := tbl.Rows[1][idx["StepsPerSecond"]]; got != "1234567" {
		t.Errorf("StepsPerSecond = %q", got)
	}
	if got := tbl.Rows[1][idx["Error"]]; got != "N/A" {
		t.Errorf("Error on a successful row = %q", got)
	}
	if got := tbl.Rows[2][idx["Error"]]; got != "NonZeroExit" {
		t.Errorf("Error = %q", got)
	}
	if got := tbl.Rows[2][idx["SimulationTime_s"]]; got != "N/A" {
		t.Errorf("failed row carries a metric: %q", got)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Write(sampleTable(), "csv", &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv back: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want header + 3", len(records))
	}
	if records[0][0] != "TestCategory" {
		t.Errorf("first header = %q", records[0][0])
	}
	if !strings.Contains(strings.Join(records[3], ","), "CUDA error | out of memory\nabort") {
		t.Error("diagnostic should survive csv quoting intact")
	}
}

func TestWriteMarkdownEscapesPipes(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Write(sampleTable(), "markdown", &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "|---|") {
		t.Errorf("separator = %q", lines[1])
	}
	if !strings.Contains(lines[4], `CUDA error \| out of memory abort`) {
		t.Errorf("last row = %q", lines[4])
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Write(sampleTable(), "", &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"TestCategory", "mujoco_warp", "8_humanoids.xml", "N/A"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q", want)
		}
	}
	if n := strings.Count(out, "\n"); n != 4 {
		t.Errorf("got %d lines, want 4", n)
	}
}

func TestWriteJSONKeepsColumnOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Write(sampleTable(), "json", &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var objs []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &objs); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	if len(objs) != 3 {
		t.Fatalf("got %d objects", len(objs))
	}
	if objs[2]["Error"] != "NonZeroExit" {
		t.Errorf("Error = %q", objs[2]["Error"])
	}
	out := buf.String()
	if strings.Index(out, `"TestCategory"`) > strings.Index(out, `"Engine"`) {
		t.Error("keys should follow column order")
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := report.Write(sampleTable(), "xml", &buf)
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
	if !strings.Contains(err.Error(), "xml") {
		t.Errorf("error should name the format: %v", err)
	}
}

func TestGenerateFromRunDir(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run")
	for _, r := range sampleRows() {
		dir := result.ScenarioDir(runDir, r.Seq, r.Engine, r.ModelType)
		if err := result.WriteRow(dir, r); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := report.Generate(runDir, "csv", "-", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv back: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records", len(records))
	}
	if records[1][1] != "mujoco" || records[3][1] != "cuda_mujoco" {
		t.Errorf("rows out of order: %v", records[1:])
	}
}

func TestGenerateEmptyRunDir(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(t.TempDir(), "table", "N/A", &buf); err == nil {
		t.Error("expected error for a run dir without rows")
	}
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "benchmark_results.csv")
	if err := report.WriteCSVFile(sampleTable(), path); err != nil {
		t.Fatalf("WriteCSVFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if !strings.HasPrefix(string(data), "TestCategory,Engine,ModelType,") {
		t.Errorf("unexpected header: %.60s", data)
	}
}
