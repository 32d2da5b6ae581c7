package result_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/simbench/internal/engine"
	"github.com/signalnine/simbench/internal/matrix"
	"github.com/signalnine/simbench/internal/result"
)

func runContext() *matrix.RunContext {
	return &matrix.RunContext{
		Seq:        4,
		Engine:     &engine.Spec{Name: "cuda_mujoco"},
		Category:   matrix.WorldScaling,
		Population: 16,
		Worlds:     16,
		WorldMode:  engine.Replicated,
		Scale:      "4x",
		ModelPath:  "/models/16_humanoid.xml",
		ModelFile:  "16_humanoid.xml",
		Steps:      1000,
	}
}

func TestNewRowCells(t *testing.T) {
	row := result.NewRow(runContext())
	row.RunID = "run-1"
	row.SetWallTime(2500 * time.Millisecond)
	row.SetExitCode(0)
	row.SetMetrics(map[string]float64{"SimulationTime_s": 12.3, "TimePerStep_us": 1.2})

	assert.Equal(t, map[string]string{
		"TestCategory":     "WorldScaling",
		"Engine":           "cuda_mujoco",
		"Population":       "16",
		"Worlds":           "16",
		"WorldMode":        "replicated",
		"ModelFile":        "16_humanoid.xml",
		"Steps":            "1000",
		"LaunchQueueScale": "4x",
		"RunID":            "run-1",
		"WallTime_s":       "2.500",
		"ExitCode":         "0",
		"SimulationTime_s": "12.3",
		"TimePerStep_us":   "1.2",
	}, row.Cells())
	assert.False(t, row.Failed())
}

func TestFailDropsMetrics(t *testing.T) {
	row := result.NewRow(runContext())
	row.SetMetrics(map[string]float64{"SimulationTime_s": 1})
	row.Fail(result.Timeout, "exceeded 1s", 500)

	cells := row.Cells()
	assert.Equal(t, "Timeout", cells["Error"])
	assert.Equal(t, "exceeded 1s", cells["Diagnostic"])
	assert.NotContains(t, cells, "SimulationTime_s")
	assert.Equal(t, "cuda_mujoco", cells["Engine"])
	assert.Equal(t, "16", cells["Worlds"])
	assert.True(t, row.Failed())
}

func TestSetMetricsCopies(t *testing.T) {
	m := map[string]float64{"DOF": 27}
	row := result.NewRow(runContext())
	row.SetMetrics(m)
	m["DOF"] = 0
	assert.Equal(t, 27.0, row.Metrics["DOF"])
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"segfault", 500, "segfault"},
		{"abcdefghij", 10, "abcdefghij"},
		{"abcdefghijk", 10, "abcdefg..."},
		{"µµµµµµ", 5, "µµ..."},
		{"abcdef", 2, "..."},
		{"abcdef", 0, "abcdef"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.in, tt.limit), func(t *testing.T) {
			got := result.Truncate(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
	long := strings.Repeat("x", 2000)
	assert.Equal(t, 500, utf8.RuneCountInString(result.Truncate(long, 500)))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "1.2", result.FormatNumber(1200.0/1000))
	assert.Equal(t, "81300", result.FormatNumber(81300))
	assert.Equal(t, "0.05", result.FormatNumber(0.05))
}

func TestFieldRegistryIsMonotonic(t *testing.T) {
	rows := []*result.Row{
		{Engine: "a", Metrics: map[string]float64{"SimulationTime_s": 1, "Profiler_step_us": 2}},
		{Engine: "b", Error: result.ParsingFailed, Diagnostic: "??"},
		{Engine: "c", ModelType: "dense", Metrics: map[string]float64{"JITTime_s": 3}},
		{Engine: "d"},
	}
	for trial := 0; trial < 10; trial++ {
		order := rand.New(rand.NewSource(int64(trial))).Perm(len(rows))
		agg := result.NewAggregator()
		prev := 0
		for _, i := range order {
			agg.Add(rows[i])
			n := agg.Fields().Len()
			require.GreaterOrEqual(t, n, prev)
			prev = n
		}
		assert.True(t, agg.Fields().Has("JITTime_s"))
		assert.True(t, agg.Fields().Has("Error"))
		assert.True(t, agg.Fields().Has("ModelType"))
		assert.Len(t, agg.Rows(), len(rows))
		assert.Equal(t, 1, agg.Failures())
	}
}

func TestFieldRegistryKeysSorted(t *testing.T) {
	f := result.NewFieldRegistry()
	f.Add("b", "a", "c", "a")
	assert.Equal(t, []string{"a", "b", "c"}, f.Keys())
	assert.Equal(t, 3, f.Len())
}
