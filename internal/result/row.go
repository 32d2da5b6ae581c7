package result

import (
	"maps"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/signalnine/simbench/internal/matrix"
)

// ErrorKind is the failure annotation on a row.
type ErrorKind string

const (
	PathNotFound    ErrorKind = "PathNotFound"
	InvocationError ErrorKind = "InvocationError"
	NonZeroExit     ErrorKind = "NonZeroExit"
	Timeout         ErrorKind = "Timeout"
	ParsingFailed   ErrorKind = "ParsingFailed"
)

// Column names for identity and bookkeeping fields.
const (
	ColCategory    = "TestCategory"
	ColEngine      = "Engine"
	ColModelType   = "ModelType"
	ColPopulation  = "Population"
	ColWorlds      = "Worlds"
	ColWorldMode   = "WorldMode"
	ColModelFile   = "ModelFile"
	ColSteps       = "Steps"
	ColScale       = "LaunchQueueScale"
	ColError       = "Error"
	ColDiagnostic  = "Diagnostic"
	ColRunID       = "RunID"
	ColWallTime    = "WallTime_s"
	ColExitCode    = "ExitCode"
	NotApplicable  = matrix.NotApplicable
	truncateSuffix = "..."
)

// Row is the report line for one scenario attempt.
type Row struct {
	Seq              int                `json:"seq"`
	Category         string             `json:"category"`
	Engine           string             `json:"engine"`
	ModelType        string             `json:"model_type,omitempty"`
	Population       int                `json:"population"`
	Worlds           int                `json:"worlds"`
	WorldMode        string             `json:"world_mode,omitempty"`
	ModelFile        string             `json:"model_file"`
	Steps            int                `json:"steps"`
	LaunchQueueScale string             `json:"launch_queue_scale"`
	RunID            string             `json:"run_id,omitempty"`
	WallTimeS        *float64           `json:"wall_time_s,omitempty"`
	ExitCode         *int               `json:"exit_code,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	Error            ErrorKind          `json:"error,omitempty"`
	Diagnostic       string             `json:"diagnostic,omitempty"`
}

// NewRow flattens the scenario identity into a row with no metrics.
func NewRow(rc *matrix.RunContext) *Row {
	return &Row{
		Seq:              rc.Seq,
		Category:         string(rc.Category),
		Engine:           rc.Engine.Name,
		ModelType:        rc.Engine.ModelType,
		Population:       rc.Population,
		Worlds:           rc.Worlds,
		WorldMode:        string(rc.WorldMode),
		ModelFile:        rc.ModelFile,
		Steps:            rc.Steps,
		LaunchQueueScale: rc.Scale,
	}
}

// SetWallTime records how long the launched process ran.
func (r *Row) SetWallTime(d time.Duration) {
	s := d.Seconds()
	r.WallTimeS = &s
}

func (r *Row) SetExitCode(code int) {
	r.ExitCode = &code
}

// SetMetrics attaches parsed metrics. The map is copied.
func (r *Row) SetMetrics(m map[string]float64) {
	r.Metrics = maps.Clone(m)
}

// Fail marks the row failed. Metrics are dropped and diag is cut to at
// most limit runes.
func (r *Row) Fail(kind ErrorKind, diag string, limit int) {
	r.Error = kind
	r.Diagnostic = Truncate(diag, limit)
	r.Metrics = nil
}

func (r *Row) Failed() bool { return r.Error != "" }

// Cells returns every present field rendered as text, keyed by column.
func (r *Row) Cells() map[string]string {
	c := map[string]string{
		ColCategory:   r.Category,
		ColEngine:     r.Engine,
		ColPopulation: strconv.Itoa(r.Population),
		ColWorlds:     strconv.Itoa(r.Worlds),
		ColModelFile:  r.ModelFile,
		ColSteps:      strconv.Itoa(r.Steps),
		ColScale:      r.LaunchQueueScale,
	}
	if r.ModelType != "" {
		c[ColModelType] = r.ModelType
	}
	if r.WorldMode != "" {
		c[ColWorldMode] = r.WorldMode
	}
	if r.RunID != "" {
		c[ColRunID] = r.RunID
	}
	if r.WallTimeS != nil {
		c[ColWallTime] = strconv.FormatFloat(*r.WallTimeS, 'f', 3, 64)
	}
	if r.ExitCode != nil {
		c[ColExitCode] = strconv.Itoa(*r.ExitCode)
	}
	for k, v := range r.Metrics {
		c[k] = FormatNumber(v)
	}
	if r.Error != "" {
		c[ColError] = string(r.Error)
		c[ColDiagnostic] = r.Diagnostic
	}
	return c
}

// Keys lists the columns this row populates.
func (r *Row) Keys() []string {
	c := r.Cells()
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// FormatNumber renders v in the shortest form that parses back exactly.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Truncate cuts s to at most limit runes, marking the cut with "...".
// A limit of zero or less disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(truncateSuffix)
	if keep < 0 {
		keep = 0
	}
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + truncateSuffix
		}
		n++
	}
	return s + truncateSuffix
}
