package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/signalnine/simbench/internal/dialect"
	"github.com/signalnine/simbench/internal/engine"
	"github.com/signalnine/simbench/internal/matrix"
	"github.com/signalnine/simbench/internal/process"
	"github.com/signalnine/simbench/internal/result"
)

// ImageChecker is implemented by container executors that can confirm an
// engine's image is usable before any of its scenarios run.
type ImageChecker interface {
	CheckImage(ctx context.Context, image string) error
}

// Runner executes scenarios one at a time and records one row for each.
type Runner struct {
	Local     process.Executor
	Container process.Executor
	Env       process.Environ
	Log       zerolog.Logger
	// RunDir, when set, receives each row as it is produced.
	RunDir          string
	DiagnosticLimit int
	// NewRunID defaults to a random UUID.
	NewRunID func() string

	preflight map[*engine.Spec]error
}

func (r *Runner) runID() string {
	if r.NewRunID != nil {
		return r.NewRunID()
	}
	return uuid.New().String()
}

func (r *Runner) executor(s *engine.Spec) process.Executor {
	if s.Launch.Kind() == engine.KindContainer {
		return r.Container
	}
	return r.Local
}

// Sweep runs scenarios in order, adding every row to agg. It stops early
// only when ctx is cancelled, after recording the interrupted scenario.
func (r *Runner) Sweep(ctx context.Context, scenarios []*matrix.RunContext, agg *result.Aggregator) error {
	for i, rc := range scenarios {
		if err := ctx.Err(); err != nil {
			r.Log.Warn().Int("remaining", len(scenarios)-i).Msg("sweep interrupted")
			return err
		}
		row, raw := r.RunScenario(ctx, rc)
		agg.Add(row)
		r.persist(row, raw)
	}
	return ctx.Err()
}

// checkEngine runs the engine's pre-flight once and warns on failure.
func (r *Runner) checkEngine(ctx context.Context, s *engine.Spec) error {
	if r.preflight == nil {
		r.preflight = map[*engine.Spec]error{}
	}
	if err, done := r.preflight[s]; done {
		return err
	}
	err := s.Preflight()
	if c, ok := s.Launch.(*engine.ContainerLaunch); ok && err == nil {
		if ic, ok := r.Container.(ImageChecker); ok {
			err = ic.CheckImage(ctx, c.Image)
		}
	}
	r.preflight[s] = err
	if err != nil {
		r.Log.Warn().Err(err).Str("engine", s.ID()).Msg("pre-flight failed, skipping engine")
	}
	return err
}

// preflightKind is PathNotFound for missing files and images, and
// InvocationError for anything else, such as an unreachable daemon.
func preflightKind(err error) result.ErrorKind {
	if errors.Is(err, engine.ErrPathNotFound) {
		return result.PathNotFound
	}
	return result.InvocationError
}

// RunScenario attempts one scenario. The raw result is nil when no
// process was launched.
func (r *Runner) RunScenario(ctx context.Context, rc *matrix.RunContext) (*result.Row, *process.RawResult) {
	row := result.NewRow(rc)
	log := r.Log.With().
		Int("seq", rc.Seq).
		Str("engine", rc.Engine.ID()).
		Str("category", string(rc.Category)).
		Str("model", rc.ModelFile).
		Int("worlds", rc.Worlds).
		Str("scale", rc.Scale).
		Logger()

	if err := r.checkEngine(ctx, rc.Engine); err != nil {
		row.Fail(preflightKind(err), err.Error(), r.DiagnosticLimit)
		return row, nil
	}
	if _, err := os.Stat(rc.ModelPath); err != nil {
		err = fmt.Errorf("%w: model file %s", engine.ErrPathNotFound, rc.ModelPath)
		log.Warn().Err(err).Msg("skipping scenario")
		row.Fail(result.PathNotFound, err.Error(), r.DiagnosticLimit)
		return row, nil
	}

	row.RunID = r.runID()
	log = log.With().Str("run_id", row.RunID).Logger()
	inv, err := rc.Engine.Invocation(rc.Params(row.RunID), r.Env)
	if err != nil {
		log.Error().Err(err).Msg("building command")
		row.Fail(result.InvocationError, err.Error(), r.DiagnosticLimit)
		return row, nil
	}
	log.Debug().Strs("argv", inv.Argv).Str("dir", inv.Dir).Msg("launching")

	raw := r.executor(rc.Engine).Execute(ctx, inv)
	Classify(row, raw, rc.Engine.Dialect, r.DiagnosticLimit)

	ev := log.Info()
	if row.Failed() {
		ev = log.Warn().Str("error", string(row.Error))
	}
	ev.Str("outcome", string(raw.Outcome)).
		Dur("wall", raw.Elapsed).
		Int("metrics", len(row.Metrics)).
		Msg("scenario finished")
	return row, raw
}

// Classify folds a raw result into row: metrics on success, otherwise an
// error kind with a diagnostic cut to limit runes.
func Classify(row *result.Row, raw *process.RawResult, d *dialect.Dialect, limit int) {
	if raw.Outcome != process.InvocationError {
		row.SetWallTime(raw.Elapsed)
	}
	switch raw.Outcome {
	case process.Success:
		row.SetExitCode(raw.ExitCode)
		m, err := d.Parse(raw.Stdout)
		if err != nil {
			row.Fail(result.ParsingFailed, raw.Stdout, limit)
			return
		}
		row.SetMetrics(m)
	case process.NonZeroExit:
		row.SetExitCode(raw.ExitCode)
		diag := raw.Stderr
		if strings.TrimSpace(diag) == "" {
			diag = raw.Stdout
		}
		row.Fail(result.NonZeroExit, diag, limit)
	case process.Timeout:
		row.Fail(result.Timeout, errText(raw.Err, "timed out"), limit)
	default:
		row.Fail(result.InvocationError, errText(raw.Err, "invocation failed"), limit)
	}
}

func errText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

func (r *Runner) persist(row *result.Row, raw *process.RawResult) {
	if r.RunDir == "" {
		return
	}
	dir := result.ScenarioDir(r.RunDir, row.Seq, row.Engine, row.ModelType)
	if err := result.WriteRow(dir, row); err != nil {
		r.Log.Error().Err(err).Str("dir", dir).Msg("writing row")
	}
	if raw != nil && row.Failed() {
		if err := result.WriteRaw(dir, raw.Stdout, raw.Stderr); err != nil {
			r.Log.Error().Err(err).Str("dir", dir).Msg("writing raw output")
		}
	}
}

// Interrupted reports whether err came from cancelling the sweep.
func Interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
