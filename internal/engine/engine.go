package engine

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/signalnine/simbench/internal/command"
	"github.com/signalnine/simbench/internal/dialect"
	"github.com/signalnine/simbench/internal/process"
)

// ErrPathNotFound marks a failed pre-flight check.
var ErrPathNotFound = errors.New("path not found")

// WorldMode says how an engine scales world count.
type WorldMode string

const (
	// Batched engines take a native world-count flag.
	Batched WorldMode = "batched"
	// Replicated engines load a model file holding count copies.
	Replicated WorldMode = "replicated"
)

type WorldScaling struct {
	Mode WorldMode
	// ModelDir holds replicated model files.
	ModelDir string
	// BaseFile is the single-world model.
	BaseFile string
	// Pattern names the file for a count, e.g. "{count}_humanoid.xml".
	Pattern string
}

type LaunchQueue struct {
	Env    string
	Scales []string
}

// Spec is one configured engine. It is not modified after construction.
type Spec struct {
	Name         string
	ModelType    string
	Dialect      *dialect.Dialect
	Enabled      bool
	Steps        int
	Timeout      time.Duration
	Threads      int
	CtrlNoise    *float64
	ModelDir     string
	ModelScaling bool
	World        *WorldScaling
	LaunchQueue  *LaunchQueue
	Env          map[string]string
	Launch       Launch
}

// ID is name, or name/model_type when a model type is set.
func (s *Spec) ID() string {
	if s.ModelType == "" {
		return s.Name
	}
	return s.Name + "/" + s.ModelType
}

// Params are the scenario values substituted into a launch.
type Params struct {
	RunID     string
	ModelPath string
	Steps     int
	Worlds    int
	// Scale is empty when the engine has no launch queue axis.
	Scale string
}

// Invocation renders the command for one scenario. The child environment
// is base plus the engine's env and, when set, the launch-queue variable.
func (s *Spec) Invocation(p Params, base process.Environ) (*process.Invocation, error) {
	vals := command.Values{
		command.ModelPath: p.ModelPath,
		command.Steps:     strconv.Itoa(p.Steps),
		command.NWorld:    strconv.Itoa(p.Worlds),
	}
	if s.Threads > 0 {
		vals[command.Threads] = strconv.Itoa(s.Threads)
	}
	if s.CtrlNoise != nil {
		vals[command.CtrlNoise] = strconv.FormatFloat(*s.CtrlNoise, 'f', -1, 64)
	}
	overrides := maps.Clone(s.Env)
	if overrides == nil {
		overrides = map[string]string{}
	}
	if s.LaunchQueue != nil && p.Scale != "" {
		vals[command.Scale] = p.Scale
		overrides[s.LaunchQueue.Env] = p.Scale
	}

	inv, err := s.Launch.invocation(vals, p.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", s.ID(), err)
	}
	if s.Launch.Kind() == KindContainer {
		base = process.NewEnviron()
	}
	inv.RunID = p.RunID
	inv.Env = base.With(overrides)
	inv.Timeout = s.Timeout
	return inv, nil
}
