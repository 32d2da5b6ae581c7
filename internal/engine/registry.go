package engine

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/signalnine/simbench/internal/command"
	"github.com/signalnine/simbench/internal/config"
	"github.com/signalnine/simbench/internal/dialect"
)

// Registry holds engines in declared order.
type Registry struct {
	specs []*Spec
	byID  map[string]*Spec
}

func NewRegistry(specs ...*Spec) (*Registry, error) {
	r := &Registry{byID: map[string]*Spec{}}
	for _, s := range specs {
		if _, dup := r.byID[s.ID()]; dup {
			return nil, fmt.Errorf("duplicate engine %q", s.ID())
		}
		r.byID[s.ID()] = s
		r.specs = append(r.specs, s)
	}
	return r, nil
}

// All returns every engine, enabled or not, in declared order.
func (r *Registry) All() []*Spec { return r.specs }

// Enabled returns the enabled engines in declared order.
func (r *Registry) Enabled() []*Spec {
	var out []*Spec
	for _, s := range r.specs {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Lookup(id string) (*Spec, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Select returns the enabled engines matching filter by ID or by name, in
// declared order. An empty filter selects every enabled engine.
func (r *Registry) Select(filter string) []*Spec {
	if filter == "" {
		return r.Enabled()
	}
	var out []*Spec
	for _, s := range r.Enabled() {
		if s.ID() == filter || s.Name == filter {
			out = append(out, s)
		}
	}
	return out
}

// Preflight checks the launch target and model directories exist.
func (s *Spec) Preflight() error {
	if err := s.Launch.preflight(); err != nil {
		return err
	}
	if s.ModelScaling || (s.World != nil && s.World.Mode == Batched) {
		if err := checkDir(s.ModelDir, "model directory"); err != nil {
			return err
		}
	}
	if s.World != nil && s.World.Mode == Replicated {
		if err := checkDir(s.World.ModelDir, "world-scaling model directory"); err != nil {
			return err
		}
	}
	return nil
}

// FromConfig builds the registry, rejecting unknown dialects and
// placeholders the engine cannot fill.
func FromConfig(cfg *config.Config) (*Registry, error) {
	specs := make([]*Spec, 0, len(cfg.Engines))
	for i := range cfg.Engines {
		s, err := fromConfig(&cfg.Engines[i])
		if err != nil {
			return nil, fmt.Errorf("engine %q: %w", cfg.Engines[i].ID(), err)
		}
		specs = append(specs, s)
	}
	return NewRegistry(specs...)
}

func fromConfig(e *config.Engine) (*Spec, error) {
	d, err := dialect.Lookup(e.Dialect)
	if err != nil {
		return nil, err
	}
	s := &Spec{
		Name:         e.Name,
		ModelType:    e.ModelType,
		Dialect:      d,
		Enabled:      e.IsEnabled(),
		Steps:        e.Steps,
		Timeout:      e.Timeout(),
		Threads:      e.Threads,
		CtrlNoise:    e.CtrlNoise,
		ModelDir:     e.ModelDir,
		ModelScaling: e.RunsModelScaling(),
		Env:          map[string]string{},
	}
	if e.EnvFile != "" {
		vars, err := config.ReadEnvFile(e.EnvFile)
		if err != nil {
			return nil, err
		}
		maps.Copy(s.Env, vars)
	}
	maps.Copy(s.Env, e.Env)

	allowed := []command.Placeholder{command.ModelPath, command.Steps}
	if w := e.WorldScaling; w != nil {
		s.World = &WorldScaling{
			Mode:     WorldMode(w.Mode),
			ModelDir: w.ModelDir,
			BaseFile: w.BaseFile,
			Pattern:  w.Pattern,
		}
		if s.World.Mode == Batched {
			allowed = append(allowed, command.NWorld)
		}
		if s.World.Mode == Replicated && !strings.Contains(w.Pattern, "{count}") {
			return nil, errors.New("world_scaling.pattern must contain {count}")
		}
	}
	if q := e.LaunchQueue; q != nil {
		s.LaunchQueue = &LaunchQueue{Env: q.Env, Scales: append([]string(nil), q.Scales...)}
		allowed = append(allowed, command.Scale)
	}
	if e.Threads > 0 {
		allowed = append(allowed, command.Threads)
	}
	if e.CtrlNoise != nil {
		allowed = append(allowed, command.CtrlNoise)
	}

	args, err := command.ParseArgs(e.Args, allowed...)
	if err != nil {
		return nil, err
	}
	if !args.Uses(command.ModelPath) {
		return nil, errors.New("args must reference {model_path}")
	}
	if s.World != nil && s.World.Mode == Batched && !args.Uses(command.NWorld) {
		return nil, errors.New("batched world_scaling requires {nworld} in args")
	}
	switch e.Mode {
	case config.ModeDirect:
		s.Launch = &DirectLaunch{Executable: e.Executable, WorkDir: e.WorkDir, Arguments: args}
	case config.ModeShell:
		s.Launch = &ShellLaunch{
			Shell:     e.Shell,
			WorkDir:   e.WorkDir,
			Activate:  e.Activate,
			Command:   e.Command,
			Arguments: args,
		}
	case config.ModeContainer:
		s.Launch = &ContainerLaunch{Image: e.Image, GPUs: e.GPUs, Arguments: args}
	default:
		return nil, fmt.Errorf("unknown mode %q", e.Mode)
	}
	return s, nil
}
