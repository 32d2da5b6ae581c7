package matrix

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/signalnine/simbench/internal/config"
	"github.com/signalnine/simbench/internal/engine"
)

// NotApplicable fills LaunchQueueScale for engines without that axis.
const NotApplicable = "not_applicable"

// Category is the scenario axis a run belongs to.
type Category string

const (
	ModelScaling Category = "ModelScaling"
	WorldScaling Category = "WorldScaling"
)

// ParseCategory accepts a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(s) {
	case "":
		return "", nil
	case "modelscaling", "model":
		return ModelScaling, nil
	case "worldscaling", "world":
		return WorldScaling, nil
	}
	return "", fmt.Errorf("unknown category %q (ModelScaling, WorldScaling)", s)
}

// RunContext identifies one scenario. It is never modified after
// Enumerate returns it.
type RunContext struct {
	Seq        int
	Engine     *engine.Spec
	Category   Category
	Population int
	Worlds     int
	WorldMode  engine.WorldMode
	Scale      string
	ModelPath  string
	ModelFile  string
	Steps      int
}

// Params converts the scenario into launch parameters.
func (rc *RunContext) Params(runID string) engine.Params {
	p := engine.Params{
		RunID:     runID,
		ModelPath: rc.ModelPath,
		Steps:     rc.Steps,
		Worlds:    rc.Worlds,
	}
	if rc.Scale != NotApplicable {
		p.Scale = rc.Scale
	}
	return p
}

func (rc *RunContext) String() string {
	s := fmt.Sprintf("#%d %s %s %s worlds=%d", rc.Seq, rc.Engine.ID(), rc.Category, rc.ModelFile, rc.Worlds)
	if rc.Scale != NotApplicable {
		s += " scale=" + rc.Scale
	}
	return s
}

// Matrix holds the sweep values shared by every engine.
type Matrix struct {
	Steps       int
	Models      []config.Model
	Discover    bool
	WorldCounts []int
}

func FromConfig(cfg *config.Config) *Matrix {
	return &Matrix{
		Steps:       cfg.Steps,
		Models:      cfg.ModelScaling.Models,
		Discover:    cfg.ModelScaling.Discover,
		WorldCounts: cfg.WorldScaling.Counts,
	}
}

// Filter narrows an enumeration without changing its order.
type Filter struct {
	Category Category
}

// Enumerate lists the scenarios for engines in order: engines as given,
// then model scaling before world scaling, then launch-queue scale, then
// axis value. Sequence numbers start at 1. Engines whose model directory
// cannot be scanned contribute no model-scaling scenarios and are
// reported in the returned error; the scenarios are still usable.
func (m *Matrix) Enumerate(engines []*engine.Spec, f Filter) ([]*RunContext, error) {
	var out []*RunContext
	var errs []error
	for _, e := range engines {
		if !e.Enabled {
			continue
		}
		if f.Category == "" || f.Category == ModelScaling {
			ctxs, err := m.modelScaling(e)
			if err != nil {
				errs = append(errs, fmt.Errorf("engine %s: %w", e.ID(), err))
			}
			out = append(out, ctxs...)
		}
		if f.Category == "" || f.Category == WorldScaling {
			out = append(out, m.worldScaling(e)...)
		}
	}
	for i, rc := range out {
		rc.Seq = i + 1
	}
	return out, errors.Join(errs...)
}

func (m *Matrix) steps(e *engine.Spec) int {
	if e.Steps > 0 {
		return e.Steps
	}
	return m.Steps
}

func scales(e *engine.Spec) []string {
	if e.LaunchQueue == nil {
		return []string{NotApplicable}
	}
	return e.LaunchQueue.Scales
}

func (m *Matrix) modelScaling(e *engine.Spec) ([]*RunContext, error) {
	if !e.ModelScaling {
		return nil, nil
	}
	models := m.Models
	if m.Discover {
		found, err := DiscoverModels(e.ModelDir)
		if err != nil {
			return nil, err
		}
		models = found
	}
	var out []*RunContext
	for _, scale := range scales(e) {
		for _, model := range models {
			out = append(out, &RunContext{
				Engine:     e,
				Category:   ModelScaling,
				Population: model.Count,
				Worlds:     1,
				Scale:      scale,
				ModelPath:  resolve(e.ModelDir, model.File),
				ModelFile:  model.File,
				Steps:      m.steps(e),
			})
		}
	}
	return out, nil
}

func (m *Matrix) worldScaling(e *engine.Spec) []*RunContext {
	w := e.World
	if w == nil {
		return nil
	}
	var out []*RunContext
	for _, scale := range scales(e) {
		for _, count := range m.WorldCounts {
			rc := &RunContext{
				Engine:    e,
				Category:  WorldScaling,
				Worlds:    count,
				WorldMode: w.Mode,
				Scale:     scale,
				Steps:     m.steps(e),
			}
			switch w.Mode {
			case engine.Batched:
				rc.Population = populationOf(w.BaseFile)
				rc.ModelFile = w.BaseFile
				rc.ModelPath = resolve(e.ModelDir, w.BaseFile)
			case engine.Replicated:
				rc.Population = count
				rc.ModelFile = replicatedFile(w, count)
				rc.ModelPath = resolve(w.ModelDir, rc.ModelFile)
			}
			out = append(out, rc)
		}
	}
	return out
}

func replicatedFile(w *engine.WorldScaling, count int) string {
	if count == 1 && w.BaseFile != "" {
		return w.BaseFile
	}
	return strings.ReplaceAll(w.Pattern, "{count}", strconv.Itoa(count))
}

func resolve(dir, file string) string {
	p := filepath.Join(dir, file)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
