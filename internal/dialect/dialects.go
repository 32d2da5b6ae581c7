package dialect

import (
	"fmt"
	"sort"
)

// micro matches a micro sign as printed, including common mis-decodings.
const micro = `(?:µ|μ|u|\?|Âµ|Î¼)s`

const number = `([\d.]+)`
const grouped = `([\d.,]+)`

func testspeed() *Dialect {
	return &Dialect{
		Name: "testspeed",
		Scalars: []Rule{
			{Name: "SimulationTime_s", Pattern: `Simulation time\s*:\s*` + number + `\s*s`, Unit: Seconds},
			{Name: "SimulationTime_s", Pattern: `Total wall time\s*:\s*` + number + `\s*s`, Unit: Seconds},
			{Name: "StepsPerSecond", Pattern: `Steps per second\s*:\s*` + number},
			{Name: "RealtimeFactor", Pattern: `Realtime factor\s*:\s*` + number + `\s*x`},
			{Name: "TimePerStep_us", Pattern: `Time per step\s*:\s*` + number + `\s*` + micro, Unit: Microseconds},
			{Name: "CG_iters_per_step", Pattern: `CG iters / step\s*:\s*` + number},
			{Name: "Contacts_per_step", Pattern: `Contacts / step\s*:\s*` + number},
			{Name: "Constraints_per_step", Pattern: `Constraints / step\s*:\s*` + number},
			{Name: "DOF", Pattern: `Degrees of freedom\s*:\s*` + number},
		},
		Profiler: &Profiler{
			Unit:    Microseconds,
			Trailer: `\s*\(`,
			Phases: identity(
				"step", "forward", "position", "velocity", "actuation",
				"constraint", "advance", "other", "position total",
				"kinematics", "inertia", "collision", "broadphase",
				"narrowphase", "make", "project",
			),
		},
	}
}

func mjwarp() *Dialect {
	return &Dialect{
		Name: "mjwarp",
		Scalars: []Rule{
			{Name: "SimulationTime_s", Pattern: `Total simulation time\s*:\s*` + number + `\s*s`, Unit: Seconds},
			{Name: "StepsPerSecond", Pattern: `Total steps per second\s*:\s*` + grouped, Grouped: true},
			{Name: "RealtimeFactor", Pattern: `Total realtime factor\s*:\s*` + grouped + `\s*x`, Grouped: true},
			{Name: "TimePerStep_us", Pattern: `Total time per step\s*:\s*` + number + `\s*ns`, Unit: Nanoseconds},
		},
		Profiler: &Profiler{
			Marker: "Event trace:",
			Unit:   Nanoseconds,
			Phases: []Phase{
				{"step", "step"},
				{"forward", "forward"},
				{"fwd_position", "position"},
				{"fwd_velocity", "velocity"},
				{"fwd_actuation", "actuation"},
				{"solve", "constraint"},
				{"euler", "advance"},
				{"collision", "collision"},
				{"nxn_broadphase", "broadphase"},
				{"make_constraint", "make"},
				{"primitive_narrowphase", "narrowphase"},
			},
		},
	}
}

func mjx() *Dialect {
	return &Dialect{
		Name: "mjx",
		Scalars: []Rule{
			{Name: "SimulationTime_s", Pattern: `Total simulation time\s*:\s*` + number + `\s*s`, Unit: Seconds},
			{Name: "StepsPerSecond", Pattern: `Total steps per second\s*:\s*` + grouped, Grouped: true},
			{Name: "RealtimeFactor", Pattern: `Total realtime factor\s*:\s*` + grouped + `\s*x`, Grouped: true},
			{Name: "TimePerStep_us", Pattern: `Total time per step\s*:\s*` + number + `\s*` + micro, Unit: Microseconds},
			{Name: "JITTime_s", Pattern: `Total JIT time\s*:\s*` + number + `\s*s`, Unit: Seconds},
		},
	}
}

func identity(names ...string) []Phase {
	phases := make([]Phase, len(names))
	for i, n := range names {
		phases[i] = Phase{Source: n, Canonical: n}
	}
	return phases
}

var registry = map[string]*Dialect{}

func init() {
	for _, d := range []*Dialect{testspeed(), mjwarp(), mjx()} {
		if err := d.compile(); err != nil {
			panic(err)
		}
		registry[d.Name] = d
	}
}

// Lookup returns the named dialect.
func Lookup(name string) (*Dialect, error) {
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (known: %v)", name, Names())
	}
	return d, nil
}

// Names lists the known dialects in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
