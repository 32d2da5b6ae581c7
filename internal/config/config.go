package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSteps           = 1000
	DefaultTimeout         = time.Hour
	DefaultDiagnosticLimit = 500
	DefaultMissing         = "N/A"
	DefaultResultsDir      = "results"
	DefaultOutput          = "benchmark_results.csv"
	DefaultFormat          = "table"
)

// Formats lists the report formats.
var Formats = []string{"csv", "table", "markdown", "json"}

// CheckFormat rejects a report format nothing can render.
func CheckFormat(format string) error {
	if !slices.Contains(Formats, format) {
		return fmt.Errorf("unknown format %q (%s)", format, strings.Join(Formats, ", "))
	}
	return nil
}

// Launch modes.
const (
	ModeDirect    = "direct"
	ModeShell     = "shell"
	ModeContainer = "container"
)

// World-scaling modes.
const (
	WorldBatched    = "batched"
	WorldReplicated = "replicated"
)

type Config struct {
	Steps        int          `yaml:"steps"`
	RawTimeout   string       `yaml:"timeout"`
	RawOutput    *string      `yaml:"output"`
	ModelScaling ModelScaling `yaml:"model_scaling"`
	WorldScaling WorldScaling `yaml:"world_scaling"`
	LaunchQueue  LaunchQueue  `yaml:"launch_queue"`
	Engines      []Engine     `yaml:"engines"`
	Report       Report       `yaml:"report"`
	Results      Results      `yaml:"results"`

	timeout time.Duration
}

type ModelScaling struct {
	// Discover scans each engine's model_dir for *.xml instead of using Models.
	Discover bool    `yaml:"discover"`
	Models   []Model `yaml:"models"`
}

type Model struct {
	Count int    `yaml:"count"`
	File  string `yaml:"file"`
}

type WorldScaling struct {
	Counts []int `yaml:"counts"`
}

type LaunchQueue struct {
	Scales []string `yaml:"scales"`
}

type Engine struct {
	Name       string            `yaml:"name"`
	ModelType  string            `yaml:"model_type"`
	Mode       string            `yaml:"mode"`
	Dialect    string            `yaml:"dialect"`
	Enabled    *bool             `yaml:"enabled"`
	Steps      int               `yaml:"steps"`
	RawTimeout string            `yaml:"timeout"`
	Threads    int               `yaml:"threads"`
	CtrlNoise  *float64          `yaml:"ctrl_noise"`
	ModelDir   string            `yaml:"model_dir"`
	Env        map[string]string `yaml:"env"`
	EnvFile    string            `yaml:"env_file"`

	// direct
	Executable string `yaml:"executable"`
	// shell
	Shell    string `yaml:"shell"`
	Activate string `yaml:"activate"`
	Command  string `yaml:"command"`
	// container
	Image string `yaml:"image"`
	GPUs  int    `yaml:"gpus"`

	WorkDir string   `yaml:"workdir"`
	Args    []string `yaml:"args"`

	ModelScaling *bool              `yaml:"model_scaling"`
	WorldScaling *EngineWorld       `yaml:"world_scaling"`
	LaunchQueue  *EngineLaunchQueue `yaml:"launch_queue"`

	timeout time.Duration
}

type EngineWorld struct {
	Mode     string `yaml:"mode"`
	ModelDir string `yaml:"model_dir"`
	BaseFile string `yaml:"base_file"`
	Pattern  string `yaml:"pattern"`
}

type EngineLaunchQueue struct {
	Env    string   `yaml:"env"`
	Scales []string `yaml:"scales"`
}

type Report struct {
	Format          string `yaml:"format"`
	DiagnosticLimit int    `yaml:"diagnostic_limit"`
	Missing         string `yaml:"missing"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

// Timeout is the per-invocation wall-clock bound.
func (c *Config) Timeout() time.Duration { return c.timeout }

// SetTimeout replaces the timeout of the run and of every engine.
func (c *Config) SetTimeout(d time.Duration) {
	c.timeout = d
	for i := range c.Engines {
		c.Engines[i].timeout = d
	}
}

// Output is the CSV copy destination; empty disables it.
func (c *Config) Output() string {
	if c.RawOutput == nil {
		return DefaultOutput
	}
	return *c.RawOutput
}

func (c *Config) SetOutput(path string) { c.RawOutput = &path }

// IsEnabled reports whether the engine takes part in runs.
func (e *Engine) IsEnabled() bool { return e.Enabled == nil || *e.Enabled }

// RunsModelScaling reports whether the engine takes part in model scaling.
func (e *Engine) RunsModelScaling() bool { return e.ModelScaling == nil || *e.ModelScaling }

// Timeout is the engine's timeout, falling back to the global one.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// ID identifies the engine as name or name/model_type.
func (e *Engine) ID() string {
	if e.ModelType == "" {
		return e.Name
	}
	return e.Name + "/" + e.ModelType
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Steps == 0 {
		cfg.Steps = DefaultSteps
	}
	if cfg.Steps < 0 {
		return fmt.Errorf("steps must be positive")
	}
	cfg.timeout = DefaultTimeout
	if cfg.RawTimeout != "" {
		d, err := parsePositiveDuration(cfg.RawTimeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.timeout = d
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = DefaultFormat
	}
	if err := CheckFormat(cfg.Report.Format); err != nil {
		return fmt.Errorf("report.format: %w", err)
	}
	switch {
	case cfg.Report.DiagnosticLimit == 0:
		cfg.Report.DiagnosticLimit = DefaultDiagnosticLimit
	case cfg.Report.DiagnosticLimit < 0:
		return fmt.Errorf("report.diagnostic_limit: must be positive, got %d", cfg.Report.DiagnosticLimit)
	}
	if cfg.Report.Missing == "" {
		cfg.Report.Missing = DefaultMissing
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = DefaultResultsDir
	}
	if len(cfg.LaunchQueue.Scales) == 0 {
		cfg.LaunchQueue.Scales = []string{"1x"}
	}
	for i, m := range cfg.ModelScaling.Models {
		if m.File == "" {
			return fmt.Errorf("model_scaling.models %d: file is required", i)
		}
		if m.Count < 1 {
			return fmt.Errorf("model_scaling.models %d: count must be at least 1", i)
		}
	}
	for i, n := range cfg.WorldScaling.Counts {
		if n < 1 {
			return fmt.Errorf("world_scaling.counts %d: count must be at least 1", i)
		}
	}

	if len(cfg.Engines) == 0 {
		return fmt.Errorf("no engines defined")
	}
	seen := map[string]bool{}
	for i := range cfg.Engines {
		e := &cfg.Engines[i]
		if e.Name == "" {
			return fmt.Errorf("engine %d: name is required", i)
		}
		if seen[e.ID()] {
			return fmt.Errorf("engine %q: duplicate name and model_type", e.ID())
		}
		seen[e.ID()] = true
		if err := validateEngine(cfg, e); err != nil {
			return fmt.Errorf("engine %q: %w", e.ID(), err)
		}
	}
	return nil
}

func validateEngine(cfg *Config, e *Engine) error {
	if e.Dialect == "" {
		return fmt.Errorf("dialect is required")
	}
	switch e.Mode {
	case ModeDirect:
		if e.Executable == "" {
			return fmt.Errorf("executable is required for direct mode")
		}
	case ModeShell:
		if e.Command == "" {
			return fmt.Errorf("command is required for shell mode")
		}
		if e.Shell == "" {
			e.Shell = "bash"
		}
	case ModeContainer:
		if e.Image == "" {
			return fmt.Errorf("image is required for container mode")
		}
	case "":
		return fmt.Errorf("mode is required (direct, shell, container)")
	default:
		return fmt.Errorf("unknown mode %q (direct, shell, container)", e.Mode)
	}
	if e.ModelDir == "" {
		e.ModelDir = "."
	}
	if e.Steps < 0 {
		return fmt.Errorf("steps must be positive")
	}
	if e.Threads < 0 {
		return fmt.Errorf("threads must not be negative")
	}
	e.timeout = cfg.timeout
	if e.RawTimeout != "" {
		d, err := parsePositiveDuration(e.RawTimeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		e.timeout = d
	}
	if w := e.WorldScaling; w != nil {
		switch w.Mode {
		case WorldBatched:
			if w.BaseFile == "" {
				return fmt.Errorf("world_scaling.base_file is required for batched mode")
			}
		case WorldReplicated:
			if w.Pattern == "" {
				return fmt.Errorf("world_scaling.pattern is required for replicated mode")
			}
			if w.ModelDir == "" {
				w.ModelDir = e.ModelDir
			}
		case "":
			return fmt.Errorf("world_scaling.mode is required (batched, replicated)")
		default:
			return fmt.Errorf("unknown world_scaling.mode %q (batched, replicated)", w.Mode)
		}
	}
	if q := e.LaunchQueue; q != nil {
		if q.Env == "" {
			return fmt.Errorf("launch_queue.env is required")
		}
		if len(q.Scales) == 0 {
			q.Scales = cfg.LaunchQueue.Scales
		}
	}
	return nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
