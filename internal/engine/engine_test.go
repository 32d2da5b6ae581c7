package engine_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/simbench/internal/command"
	"github.com/signalnine/simbench/internal/config"
	"github.com/signalnine/simbench/internal/dialect"
	"github.com/signalnine/simbench/internal/engine"
	"github.com/signalnine/simbench/internal/process"
)

func loadRegistry(t *testing.T, path string) *engine.Registry {
	t.Helper()
	cfg, err := config.Load(path)
	require.NoError(t, err)
	reg, err := engine.FromConfig(cfg)
	require.NoError(t, err)
	return reg
}

func TestFromConfig(t *testing.T) {
	reg := loadRegistry(t, "../../testdata/full.yaml")

	var ids []string
	for _, s := range reg.All() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"mujoco/dense", "mujoco/sparse", "mujoco_warp", "cuda_mujoco", "mjx"}, ids)
	assert.Len(t, reg.Enabled(), 4)

	dense, ok := reg.Lookup("mujoco/dense")
	require.True(t, ok)
	assert.Equal(t, engine.KindDirect, dense.Launch.Kind())
	assert.Equal(t, "testspeed", dense.Dialect.Name)
	assert.Equal(t, 30*time.Minute, dense.Timeout)

	warp, _ := reg.Lookup("mujoco_warp")
	assert.Equal(t, engine.KindShell, warp.Launch.Kind())
	assert.Equal(t, engine.Batched, warp.World.Mode)
	assert.Equal(t, "/tmp/warp", warp.Env["WARP_CACHE_PATH"])

	cuda, _ := reg.Lookup("cuda_mujoco")
	assert.Equal(t, engine.Replicated, cuda.World.Mode)
	assert.Equal(t, "CUDA_SCALE_LAUNCH_QUEUES", cuda.LaunchQueue.Env)

	mjx, _ := reg.Lookup("mjx")
	assert.Equal(t, engine.KindContainer, mjx.Launch.Kind())
	assert.False(t, mjx.ModelScaling)
}

func TestSelect(t *testing.T) {
	reg := loadRegistry(t, "../../testdata/full.yaml")

	assert.Len(t, reg.Select(""), 4)
	byName := reg.Select("mujoco")
	require.Len(t, byName, 1, "disabled sparse engine must not be selected")
	assert.Equal(t, "mujoco/dense", byName[0].ID())
	assert.Len(t, reg.Select("mujoco_warp"), 1)
	assert.Empty(t, reg.Select("mujoco/sparse"))
	assert.Empty(t, reg.Select("bullet"))
}

func TestFromConfigRejectsUnsatisfiablePlaceholder(t *testing.T) {
	cfg, err := config.Load("../../testdata/bad_placeholder.yaml")
	require.NoError(t, err)
	_, err = engine.FromConfig(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, command.ErrUnknownPlaceholder))
	assert.Contains(t, err.Error(), "mujoco_warp")
}

func TestFromConfigRejectsUnknownDialect(t *testing.T) {
	cfg := &config.Config{Engines: []config.Engine{{
		Name: "bullet", Mode: config.ModeDirect, Dialect: "bullet",
		Executable: "bullet", Args: []string{"{model_path}"},
	}}}
	_, err := engine.FromConfig(cfg)
	assert.ErrorContains(t, err, `unknown dialect "bullet"`)
}

func TestFromConfigRequiresModelPath(t *testing.T) {
	cfg := &config.Config{Engines: []config.Engine{{
		Name: "a", Mode: config.ModeDirect, Dialect: "testspeed",
		Executable: "a", Args: []string{"{steps}"},
	}}}
	_, err := engine.FromConfig(cfg)
	assert.ErrorContains(t, err, "{model_path}")
}

func TestFromConfigBatchedRequiresNWorld(t *testing.T) {
	world := &config.EngineWorld{Mode: config.WorldBatched, BaseFile: "humanoid.xml"}
	cfg := &config.Config{Engines: []config.Engine{{
		Name: "warp", Mode: config.ModeDirect, Dialect: "mjwarp",
		Executable: "a", Args: []string{"{model_path}", "--nstep={steps}"},
		WorldScaling: world,
	}}}
	_, err := engine.FromConfig(cfg)
	assert.ErrorContains(t, err, "{nworld}")

	cfg.Engines[0].Args = append(cfg.Engines[0].Args, "--nworld={nworld}")
	_, err = engine.FromConfig(cfg)
	assert.NoError(t, err)
}

func TestFromConfigReplicatedNeedsNoNWorld(t *testing.T) {
	cfg := &config.Config{Engines: []config.Engine{{
		Name: "cuda", Mode: config.ModeDirect, Dialect: "testspeed",
		Executable: "a", Args: []string{"{model_path}", "{steps}"},
		WorldScaling: &config.EngineWorld{Mode: config.WorldReplicated, Pattern: "{count}_humanoid.xml"},
	}}}
	_, err := engine.FromConfig(cfg)
	assert.NoError(t, err)
}

func TestFromConfigEnvFile(t *testing.T) {
	cfg := &config.Config{Engines: []config.Engine{{
		Name: "a", Mode: config.ModeDirect, Dialect: "testspeed",
		Executable: "a", Args: []string{"{model_path}"},
		EnvFile: "../../testdata/engine.env",
		Env:     map[string]string{"CUDA_VISIBLE_DEVICES": "1"},
	}}}
	reg, err := engine.FromConfig(cfg)
	require.NoError(t, err)
	s, _ := reg.Lookup("a")
	assert.Equal(t, "/tmp/warp-cache", s.Env["WARP_CACHE_PATH"])
	assert.Equal(t, "1", s.Env["CUDA_VISIBLE_DEVICES"])
}

func TestDirectInvocation(t *testing.T) {
	reg := loadRegistry(t, "../../testdata/full.yaml")
	s, _ := reg.Lookup("mujoco/dense")

	base := process.NewEnviron("PATH=/usr/bin")
	inv, err := s.Invocation(engine.Params{RunID: "r1", ModelPath: "/m/humanoid.xml", Steps: 2000, Worlds: 1}, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"./bin/testspeed", "/m/humanoid.xml", "2000", "1", "0.01"}, inv.Argv)
	assert.Equal(t, "/opt/mujoco", inv.Dir)
	assert.Equal(t, "r1", inv.RunID)
	assert.Equal(t, []string{"PATH=/usr/bin"}, inv.Env)
	assert.Equal(t, 30*time.Minute, inv.Timeout)
}

func TestLaunchQueueScaleIsPerInvocation(t *testing.T) {
	reg := loadRegistry(t, "../../testdata/full.yaml")
	s, _ := reg.Lookup("cuda_mujoco")
	base := process.NewEnviron("PATH=/usr/bin")

	inv4, err := s.Invocation(engine.Params{ModelPath: "/m/a.xml", Steps: 500, Worlds: 4, Scale: "4x"}, base)
	require.NoError(t, err)
	assert.Contains(t, inv4.Env, "CUDA_SCALE_LAUNCH_QUEUES=4x")

	inv1, err := s.Invocation(engine.Params{ModelPath: "/m/a.xml", Steps: 500, Worlds: 4, Scale: "1x"}, base)
	require.NoError(t, err)
	assert.Contains(t, inv1.Env, "CUDA_SCALE_LAUNCH_QUEUES=1x")
	assert.NotContains(t, inv1.Env, "CUDA_SCALE_LAUNCH_QUEUES=4x")

	warp, _ := reg.Lookup("mujoco_warp")
	inv, err := warp.Invocation(engine.Params{ModelPath: "/m/a.xml", Steps: 10, Worlds: 1}, base)
	require.NoError(t, err)
	for _, kv := range inv.Env {
		assert.NotContains(t, kv, "CUDA_SCALE_LAUNCH_QUEUES")
	}
}

func TestShellInvocation(t *testing.T) {
	reg := loadRegistry(t, "../../testdata/full.yaml")
	s, _ := reg.Lookup("mujoco_warp")

	inv, err := s.Invocation(engine.Params{ModelPath: "/m/my humanoid.xml", Steps: 1000, Worlds: 64}, process.NewEnviron())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"bash", "-c",
		"source env/bin/activate && mjwarp-testspeed '/m/my humanoid.xml' --event_trace=true --nstep=1000 --nworld=64",
	}, inv.Argv)
	assert.Equal(t, "/opt/mujoco_warp", inv.Dir)
	assert.Equal(t, []string{"WARP_CACHE_PATH=/tmp/warp"}, inv.Env)
}

func TestPowerShellInvocation(t *testing.T) {
	args, err := command.ParseArgs([]string{"{model_path}", "--nstep={steps}"}, command.ModelPath, command.Steps)
	require.NoError(t, err)
	d, err := dialect.Lookup("mjwarp")
	require.NoError(t, err)
	s := &engine.Spec{
		Name:    "mujoco_warp",
		Dialect: d,
		Launch: &engine.ShellLaunch{
			Shell:     "powershell.exe",
			Activate:  `.\env\Scripts\Activate.ps1`,
			Command:   "mjwarp-testspeed",
			Arguments: args,
		},
	}
	inv, err := s.Invocation(engine.Params{ModelPath: `C:\models\humanoid.xml`, Steps: 1000, Worlds: 1}, process.NewEnviron())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"powershell.exe", "-NoProfile", "-Command",
		`& '.\env\Scripts\Activate.ps1'; & mjwarp-testspeed 'C:\models\humanoid.xml' --nstep=1000`,
	}, inv.Argv)
}

func TestContainerInvocation(t *testing.T) {
	reg := loadRegistry(t, "../../testdata/full.yaml")
	s, _ := reg.Lookup("mjx")

	base := process.NewEnviron("HOME=/root", "PATH=/usr/bin")
	inv, err := s.Invocation(engine.Params{ModelPath: "/data/models/humanoid.xml", Steps: 100, Worlds: 16}, base)
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/example/mjx:latest", inv.Image)
	assert.Equal(t, -1, inv.GPUs)
	assert.Equal(t, []string{"mjx-testspeed", "--mjcf=/models/humanoid.xml", "--nstep=100", "--batch_size=16"}, inv.Argv)
	assert.Equal(t, []process.Mount{{Source: "/data/models", Target: "/models", ReadOnly: true}}, inv.Mounts)
	assert.Empty(t, inv.Env, "host environment must not leak into containers")
}

func TestPreflight(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses Unix paths")
	}
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	require.NoError(t, os.Mkdir(models, 0o755))
	exe := filepath.Join(dir, "testspeed")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))

	args := []string{"{model_path}"}
	tests := []struct {
		name    string
		engine  config.Engine
		wantErr string
	}{
		{
			name:   "direct ok",
			engine: config.Engine{Mode: config.ModeDirect, Executable: exe, ModelDir: models},
		},
		{
			name:   "direct relative to workdir",
			engine: config.Engine{Mode: config.ModeDirect, Executable: "./testspeed", WorkDir: dir, ModelDir: models},
		},
		{
			name:    "direct missing executable",
			engine:  config.Engine{Mode: config.ModeDirect, Executable: filepath.Join(dir, "nope"), ModelDir: models},
			wantErr: "executable",
		},
		{
			name:    "direct not on PATH",
			engine:  config.Engine{Mode: config.ModeDirect, Executable: "simbench-no-such-binary", ModelDir: models},
			wantErr: "not on PATH",
		},
		{
			name:    "missing model dir",
			engine:  config.Engine{Mode: config.ModeDirect, Executable: exe, ModelDir: filepath.Join(dir, "gone")},
			wantErr: "model directory",
		},
		{
			name:    "shell missing workdir",
			engine:  config.Engine{Mode: config.ModeShell, Shell: "sh", Command: "x", WorkDir: filepath.Join(dir, "gone"), ModelDir: models},
			wantErr: "working directory",
		},
		{
			name:    "shell missing activation script",
			engine:  config.Engine{Mode: config.ModeShell, Shell: "sh", Command: "x", WorkDir: dir, Activate: "env/bin/activate", ModelDir: models},
			wantErr: "activation script",
		},
		{
			name:   "container only checks models",
			engine: config.Engine{Mode: config.ModeContainer, Image: "img", ModelDir: models},
		},
		{
			name: "replicated world dir missing",
			engine: config.Engine{Mode: config.ModeContainer, Image: "img", ModelDir: models,
				WorldScaling: &config.EngineWorld{Mode: config.WorldReplicated, ModelDir: filepath.Join(dir, "gone"), Pattern: "{count}.xml"}},
			wantErr: "world-scaling model directory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.engine
			e.Name = "e"
			e.Dialect = "testspeed"
			e.Args = args
			reg, err := engine.FromConfig(&config.Config{Engines: []config.Engine{e}})
			require.NoError(t, err)
			s, _ := reg.Lookup("e")
			err = s.Preflight()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, engine.ErrPathNotFound))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDescribe(t *testing.T) {
	reg := loadRegistry(t, "../../testdata/full.yaml")
	s, _ := reg.Lookup("mujoco/dense")
	assert.Equal(t, "./bin/testspeed '{model_path}' '{steps}' '{threads}' '{ctrlnoise}'", s.Launch.Describe())
}
