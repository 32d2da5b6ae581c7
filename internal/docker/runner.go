package docker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
	"github.com/rs/zerolog"

	"github.com/signalnine/simbench/internal/engine"
	"github.com/signalnine/simbench/internal/process"
)

// Label marks containers started by simbench.
const Label = "simbench"

// Executor runs container invocations through the Docker Engine API.
// Outcomes follow process.Local: daemon, create and start failures are
// InvocationError.
type Executor struct {
	Log zerolog.Logger
}

// CheckImage confirms the daemon is reachable and has image locally.
// A missing image wraps engine.ErrPathNotFound.
func (e *Executor) CheckImage(ctx context.Context, image string) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	if _, err := cli.ImageInspect(ctx, image); err != nil {
		if cerrdefs.IsNotFound(err) {
			return fmt.Errorf("%w: image %s", engine.ErrPathNotFound, image)
		}
		return fmt.Errorf("inspecting image %s: %w", image, err)
	}
	return nil
}

func (e *Executor) Execute(ctx context.Context, inv *process.Invocation) *process.RawResult {
	start := time.Now()
	fail := func(err error) *process.RawResult {
		return &process.RawResult{
			Outcome:  process.InvocationError,
			ExitCode: -1,
			Elapsed:  time.Since(start),
			Err:      err,
		}
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fail(fmt.Errorf("creating docker client: %w", err))
	}
	defer cli.Close()

	mounts := make([]mount.Mount, 0, len(inv.Mounts))
	for _, m := range inv.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: mounts,
		Init:   &initTrue,
	}
	if inv.GPUs != 0 {
		hostCfg.DeviceRequests = []container.DeviceRequest{{
			Count:        inv.GPUs,
			Capabilities: [][]string{{"gpu"}},
		}}
	}

	labels := map[string]string{Label: "true"}
	for k, v := range inv.Labels {
		labels[k] = v
	}
	if inv.RunID != "" {
		labels[Label+".run_id"] = inv.RunID
	}
	containerCfg := &container.Config{
		Image:      inv.Image,
		Cmd:        inv.Argv,
		Env:        inv.Env,
		WorkingDir: inv.Dir,
		Labels:     labels,
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return fail(fmt.Errorf("creating container: %w", err))
	}
	containerID := createResp.ID
	defer func() {
		if _, err := cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true}); err != nil {
			e.Log.Warn().Err(err).Str("container", containerID).Msg("removing container")
		}
	}()

	start = time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return fail(fmt.Errorf("starting container: %w", err))
	}

	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if inv.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	waitResult := cli.ContainerWait(waitCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})

	res := &process.RawResult{}
	select {
	case err := <-waitResult.Error:
		if _, kerr := cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"}); kerr != nil {
			e.Log.Debug().Err(kerr).Str("container", containerID).Msg("killing container")
		}
		res.ExitCode = -1
		switch {
		case ctx.Err() != nil:
			res.Outcome = process.InvocationError
			res.Err = fmt.Errorf("interrupted: %w", ctx.Err())
		case waitCtx.Err() != nil:
			res.Outcome = process.Timeout
			res.Err = fmt.Errorf("exceeded %s", inv.Timeout)
		default:
			res.Outcome = process.InvocationError
			res.Err = fmt.Errorf("waiting for container: %w", err)
		}
	case status := <-waitResult.Result:
		res.ExitCode = int(status.StatusCode)
		res.Outcome = process.Success
		if status.StatusCode != 0 {
			res.Outcome = process.NonZeroExit
		}
	}
	res.Elapsed = time.Since(start)

	stdout, stderr, err := collectLogs(cli, containerID)
	if err != nil {
		e.Log.Debug().Err(err).Str("container", containerID).Msg("reading container logs")
	}
	res.Stdout = process.Decode(stdout)
	res.Stderr = process.Decode(stderr)
	return res
}

func collectLogs(cli *client.Client, containerID string) ([]byte, []byte, error) {
	logs, err := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, nil, err
	}
	defer logs.Close()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return stdout.Bytes(), stderr.Bytes(), err
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}
