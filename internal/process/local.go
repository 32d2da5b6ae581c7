package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const defaultWaitDelay = 5 * time.Second

// Local runs invocations as child processes of simbench.
type Local struct {
	// WaitDelay bounds how long Execute waits for output pipes after the
	// child is killed. Zero means five seconds.
	WaitDelay time.Duration
}

func (l *Local) Execute(ctx context.Context, inv *Invocation) *RawResult {
	if len(inv.Argv) == 0 {
		return &RawResult{Outcome: InvocationError, ExitCode: -1, Err: errors.New("empty argv")}
	}

	runCtx := ctx
	cancel := func() {}
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = defaultWaitDelay
	}
	configure(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	res := &RawResult{
		Stdout:  Decode(stdout.Bytes()),
		Stderr:  Decode(stderr.Bytes()),
		Elapsed: time.Since(start),
	}

	switch {
	case runErr == nil:
		res.Outcome = Success
	case ctx.Err() != nil:
		res.Outcome = InvocationError
		res.ExitCode = -1
		res.Err = fmt.Errorf("interrupted: %w", ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Outcome = Timeout
		res.ExitCode = -1
		res.Err = fmt.Errorf("exceeded %s", inv.Timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.Outcome = NonZeroExit
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.Outcome = InvocationError
			res.ExitCode = -1
			res.Err = fmt.Errorf("starting %s: %w", inv.Argv[0], runErr)
		}
	}
	return res
}
