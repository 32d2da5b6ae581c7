package process

import (
	"context"
	"time"
)

// Outcome classifies how an invocation ended.
type Outcome string

const (
	Success         Outcome = "Success"
	NonZeroExit     Outcome = "NonZeroExit"
	Timeout         Outcome = "Timeout"
	InvocationError Outcome = "InvocationError"
)

// Mount binds a host path into a container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Invocation is one fully resolved command. Env is the complete
// environment the child sees; nothing is inherited implicitly.
type Invocation struct {
	RunID   string
	Argv    []string
	Dir     string
	Env     []string
	Timeout time.Duration

	// Container launches only.
	Image  string
	Mounts []Mount
	GPUs   int
	Labels map[string]string
}

// RawResult is the captured output of one invocation.
type RawResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
	Outcome  Outcome
	// Err is set for InvocationError and Timeout.
	Err error
}

// Executor runs one invocation to completion. Failures are reported in
// the result, never as a Go error.
type Executor interface {
	Execute(ctx context.Context, inv *Invocation) *RawResult
}
