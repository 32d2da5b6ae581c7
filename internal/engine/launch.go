package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/signalnine/simbench/internal/command"
	"github.com/signalnine/simbench/internal/process"
)

type Kind string

const (
	KindDirect    Kind = "direct"
	KindShell     Kind = "shell"
	KindContainer Kind = "container"
)

// Launch is how an engine is started. The set of implementations is
// closed: DirectLaunch, ShellLaunch and ContainerLaunch.
type Launch interface {
	Kind() Kind
	// Describe renders the launch with unfilled placeholders.
	Describe() string
	Args() command.Args

	invocation(vals command.Values, modelPath string) (*process.Invocation, error)
	preflight() error
}

// DirectLaunch executes a binary with an argument list.
type DirectLaunch struct {
	Executable string
	WorkDir    string
	Arguments  command.Args
}

func (l *DirectLaunch) Kind() Kind         { return KindDirect }
func (l *DirectLaunch) Args() command.Args { return l.Arguments }
func (l *DirectLaunch) Describe() string {
	return command.Quote(append([]string{l.Executable}, l.Arguments.Strings()...))
}

func (l *DirectLaunch) invocation(vals command.Values, _ string) (*process.Invocation, error) {
	args, err := l.Arguments.Render(vals)
	if err != nil {
		return nil, err
	}
	return &process.Invocation{
		Argv: append([]string{l.Executable}, args...),
		Dir:  l.WorkDir,
	}, nil
}

func (l *DirectLaunch) preflight() error {
	if l.WorkDir != "" {
		if err := checkDir(l.WorkDir, "working directory"); err != nil {
			return err
		}
	}
	return checkExecutable(l.Executable, l.WorkDir)
}

// ShellLaunch runs a command through a shell after sourcing an
// activation script, e.g. a Python virtualenv.
type ShellLaunch struct {
	Shell     string
	WorkDir   string
	Activate  string
	Command   string
	Arguments command.Args
}

func (l *ShellLaunch) Kind() Kind         { return KindShell }
func (l *ShellLaunch) Args() command.Args { return l.Arguments }
func (l *ShellLaunch) Describe() string {
	return strings.Join(l.argv(l.Arguments.Strings()), " ")
}

func (l *ShellLaunch) powershell() bool {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(l.Shell), ".exe"))
	return name == "pwsh" || name == "powershell"
}

func (l *ShellLaunch) argv(args []string) []string {
	if l.powershell() {
		var b strings.Builder
		if l.Activate != "" {
			b.WriteString("& " + command.QuotePowerShell(l.Activate) + "; ")
		}
		b.WriteString("& " + command.QuotePowerShell(l.Command))
		for _, a := range args {
			b.WriteString(" " + command.QuotePowerShell(a))
		}
		return []string{l.Shell, "-NoProfile", "-Command", b.String()}
	}
	script := command.Quote(append([]string{l.Command}, args...))
	if l.Activate != "" {
		script = "source " + command.Quote([]string{l.Activate}) + " && " + script
	}
	return []string{l.Shell, "-c", script}
}

func (l *ShellLaunch) invocation(vals command.Values, _ string) (*process.Invocation, error) {
	args, err := l.Arguments.Render(vals)
	if err != nil {
		return nil, err
	}
	return &process.Invocation{Argv: l.argv(args), Dir: l.WorkDir}, nil
}

func (l *ShellLaunch) preflight() error {
	if l.WorkDir != "" {
		if err := checkDir(l.WorkDir, "working directory"); err != nil {
			return err
		}
	}
	if l.Activate != "" {
		path := l.Activate
		if !filepath.IsAbs(path) && l.WorkDir != "" {
			path = filepath.Join(l.WorkDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: activation script %s", ErrPathNotFound, path)
		}
	}
	if _, err := exec.LookPath(l.Shell); err != nil {
		return fmt.Errorf("%w: shell %s", ErrPathNotFound, l.Shell)
	}
	return nil
}

// ContainerMountPoint is where the model directory appears inside a
// container.
const ContainerMountPoint = "/models"

// ContainerLaunch runs an image with the model directory mounted read-only.
type ContainerLaunch struct {
	Image     string
	GPUs      int
	Arguments command.Args
}

func (l *ContainerLaunch) Kind() Kind         { return KindContainer }
func (l *ContainerLaunch) Args() command.Args { return l.Arguments }
func (l *ContainerLaunch) Describe() string {
	return l.Image + " " + command.Quote(l.Arguments.Strings())
}

func (l *ContainerLaunch) invocation(vals command.Values, modelPath string) (*process.Invocation, error) {
	inner := command.Values{}
	for k, v := range vals {
		inner[k] = v
	}
	inner[command.ModelPath] = ContainerMountPoint + "/" + filepath.Base(modelPath)
	args, err := l.Arguments.Render(inner)
	if err != nil {
		return nil, err
	}
	return &process.Invocation{
		Argv:  args,
		Image: l.Image,
		GPUs:  l.GPUs,
		Mounts: []process.Mount{{
			Source:   filepath.Dir(modelPath),
			Target:   ContainerMountPoint,
			ReadOnly: true,
		}},
	}, nil
}

func (l *ContainerLaunch) preflight() error { return nil }

func checkDir(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s %s", ErrPathNotFound, what, path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s %s is not a directory", ErrPathNotFound, what, path)
	}
	return nil
}

func checkExecutable(exe, workDir string) error {
	if !strings.ContainsRune(exe, filepath.Separator) && !strings.ContainsRune(exe, '/') {
		if _, err := exec.LookPath(exe); err != nil {
			return fmt.Errorf("%w: executable %s not on PATH", ErrPathNotFound, exe)
		}
		return nil
	}
	path := exe
	if !filepath.IsAbs(path) && workDir != "" {
		path = filepath.Join(workDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: executable %s", ErrPathNotFound, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: executable %s is a directory", ErrPathNotFound, path)
	}
	return nil
}
