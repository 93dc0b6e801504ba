package microvm

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/value"
)

// Process isolates program execution in an OS subprocess. It is the
// simplest real isolation backend (spec §4.8): no VM boundary, but a
// distinct process with its own working directory, environment, and
// timeout, grounded in the same exec.CommandContext idiom used elsewhere in
// the stack for subprocess-based tool transports.
type Process struct{}

// NewProcess constructs a Process provider.
func NewProcess() *Process { return &Process{} }

func (p *Process) Name() string                        { return "process" }
func (p *Process) IsAvailable(ctx context.Context) bool { return true }
func (p *Process) Initialize(ctx context.Context) error { return nil }
func (p *Process) Cleanup(ctx context.Context) error    { return nil }

// ExecuteProgram runs ec.Program (an absolute path or $PATH-resolved binary
// name) as a subprocess. The process provider enforces the permission gate
// and the declared timeout; the subprocess inherits this process's whole
// environment with ec.Config.Env added on top. It does not enforce
// the network or filesystem policy fields (no sandboxing primitive is
// available at the OS-process level), matching spec §4.8's requirement that
// unenforceable resource policy be documented rather than silently ignored.
func (p *Process) ExecuteProgram(ctx context.Context, ec ExecutionContext) (ExecutionResult, error) {
	if err := CheckPermission(ec); err != nil {
		return ExecutionResult{}, err
	}
	if ec.Program == "" {
		return ExecutionResult{}, errors.New(errors.RuntimeError, "process provider requires a program path")
	}

	runCtx := ctx
	if ec.Config.TimeoutMS > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(ec.Config.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	args := make([]string, 0, len(ec.Args))
	for _, a := range ec.Args {
		args = append(args, a.String())
	}
	cmd := exec.CommandContext(runCtx, ec.Program, args...)
	if ec.Config.FS != FSFull && len(ec.Config.FSPaths) > 0 {
		cmd.Dir = ec.Config.FSPaths[0]
	}
	env := os.Environ()
	for k, v := range ec.Config.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	res := ExecutionResult{
		Success: runErr == nil,
		Value:   value.Str(strings.TrimRight(stdout.String(), "\n")),
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if runErr != nil {
		if runCtx.Err() != nil {
			return res, errors.Wrap(errors.TimeoutError, "process execution exceeded configured timeout", runCtx.Err())
		}
		return res, errors.Wrap(errors.RuntimeError, "process execution failed", runErr)
	}
	return res, nil
}
