package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glebobos/LambdaTerminal/internal/logging"
	"github.com/glebobos/LambdaTerminal/internal/monitoring"
	"github.com/glebobos/LambdaTerminal/internal/session"
)

// clearCommand is reserved: it truncates the transcript instead of
// reaching the shell, and must leave the working directory untouched.
const clearCommand = "clear"

// waitDelay bounds how long Wait blocks on pipes held open by
// backgrounded children after the shell itself has exited.
const waitDelay = 5 * time.Second

// Executor runs one command per invocation inside an identity's restored
// working directory and records the outcome in the session store.
type Executor struct {
	store   session.Store
	shell   string
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewExecutor creates an executor using the given shell binary.
func NewExecutor(store session.Store, shell string, logger *logging.Logger, metrics *monitoring.Metrics) *Executor {
	return &Executor{
		store:   store,
		shell:   shell,
		logger:  logger,
		metrics: metrics,
	}
}

// Execute runs one command cycle for an identity. Command failure is part
// of normal operation and lands in the transcript; the returned error
// reports infrastructure problems only (store I/O, unstartable shell),
// which callers log and degrade on.
func (e *Executor) Execute(ctx context.Context, identity, command string) error {
	wd, err := e.store.WorkingDir(ctx, identity)
	if err != nil {
		e.recordStoreError("working_dir")
		return err
	}
	// A directory deleted since the last invocation falls back to the
	// ambient process directory.
	if wd != "" {
		if info, serr := os.Stat(wd); serr != nil || !info.IsDir() {
			wd = ""
		}
	}

	trimmed := strings.TrimSuffix(command, "\n")
	if trimmed == clearCommand {
		if err := e.store.ClearOutput(ctx, identity); err != nil {
			e.recordStoreError("clear")
			return err
		}
		if e.metrics != nil {
			e.metrics.RecordCommand(monitoring.ResultCleared, 0, 0)
		}
		return nil
	}

	if strings.TrimSpace(command) == "" {
		// No-op invocation: nothing runs and nothing is appended, but
		// the working directory is still recorded.
		return e.recordDir(ctx, identity, e.fallbackDir(wd))
	}

	start := time.Now()
	output, exitCode, newDir, runErr := e.run(ctx, wd, command)
	duration := time.Since(start)

	if runErr != nil {
		// The shell never started; there is no output and no observed
		// directory. Record the old one and surface the failure.
		if e.metrics != nil {
			e.metrics.RecordCommand(monitoring.ResultError, duration, 0)
		}
		return errors.Join(runErr, e.recordDir(ctx, identity, e.fallbackDir(wd)))
	}

	e.logger.Debug("command finished",
		zap.String("identity", identity),
		zap.Int("exit_code", exitCode),
		zap.Int("output_bytes", len(output)),
		zap.Duration("duration", duration),
	)

	var appendErr error
	if len(output) > 0 {
		if appendErr = e.store.AppendOutput(ctx, identity, output); appendErr != nil {
			e.recordStoreError("append")
		}
	}

	if newDir == "" {
		// The shell died before reporting (exec, exit, syntax error).
		// The last known directory stands.
		newDir = e.fallbackDir(wd)
	}
	setErr := e.recordDir(ctx, identity, newDir)

	if e.metrics != nil {
		result := monitoring.ResultOK
		if exitCode != 0 {
			result = monitoring.ResultError
		}
		e.metrics.RecordCommand(result, duration, len(output))
	}

	return errors.Join(appendErr, setErr)
}

// run is the single place a caller-controlled command becomes a process.
// The command runs as one shell expression with stdout and stderr
// interleaved into a single block. The shell reports its final working
// directory over an inherited pipe on fd 3; the user command runs with
// that fd closed so backgrounded children cannot hold the probe open.
func (e *Executor) run(ctx context.Context, dir, command string) (output []byte, exitCode int, newDir string, err error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, 0, "", fmt.Errorf("cwd pipe: %w", err)
	}

	script := "{\n" + command + "\n} 3>&-\npwd >&3\n"

	cmd := exec.CommandContext(ctx, e.shell, "-c", script)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.ExtraFiles = []*os.File{w} // fd 3 in the child
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, 0, "", fmt.Errorf("start shell: %w", err)
	}
	w.Close()

	// Drain the probe before Wait: it closes with the shell regardless
	// of what the command left running.
	probe, _ := io.ReadAll(r)
	r.Close()

	if werr := cmd.Wait(); werr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(werr, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(werr, exec.ErrWaitDelay):
			// Pipes were force-closed after the shell exited cleanly.
		default:
			exitCode = -1
		}
	}

	return buf.Bytes(), exitCode, lastLine(probe), nil
}

func (e *Executor) recordDir(ctx context.Context, identity, dir string) error {
	if err := e.store.SetWorkingDir(ctx, identity, dir); err != nil {
		e.recordStoreError("set_working_dir")
		return err
	}
	return nil
}

// fallbackDir resolves the directory to record when none was observed.
func (e *Executor) fallbackDir(wd string) string {
	if wd != "" {
		return wd
	}
	if ambient, err := os.Getwd(); err == nil {
		return ambient
	}
	return "/"
}

func (e *Executor) recordStoreError(op string) {
	if e.metrics != nil {
		e.metrics.RecordStoreError(op)
	}
}

// lastLine returns the final non-empty line of the probe output.
func lastLine(probe []byte) string {
	lines := bytes.Split(bytes.TrimRight(probe, "\n"), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			return string(lines[i])
		}
	}
	return ""
}
