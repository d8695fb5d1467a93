// Package shell provides the process executor adapter.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// maxCapture bounds how much of each stream a result retains.
	maxCapture = 64 << 10
	// waitDelay bounds how long Run waits for output pipes after the process is killed.
	waitDelay = 2 * time.Second
)

var _ ports.Executor = (*Executor)(nil)

// Executor implements ports.Executor using os/exec.
type Executor struct {
	logger  ports.Logger
	environ func() []string
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{
		logger:  logger,
		environ: os.Environ,
	}
}

// Run executes cmd with an environment built, from low to high priority, from:
// 1. the process environment (skipped for isolated commands)
// 2. cmd.SearchPath, prepended to PATH
// 3. cmd.Env
func (e *Executor) Run(ctx context.Context, cmd *domain.Command) (*domain.CommandResult, error) {
	if cmd.Name == "" {
		return nil, zerr.New("empty command")
	}

	var base []string
	if !cmd.Isolated {
		base = e.environ()
	}
	env := resolveEnvironment(base, cmd.SearchPath, cmd.Env)

	executable := cmd.Name
	if !strings.ContainsRune(cmd.Name, filepath.Separator) {
		if lp, err := lookPath(cmd.Name, env); err == nil {
			executable = lp
		} else {
			return nil, zerr.With(zerr.Wrap(err, "executable not found"), "command", cmd.Name)
		}
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, executable, cmd.Args...) //nolint:gosec // commands come from project config
	if len(c.Args) > 0 {
		c.Args[0] = cmd.Name
	}
	c.Dir = cmd.Dir
	c.Env = env
	c.WaitDelay = waitDelay

	stdout := &tailBuffer{limit: maxCapture}
	stderr := &tailBuffer{limit: maxCapture}
	outWriters := []io.Writer{stdout}
	errWriters := []io.Writer{stderr}
	if v, ok := ports.VertexFromContext(ctx); ok {
		outWriters = append(outWriters, v.Stdout())
		errWriters = append(errWriters, v.Stderr())
	}
	var outLog, errLog *logWriter
	if cmd.Stream {
		outLog = &logWriter{logger: e.logger}
		errLog = &logWriter{logger: e.logger, warn: true}
		outWriters = append(outWriters, outLog)
		errWriters = append(errWriters, errLog)
	}
	c.Stdout = io.MultiWriter(outWriters...)
	c.Stderr = io.MultiWriter(errWriters...)

	runErr := c.Run()
	if outLog != nil {
		outLog.Flush()
		errLog.Flush()
	}

	result := &domain.CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		TimedOut: cmd.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil,
	}
	if runErr == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	} else if c.ProcessState == nil {
		return nil, zerr.With(zerr.Wrap(runErr, "failed to start command"), "command", cmd.Name)
	} else {
		result.ExitCode = -1
	}

	err := zerr.With(zerr.Wrap(runErr, "command failed"), "exit_code", result.ExitCode)
	err = zerr.With(err, "command", cmd.Name)
	if result.TimedOut {
		err = zerr.With(err, "timeout", cmd.Timeout.String())
	}
	return result, err
}

// logWriter forwards complete lines to the logger.
type logWriter struct {
	logger ports.Logger
	warn   bool
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(strings.TrimSuffix(line, "\n"))
	}
	return len(p), nil
}

// Flush emits a trailing line without newline.
func (w *logWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *logWriter) emit(line string) {
	line = strings.TrimSuffix(line, "\r")
	if w.warn {
		w.logger.Warn(line)
		return
	}
	w.logger.Info(line)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	mu    sync.Mutex
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.data = append(b.data[:0:0], b.data[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.data)
}

// resolveEnvironment merges environment variables with the defined priority.
func resolveEnvironment(sysEnv, searchPath []string, overrides map[string]string) []string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}

	if len(searchPath) > 0 {
		prefix := strings.Join(searchPath, string(os.PathListSeparator))
		if sysPath := envMap["PATH"]; sysPath != "" {
			envMap["PATH"] = prefix + string(os.PathListSeparator) + sysPath
		} else {
			envMap["PATH"] = prefix
		}
	}

	for k, v := range overrides {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// lookPath searches for an executable in the directories named by PATH in env.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if v, ok := strings.CutPrefix(e, "PATH="); ok {
			path = v
			break
		}
	}
	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
