// Package toolchain resolves platform interpreters and exposes them under logical names.
package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	shipfs "go.trai.ch/ship/internal/adapters/fs"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	defaultInterpreter = "python"
	// packageManagerTool is the logical name of the shim that runs the interpreter's pip.
	packageManagerTool = "pip"
	probeTimeout       = 30 * time.Second
)

var _ ports.ToolchainResolver = (*Resolver)(nil)

// Resolver implements ports.ToolchainResolver by probing the search path.
type Resolver struct {
	executor ports.Executor
	logger   ports.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(executor ports.Executor, logger ports.Logger) *Resolver {
	return &Resolver{executor: executor, logger: logger}
}

// Resolve finds the interpreter for platform and writes the logical-name shims into
// <runDir>/<platform>/bin.
//
// Version-suffixed names are probed before the bare name ("python3.6", "python3", then
// "python"), and every candidate must report a version satisfying the constraint. A bare
// "python" that turns out to be version 2 is therefore never selected.
func (r *Resolver) Resolve(
	ctx context.Context,
	runDir string,
	searchPath []string,
	platform domain.PlatformSpec,
) (*domain.ToolchainBinding, error) {
	interpreter := platform.Interpreter
	if interpreter == "" {
		interpreter = defaultInterpreter
	}

	var probed []string
	for _, path := range r.candidates(interpreter, searchPath, platform.Toolchain) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		version, err := r.probe(ctx, path)
		if err != nil {
			probed = append(probed, path+" (unusable)")
			continue
		}
		if !platform.Toolchain.Satisfied(version) {
			probed = append(probed, path+" ("+version.String()+")")
			r.logger.Info("skipping " + path + ": version " + version.String() +
				" does not satisfy " + platform.Toolchain.String())
			continue
		}

		binding, err := r.bind(runDir, searchPath, platform, interpreter, path, version)
		if err != nil {
			return nil, err
		}
		r.logger.Info("resolved " + interpreter + " for " + platform.Name + " to " + path +
			" (" + version.String() + ")")
		return binding, nil
	}

	err := zerr.With(domain.ErrToolchainNotFound, "platform", platform.Name)
	err = zerr.With(err, "constraint", platform.Toolchain.String())
	err = zerr.With(err, "probed", strings.Join(probed, ", "))
	return nil, domain.Fail(domain.KindToolchainNotFound, err)
}

// candidates lists executables in probe order: most specific name first, then search-path
// order within a name.
func (r *Resolver) candidates(interpreter string, searchPath []string, c domain.VersionConstraint) []string {
	names := make([]string, 0, 3)
	for _, suffix := range c.Preferred() {
		names = append(names, interpreter+suffix)
	}
	names = append(names, interpreter)

	var out []string
	seen := make(map[string]bool)
	for _, name := range names {
		for _, dir := range searchPath {
			if dir == "" {
				continue
			}
			path := filepath.Join(dir, name)
			if seen[path] || !isExecutable(path) {
				continue
			}
			seen[path] = true
			out = append(out, path)
		}
	}
	return out
}

// probe runs "<path> --version". Version 2 interpreters print the banner to stderr.
func (r *Resolver) probe(ctx context.Context, path string) (domain.Version, error) {
	res, err := r.executor.Run(ctx, &domain.Command{
		Name:    path,
		Args:    []string{"--version"},
		Timeout: probeTimeout,
	})
	if err != nil {
		return "", err
	}
	v, ok := domain.ParseVersion(res.Output())
	if !ok {
		return "", zerr.With(zerr.New("unrecognized version output"), "path", path)
	}
	return v, nil
}

func (r *Resolver) bind(
	runDir string,
	searchPath []string,
	platform domain.PlatformSpec,
	interpreter, resolved string,
	version domain.Version,
) (*domain.ToolchainBinding, error) {
	shimDir := filepath.Join(runDir, platform.Name, "bin")
	if err := os.MkdirAll(shimDir, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create shim directory"), "path", shimDir)
	}

	interpreterShim := filepath.Join(shimDir, interpreter)
	if err := replaceSymlink(resolved, interpreterShim); err != nil {
		return nil, err
	}

	pipShim := filepath.Join(shimDir, packageManagerTool)
	script := "#!/bin/sh\nexec " + shellQuote(resolved) + " -m pip \"$@\"\n"
	if err := shipfs.WriteFileAtomic(pipShim, []byte(script), domain.ExecPerm); err != nil {
		return nil, err
	}

	path := make([]string, 0, len(searchPath)+1)
	path = append(path, shimDir)
	path = append(path, searchPath...)

	return &domain.ToolchainBinding{
		Platform: platform.Name,
		Tools: map[string]string{
			interpreter:        interpreterShim,
			packageManagerTool: pipShim,
		},
		Interpreter:        resolved,
		InterpreterVersion: version,
		ShimDir:            shimDir,
		SearchPath:         path,
	}, nil
}

func replaceSymlink(target, link string) error {
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, "failed to remove stale shim"), "path", link)
	}
	if err := os.Symlink(target, link); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create shim"), "path", link)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Mode()&0o111 != 0
}
