// Package pip implements ports.PackageManager on top of "python -m pip".
package pip

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

const listTimeout = 2 * time.Minute

var (
	_ ports.PackageManager = (*Manager)(nil)

	conflictPattern = regexp.MustCompile(`(?i)ResolutionImpossible|conflicting dependencies|` +
		`Cannot install .* because these package versions have conflicting dependencies|` +
		`has requirement .*, but you'll have .* which is incompatible`)
)

// Manager runs pip through the binding's pip shim, which always invokes the resolved
// interpreter and never whatever "pip" is first on PATH.
type Manager struct {
	executor ports.Executor
}

// NewManager creates a new Manager.
func NewManager(executor ports.Executor) *Manager {
	return &Manager{executor: executor}
}

type listEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Installed returns the packages pip reports for the interpreter, keyed by normalized name.
func (m *Manager) Installed(ctx context.Context, binding *domain.ToolchainBinding) (map[string]string, error) {
	res, err := m.pip(ctx, binding, listTimeout, false, "list", "--format=json")
	if err != nil {
		return nil, m.classify(err, res, "list")
	}

	var entries []listEntry
	if err := json.Unmarshal(jsonPayload(res.Stdout), &entries); err != nil {
		parseErr := zerr.Wrap(err, "failed to parse pip list output")
		return nil, zerr.With(parseErr, "interpreter", binding.Interpreter)
	}

	installed := make(map[string]string, len(entries))
	for _, e := range entries {
		installed[domain.NormalizePackageName(e.Name)] = e.Version
	}
	return installed, nil
}

// Install installs one requirement. Exact pins are passed as "name==version" and floors
// with --upgrade. A bare name installs whatever the index resolves, without --upgrade.
func (m *Manager) Install(
	ctx context.Context,
	binding *domain.ToolchainBinding,
	spec domain.DependencySpec,
	timeout time.Duration,
) error {
	args := []string{"install", "--no-input"}
	if !spec.Exact && spec.Version != "" {
		args = append(args, "--upgrade")
	}
	args = append(args, spec.Requirement())

	res, err := m.pip(ctx, binding, timeout, true, args...)
	if err != nil {
		return m.classify(zerr.With(err, "requirement", spec.Requirement()), res, "install")
	}
	return nil
}

func (m *Manager) pip(
	ctx context.Context,
	binding *domain.ToolchainBinding,
	timeout time.Duration,
	stream bool,
	args ...string,
) (*domain.CommandResult, error) {
	name := binding.Interpreter
	full := append([]string{"-m", "pip", "--disable-pip-version-check"}, args...)
	if shim, ok := binding.Tool("pip"); ok {
		name = shim
		full = full[2:]
	}
	return m.executor.Run(ctx, &domain.Command{
		Name:       name,
		Args:       full,
		SearchPath: binding.SearchPath,
		Env:        map[string]string{"PIP_NO_INPUT": "1"},
		Timeout:    timeout,
		Stream:     stream,
	})
}

// classify maps a pip failure onto the taxonomy. Timeouts and registry errors are
// transient; resolver conflicts are not.
func (m *Manager) classify(err error, res *domain.CommandResult, op string) error {
	err = zerr.With(err, "operation", op)
	if res == nil {
		return domain.Fail(domain.KindDependencyUnavailable, zerr.Wrap(err, domain.ErrDependencyUnavailable.Error()))
	}

	stderr := strings.TrimSpace(string(res.Stderr))
	err = zerr.With(err, "stderr", tail(stderr, 2048))

	switch {
	case res.TimedOut:
		return domain.Fail(domain.KindDependencyUnavailable, zerr.With(
			zerr.Wrap(err, domain.ErrDependencyUnavailable.Error()), "reason", "timeout"))
	case conflictPattern.MatchString(res.Output()):
		return domain.Fail(domain.KindVersionConflict, zerr.Wrap(err, domain.ErrVersionConflict.Error()))
	default:
		return domain.Fail(domain.KindDependencyUnavailable, zerr.Wrap(err, domain.ErrDependencyUnavailable.Error()))
	}
}

// jsonPayload skips any warning lines old pip versions print before the JSON document.
func jsonPayload(out []byte) []byte {
	s := string(out)
	if i := strings.Index(s, "["); i >= 0 {
		return []byte(s[i:])
	}
	return out
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
