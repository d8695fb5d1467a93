package toolchain_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/ship/internal/adapters/shell"
	"go.trai.ch/ship/internal/adapters/toolchain"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

// fakeInterpreter writes an executable that reports version on the given stream and echoes
// its arguments otherwise.
func fakeInterpreter(t *testing.T, dir, name, version string, toStderr bool) string {
	t.Helper()
	redirect := ""
	if toStderr {
		redirect = " >&2"
	}
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"--version\" ]; then echo \"Python " + version + "\"" + redirect + "; exit 0; fi\n" +
		"echo \"" + name + " $*\"\n"
	path := filepath.Join(dir, name)
	//nolint:gosec // Test requires executable file
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func platform(t *testing.T, constraint string) domain.PlatformSpec {
	t.Helper()
	c, err := domain.ParseConstraint(constraint)
	require.NoError(t, err)
	return domain.PlatformSpec{Name: "macos", OS: "darwin", Toolchain: c}
}

func newResolver(t *testing.T) *toolchain.Resolver {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	return toolchain.NewResolver(shell.NewExecutor(log), log)
}

func TestResolve_NeverSelectsVersionTwo(t *testing.T) {
	bin := t.TempDir()
	fakeInterpreter(t, bin, "python", "2.7.16", true)
	python3 := fakeInterpreter(t, bin, "python3", "3.7.3", false)
	runDir := t.TempDir()

	binding, err := newResolver(t).Resolve(context.Background(), runDir, []string{bin}, platform(t, "3"))
	require.NoError(t, err)

	assert.Equal(t, python3, binding.Interpreter)
	assert.Equal(t, domain.Version("v3.7.3"), binding.InterpreterVersion)
	assert.Equal(t, filepath.Join(runDir, "macos", "bin"), binding.ShimDir)
	assert.Equal(t, []string{binding.ShimDir, bin}, binding.SearchPath)

	target, err := os.Readlink(binding.Tools["python"])
	require.NoError(t, err)
	assert.Equal(t, python3, target)
}

func TestResolve_PipShimRunsInterpreterModule(t *testing.T) {
	bin := t.TempDir()
	fakeInterpreter(t, bin, "python3", "3.6.9", false)

	binding, err := newResolver(t).Resolve(context.Background(), t.TempDir(), []string{bin}, platform(t, "3.6"))
	require.NoError(t, err)

	pip, ok := binding.Tool("pip")
	require.True(t, ok)
	out, err := exec.Command(pip, "install", "setuptools==44.0.0").Output()
	require.NoError(t, err)
	assert.Equal(t, "python3 -m pip install setuptools==44.0.0", strings.TrimSpace(string(out)))
}

func TestResolve_PrefersMostSpecificName(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	fakeInterpreter(t, first, "python3", "3.6.1", false)
	exact := fakeInterpreter(t, second, "python3.6", "3.6.9", false)

	binding, err := newResolver(t).Resolve(context.Background(), t.TempDir(), []string{first, second}, platform(t, "3.6"))
	require.NoError(t, err)
	assert.Equal(t, exact, binding.Interpreter)
}

func TestResolve_SuffixedBinaryMustSatisfyConstraint(t *testing.T) {
	bin := t.TempDir()
	fakeInterpreter(t, bin, "python3", "3.5.2", false)
	fallback := fakeInterpreter(t, bin, "python", "3.6.0", false)

	binding, err := newResolver(t).Resolve(context.Background(), t.TempDir(), []string{bin}, platform(t, ">=3.6"))
	require.NoError(t, err)
	assert.Equal(t, fallback, binding.Interpreter)
}

func TestResolve_ToolchainNotFound(t *testing.T) {
	bin := t.TempDir()
	fakeInterpreter(t, bin, "python", "2.7.16", true)

	binding, err := newResolver(t).Resolve(context.Background(), t.TempDir(), []string{bin}, platform(t, "3"))
	require.Error(t, err)
	assert.Nil(t, binding)
	assert.Equal(t, domain.KindToolchainNotFound, domain.KindOf(err))
	assert.Contains(t, err.Error(), "toolchain not found")
}

func TestResolve_DoesNotTouchProcessPath(t *testing.T) {
	bin := t.TempDir()
	fakeInterpreter(t, bin, "python3", "3.8.10", false)
	before := os.Getenv("PATH")

	_, err := newResolver(t).Resolve(context.Background(), t.TempDir(), []string{bin}, platform(t, "3"))
	require.NoError(t, err)
	assert.Equal(t, before, os.Getenv("PATH"))
}
