package bundler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/ship/internal/adapters/archive"
	"go.trai.ch/ship/internal/adapters/cas"
	"go.trai.ch/ship/internal/adapters/fs"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports/mocks"
	"go.trai.ch/ship/internal/engine/bundler"
	"go.uber.org/mock/gomock"
)

var linux = domain.PlatformSpec{
	Name:          "linux",
	OS:            "linux",
	Interpreter:   "python",
	Toolchain:     domain.MustParseConstraint("3.6"),
	ABI:           "glibc2.23",
	BundleCommand: []string{"make", "bundle"},
	Output:        "dist",
}

func newProject(t *testing.T) *domain.Project {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tutor"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tutor", "main.py"), []byte("print('tutor')\n"), 0o600))
	return &domain.Project{
		Name:       "tutor",
		Root:       root,
		Entrypoint: "tutor/tutor",
		Sources:    []string{"tutor"},
		Platforms:  []domain.PlatformSpec{linux},
	}
}

func newEnv() *domain.Environment {
	return &domain.Environment{
		Binding: &domain.ToolchainBinding{
			Platform:           "linux",
			Interpreter:        "/usr/bin/python3.6",
			InterpreterVersion: domain.MustParseVersion("3.6.9"),
			SearchPath:         []string{"/run/bin", "/usr/bin"},
		},
		Packages: map[string]string{"pyinstaller": "3.6", "setuptools": "44.0.0"},
	}
}

func quietLogger(ctrl *gomock.Controller) *mocks.MockLogger {
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Info(gomock.Any()).AnyTimes()
	logger.EXPECT().Warn(gomock.Any()).AnyTimes()
	return logger
}

// produce makes the executor behave like a bundle command writing a fixed tree.
func produce(root string) func(context.Context, *domain.Command) (*domain.CommandResult, error) {
	return func(_ context.Context, cmd *domain.Command) (*domain.CommandResult, error) {
		out := filepath.Join(root, "dist", "tutor")
		if err := os.MkdirAll(out, 0o750); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(out, "tutor"), []byte("#!/bin/sh\necho tutor 1.0\n"), 0o700); err != nil {
			return nil, err
		}
		return &domain.CommandResult{}, nil
	}
}

func newBundler(t *testing.T, ctrl *gomock.Controller, project *domain.Project, exec *mocks.MockExecutor) (*bundler.Bundler, *cas.Store) {
	t.Helper()
	store, err := cas.NewStore(domain.DefaultStatePath(project.Root))
	require.NoError(t, err)
	hasher := fs.NewHasher(fs.NewWalker(), fs.NewResolver())
	return bundler.New(project, store, exec, hasher, archive.NewPacker(), quietLogger(ctrl)), store
}

func TestBundle_ProducesArtifact(t *testing.T) {
	ctrl := gomock.NewController(t)
	project := newProject(t)
	exec := mocks.NewMockExecutor(ctrl)

	exec.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, cmd *domain.Command) (*domain.CommandResult, error) {
			assert.Equal(t, "make", cmd.Name)
			assert.Equal(t, []string{"bundle"}, cmd.Args)
			assert.Equal(t, project.Root, cmd.Dir)
			assert.Equal(t, []string{"/run/bin", "/usr/bin"}, cmd.SearchPath)
			assert.Equal(t, "0", cmd.Env["PYTHONHASHSEED"])
			assert.Equal(t, bundler.DefaultSourceDateEpoch, cmd.Env["SOURCE_DATE_EPOCH"])
			return produce(project.Root)(ctx, cmd)
		})

	b, store := newBundler(t, ctrl, project, exec)
	artifact, err := b.Bundle(context.Background(), newEnv(), linux)
	require.NoError(t, err)

	assert.Equal(t, "linux", artifact.Platform)
	assert.Contains(t, artifact.Digest, "blake3:")
	assert.NotEmpty(t, artifact.InputHash)
	assert.False(t, artifact.BuildTimestamp.IsZero())
	assert.False(t, artifact.IsVerified())
	_, err = os.Stat(artifact.Path)
	require.NoError(t, err)

	stored, err := store.Get("linux")
	require.NoError(t, err)
	assert.Equal(t, artifact.Digest, stored.Digest)
}

func TestBundle_DeterministicAcrossCheckouts(t *testing.T) {
	ctrl := gomock.NewController(t)

	var digests, hashes []string
	for range 2 {
		project := newProject(t)
		exec := mocks.NewMockExecutor(ctrl)
		exec.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(produce(project.Root))

		b, _ := newBundler(t, ctrl, project, exec)
		artifact, err := b.Bundle(context.Background(), newEnv(), linux)
		require.NoError(t, err)
		digests = append(digests, artifact.Digest)
		hashes = append(hashes, artifact.InputHash)
	}

	assert.Equal(t, digests[0], digests[1])
	assert.Equal(t, hashes[0], hashes[1])
}

func TestBundle_ReusesArtifactWithSameInputs(t *testing.T) {
	ctrl := gomock.NewController(t)
	project := newProject(t)
	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(produce(project.Root)).Times(1)

	b, _ := newBundler(t, ctrl, project, exec)
	first, err := b.Bundle(context.Background(), newEnv(), linux)
	require.NoError(t, err)
	second, err := b.Bundle(context.Background(), newEnv(), linux)
	require.NoError(t, err)

	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.BuildTimestamp.Unix(), second.BuildTimestamp.Unix())
}

func TestBundle_RebuildsWhenSourcesChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	project := newProject(t)
	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(produce(project.Root)).Times(2)

	b, _ := newBundler(t, ctrl, project, exec)
	first, err := b.Bundle(context.Background(), newEnv(), linux)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(project.Root, "tutor", "main.py"), []byte("print('v2')\n"), 0o600))
	second, err := b.Bundle(context.Background(), newEnv(), linux)
	require.NoError(t, err)

	assert.NotEqual(t, first.InputHash, second.InputHash)
}

func TestBundle_CommandFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	project := newProject(t)
	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().Run(gomock.Any(), gomock.Any()).
		Return(&domain.CommandResult{ExitCode: 2}, errors.New("exit status 2"))

	b, store := newBundler(t, ctrl, project, exec)
	_, err := b.Bundle(context.Background(), newEnv(), linux)

	require.Error(t, err)
	assert.Equal(t, domain.KindBundleBuildFailed, domain.KindOf(err))
	assert.Equal(t, 13, domain.ExitCode(err))

	stored, err := store.Get("linux")
	require.NoError(t, err)
	assert.Nil(t, stored, "a failed build records nothing")
}

func TestBundle_EmptyOutput(t *testing.T) {
	ctrl := gomock.NewController(t)
	project := newProject(t)
	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *domain.Command) (*domain.CommandResult, error) {
			return &domain.CommandResult{}, os.MkdirAll(filepath.Join(project.Root, "dist"), 0o750)
		})

	b, _ := newBundler(t, ctrl, project, exec)
	_, err := b.Bundle(context.Background(), newEnv(), linux)

	require.Error(t, err)
	assert.Equal(t, domain.KindBundleBuildFailed, domain.KindOf(err))
	assert.Contains(t, err.Error(), "bundle output is empty")
}

func TestBundle_CleansStaleOutput(t *testing.T) {
	ctrl := gomock.NewController(t)
	project := newProject(t)
	stale := filepath.Join(project.Root, "dist", "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o750))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))

	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(produce(project.Root))

	b, _ := newBundler(t, ctrl, project, exec)
	_, err := b.Bundle(context.Background(), newEnv(), linux)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestBuildEnv(t *testing.T) {
	macos := domain.PlatformSpec{
		Name: "macos",
		ABI:  "macos10.13",
		Env:  map[string]string{"SOURCE_DATE_EPOCH": "1600000000", "PYTHONHASHSEED": "random"},
	}

	vars := bundler.BuildEnv(newEnv(), macos)

	assert.Equal(t, "10.13", vars["MACOSX_DEPLOYMENT_TARGET"])
	assert.Equal(t, "1600000000", vars["SOURCE_DATE_EPOCH"])
	assert.Equal(t, "0", vars["PYTHONHASHSEED"])
	assert.Equal(t, "macos", vars["SHIP_PLATFORM"])
	assert.Equal(t, "/usr/bin/python3.6", vars["SHIP_INTERPRETER"])

	linuxVars := bundler.BuildEnv(nil, linux)
	assert.NotContains(t, linuxVars, "MACOSX_DEPLOYMENT_TARGET")
	assert.NotContains(t, linuxVars, "SHIP_INTERPRETER")
}
