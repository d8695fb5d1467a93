package pipeline_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/ship/internal/adapters/archive"
	"go.trai.ch/ship/internal/adapters/cas"
	"go.trai.ch/ship/internal/adapters/fs"
	"go.trai.ch/ship/internal/adapters/logger"
	"go.trai.ch/ship/internal/adapters/shell"
	"go.trai.ch/ship/internal/adapters/telemetry"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports/mocks"
	"go.trai.ch/ship/internal/engine/pipeline"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

// bundleScript writes an entrypoint that prints its name under <output>/tutor.
func bundleScript(output string) []string {
	return []string{"sh", "-c", "mkdir -p " + output + "/tutor" +
		" && printf '#!/bin/sh\\necho tutor 1.0\\n' > " + output + "/tutor/tutor" +
		" && chmod 755 " + output + "/tutor/tutor"}
}

type fixture struct {
	project  *domain.Project
	store    *cas.Store
	resolver *mocks.MockToolchainResolver
	pm       *mocks.MockPackageManager
}

func newFixture(t *testing.T, platforms ...domain.PlatformSpec) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte("print('tutor')\n"), 0o600))

	store, err := cas.NewStore(domain.DefaultStatePath(root))
	require.NoError(t, err)

	return &fixture{
		project: &domain.Project{
			Name:       "tutor",
			Root:       root,
			Entrypoint: "tutor/tutor",
			Sources:    []string{"app.py"},
			Verify:     domain.VerifySpec{Args: []string{"--version"}, Expect: "tutor", Timeout: 10 * time.Second},
			Bootstrap:  domain.BootstrapSpec{MaxAttempts: 1},
			Platforms:  platforms,
		},
		store:    store,
		resolver: mocks.NewMockToolchainResolver(ctrl),
		pm:       mocks.NewMockPackageManager(ctrl),
	}
}

func (f *fixture) pipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	log := logger.NewWithWriter(io.Discard)
	return pipeline.New(f.project, f.store, filepath.Join(t.TempDir(), "run"), 2, pipeline.Deps{
		Resolver:       f.resolver,
		PackageManager: f.pm,
		Executor:       shell.NewExecutor(log),
		Hasher:         fs.NewHasher(fs.NewWalker(), fs.NewResolver()),
		Packer:         archive.NewPacker(),
		Telemetry:      telemetry.NewNoOp(),
		Logger:         log,
	})
}

func (f *fixture) expectToolchains() {
	f.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ []string, p domain.PlatformSpec) (*domain.ToolchainBinding, error) {
			return &domain.ToolchainBinding{Platform: p.Name, Interpreter: "/usr/bin/python3"}, nil
		}).AnyTimes()
	f.pm.EXPECT().Installed(gomock.Any(), gomock.Any()).Return(map[string]string{"pip": "20.0.2"}, nil).AnyTimes()
}

var (
	linux = domain.PlatformSpec{Name: "linux", BundleCommand: bundleScript("dist-linux"), Output: "dist-linux"}
	other = domain.PlatformSpec{Name: "other", BundleCommand: bundleScript("dist-other"), Output: "dist-other"}
)

func TestPipeline_AllStages(t *testing.T) {
	f := newFixture(t, linux, other)
	f.expectToolchains()
	p := f.pipeline(t)
	ctx := context.Background()

	targets := pipeline.Targets(f.project.Platforms)
	require.NoError(t, p.Resolve(ctx, targets))
	require.NoError(t, p.Bootstrap(ctx, targets))
	require.NoError(t, p.Bundle(ctx, targets))
	require.NoError(t, p.Verify(ctx, targets))

	artifacts := pipeline.Artifacts(targets)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "linux", artifacts[0].Platform)
	assert.Equal(t, "other", artifacts[1].Platform)
	for _, a := range artifacts {
		assert.True(t, a.IsVerified())
		stored, err := f.store.Get(a.Platform)
		require.NoError(t, err)
		assert.True(t, stored.IsVerified())
	}

	for _, stage := range []pipeline.Stage{pipeline.StageResolve, pipeline.StageBootstrap, pipeline.StageBundle, pipeline.StageVerify} {
		assert.Equal(t, pipeline.StatusCompleted, p.Status(stage, "linux"), stage)
	}
}

func TestPipeline_RerunReusesVerifiedArtifacts(t *testing.T) {
	f := newFixture(t, linux)
	f.expectToolchains()
	ctx := context.Background()

	first := pipeline.Targets(f.project.Platforms)
	p := f.pipeline(t)
	require.NoError(t, p.Resolve(ctx, first))
	require.NoError(t, p.Bootstrap(ctx, first))
	require.NoError(t, p.Bundle(ctx, first))
	require.NoError(t, p.Verify(ctx, first))

	second := pipeline.Targets(f.project.Platforms)
	p = f.pipeline(t)
	require.NoError(t, p.Resolve(ctx, second))
	require.NoError(t, p.Observe(ctx, second))
	require.NoError(t, p.Bundle(ctx, second))
	require.NoError(t, p.Verify(ctx, second))

	assert.Equal(t, pipeline.StatusCached, p.Status(pipeline.StageBundle, "linux"))
	assert.Equal(t, pipeline.StatusCached, p.Status(pipeline.StageVerify, "linux"))
	assert.Equal(t, first[0].Artifact.Digest, second[0].Artifact.Digest)
}

func TestPipeline_ResolveStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, linux, other)
	f.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, domain.Fail(domain.KindToolchainNotFound, zerr.With(domain.ErrToolchainNotFound, "platform", "linux"))).
		Times(1)

	p := f.pipeline(t)
	err := p.Resolve(context.Background(), pipeline.Targets(f.project.Platforms))
	require.Error(t, err)
	assert.Equal(t, domain.KindToolchainNotFound, domain.KindOf(err))
	assert.Equal(t, pipeline.StatusFailed, p.Status(pipeline.StageResolve, "linux"))
	assert.Equal(t, pipeline.StatusPending, p.Status(pipeline.StageResolve, "other"))
}

func TestPipeline_BundleFailureFailsRun(t *testing.T) {
	broken := other
	broken.BundleCommand = []string{"sh", "-c", "exit 3"}
	f := newFixture(t, linux, broken)
	f.expectToolchains()
	p := f.pipeline(t)
	ctx := context.Background()

	targets := pipeline.Targets(f.project.Platforms)
	require.NoError(t, p.Resolve(ctx, targets))
	require.NoError(t, p.Bootstrap(ctx, targets))

	err := p.Bundle(ctx, targets)
	require.Error(t, err)
	assert.Equal(t, domain.KindBundleBuildFailed, domain.KindOf(err))
	assert.Equal(t, pipeline.StatusFailed, p.Status(pipeline.StageBundle, "other"))
}

func TestPipeline_SharedOutputBuildsOneAtATime(t *testing.T) {
	a := domain.PlatformSpec{Name: "a", BundleCommand: bundleScript("dist"), Output: "dist"}
	b := domain.PlatformSpec{Name: "b", BundleCommand: bundleScript("dist"), Output: "dist"}
	f := newFixture(t, a, b)
	f.expectToolchains()
	p := f.pipeline(t)
	ctx := context.Background()

	targets := pipeline.Targets(f.project.Platforms)
	require.NoError(t, p.Resolve(ctx, targets))
	require.NoError(t, p.Bootstrap(ctx, targets))
	require.NoError(t, p.Bundle(ctx, targets))
	require.NoError(t, p.Verify(ctx, targets))

	assert.Equal(t, targets[0].Artifact.Digest, targets[1].Artifact.Digest)
}

func TestPipeline_LoadArtifacts(t *testing.T) {
	f := newFixture(t, linux, other)
	p := f.pipeline(t)

	require.NoError(t, f.store.Put(domain.Artifact{Platform: "linux", Digest: "blake3:00"}))

	targets := pipeline.Targets(f.project.Platforms)
	err := p.LoadArtifacts(targets, domain.KindBundleVerificationFailed)
	require.Error(t, err)
	assert.Equal(t, domain.KindBundleVerificationFailed, domain.KindOf(err))
	assert.Contains(t, err.Error(), "artifact not found")

	require.NoError(t, p.LoadArtifacts(targets[:1], domain.KindBundleVerificationFailed))
	assert.Equal(t, "blake3:00", targets[0].Artifact.Digest)
}

func TestPipeline_CanceledBeforeStage(t *testing.T) {
	f := newFixture(t, linux)
	p := f.pipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	targets := pipeline.Targets(f.project.Platforms)
	require.ErrorIs(t, p.Resolve(ctx, targets), context.Canceled)
	require.ErrorIs(t, p.Bundle(ctx, targets), context.Canceled)
	assert.Equal(t, pipeline.StatusPending, p.Status(pipeline.StageResolve, "linux"))
}
