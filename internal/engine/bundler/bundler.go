// Package bundler turns a bootstrapped environment into one deterministic artifact per
// platform.
package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultSourceDateEpoch is 1980-01-01T00:00:00Z, the earliest time zip-based formats
// can represent.
const DefaultSourceDateEpoch = "315532800"

// Bundler runs platform bundle commands and packs their output.
type Bundler struct {
	project  *domain.Project
	store    ports.ArtifactStore
	executor ports.Executor
	hasher   ports.Hasher
	packer   ports.Packer
	logger   ports.Logger
	now      func() time.Time
}

// New creates a Bundler for project, recording artifacts in store.
func New(
	project *domain.Project,
	store ports.ArtifactStore,
	executor ports.Executor,
	hasher ports.Hasher,
	packer ports.Packer,
	logger ports.Logger,
) *Bundler {
	return &Bundler{
		project:  project,
		store:    store,
		executor: executor,
		hasher:   hasher,
		packer:   packer,
		logger:   logger,
		now:      time.Now,
	}
}

// Bundle produces the artifact of platform. An artifact built from the same inputs is
// reused. The returned artifact is unverified unless it was reused after verification.
func (b *Bundler) Bundle(
	ctx context.Context, env *domain.Environment, platform domain.PlatformSpec,
) (*domain.Artifact, error) {
	exclude := append(append([]string(nil), b.project.Exclude...), platform.Output)
	inputHash, err := b.hasher.ComputeInputHash(b.project.Root, b.project.Sources, exclude, env, platform)
	if err != nil {
		return nil, buildFailed(platform, zerr.Wrap(err, "failed to hash bundle inputs"))
	}

	if cached, err := b.cached(platform, inputHash); err != nil {
		return nil, buildFailed(platform, err)
	} else if cached != nil {
		b.logger.Info(fmt.Sprintf("%s: inputs unchanged, reusing %s", platform.Name, cached.Digest))
		if v, ok := ports.VertexFromContext(ctx); ok {
			v.Cached()
		}
		return cached, nil
	}

	outDir := filepath.Join(b.project.Root, filepath.FromSlash(platform.Output))
	if err := os.RemoveAll(outDir); err != nil {
		return nil, buildFailed(platform, zerr.With(zerr.Wrap(err, "failed to clean bundle output"), "path", outDir))
	}

	if err := b.runBundleCommand(ctx, env, platform); err != nil {
		return nil, buildFailed(platform, err)
	}

	staging := b.store.StagingPath(platform.Name)
	digest, size, err := b.packer.Pack(ctx, outDir, staging)
	if err != nil {
		return nil, buildFailed(platform, zerr.Wrap(err, "failed to pack bundle"))
	}
	path, err := b.store.Ingest(staging, digest)
	if err != nil {
		return nil, buildFailed(platform, err)
	}

	artifact := domain.Artifact{
		Platform:       platform.Name,
		Path:           path,
		Digest:         digest,
		Size:           size,
		InputHash:      inputHash,
		BuildTimestamp: b.now().UTC(),
	}
	if err := b.store.Put(artifact); err != nil {
		return nil, buildFailed(platform, err)
	}

	b.logger.Info(fmt.Sprintf("%s: bundled %s (%d bytes)", platform.Name, digest, size))
	return &artifact, nil
}

// cached returns the stored artifact of platform when it was built from inputHash and
// its archive is still present.
func (b *Bundler) cached(platform domain.PlatformSpec, inputHash string) (*domain.Artifact, error) {
	prev, err := b.store.Get(platform.Name)
	if err != nil || prev == nil {
		return nil, err
	}
	if prev.InputHash != inputHash {
		return nil, nil
	}
	if _, err := os.Stat(prev.Path); err != nil {
		return nil, nil
	}
	return prev, nil
}

func (b *Bundler) runBundleCommand(ctx context.Context, env *domain.Environment, platform domain.PlatformSpec) error {
	if len(platform.BundleCommand) == 0 {
		return zerr.With(zerr.New("platform has no bundle command"), "platform", platform.Name)
	}

	cmd := &domain.Command{
		Name:       platform.BundleCommand[0],
		Args:       platform.BundleCommand[1:],
		Dir:        b.project.Root,
		Env:        BuildEnv(env, platform),
		SearchPath: env.Binding.SearchPath,
		Stream:     true,
	}
	if _, err := b.executor.Run(ctx, cmd); err != nil {
		return zerr.Wrap(err, "bundle command failed")
	}
	return nil
}

// BuildEnv returns the variables the bundle command runs with. Platform variables may
// override the timestamp; hash randomization is always off.
func BuildEnv(env *domain.Environment, platform domain.PlatformSpec) map[string]string {
	vars := map[string]string{
		"SOURCE_DATE_EPOCH": DefaultSourceDateEpoch,
		"SHIP_PLATFORM":     platform.Name,
	}
	if env != nil && env.Binding != nil && env.Binding.Interpreter != "" {
		vars["SHIP_INTERPRETER"] = env.Binding.Interpreter
	}
	if target := platform.DeploymentTarget(); target != "" {
		vars["MACOSX_DEPLOYMENT_TARGET"] = target
	}
	for k, v := range platform.Env {
		vars[k] = v
	}
	vars["PYTHONHASHSEED"] = "0"
	return vars
}

func buildFailed(platform domain.PlatformSpec, err error) error {
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	err = zerr.With(zerr.Wrap(err, domain.ErrBundleBuildFailed.Error()), "platform", platform.Name)
	return domain.Fail(domain.KindBundleBuildFailed, err)
}
