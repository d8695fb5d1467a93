// Package verifier smoke-tests bundles outside the build environment.
package verifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

// isolatedPath is the only search path the bundled program sees.
const isolatedPath = "/usr/bin:/bin"

// Verifier extracts an artifact into a private directory and runs its entrypoint with
// none of the build toolchain reachable.
type Verifier struct {
	project  *domain.Project
	store    ports.ArtifactStore
	executor ports.Executor
	packer   ports.Packer
	logger   ports.Logger
}

// New creates a Verifier for project.
func New(
	project *domain.Project,
	store ports.ArtifactStore,
	executor ports.Executor,
	packer ports.Packer,
	logger ports.Logger,
) *Verifier {
	return &Verifier{
		project:  project,
		store:    store,
		executor: executor,
		packer:   packer,
		logger:   logger,
	}
}

// Verify checks artifact's content against its digest, runs the smoke test and records
// the artifact as verified.
func (v *Verifier) Verify(ctx context.Context, artifact domain.Artifact) (*domain.Artifact, error) {
	digest, err := v.packer.Digest(artifact.Path)
	if err != nil {
		return nil, verificationFailed(artifact, err)
	}
	if digest != artifact.Digest {
		err := zerr.With(domain.ErrDigestMismatch, "expected", artifact.Digest)
		return nil, verificationFailed(artifact, zerr.With(err, "actual", digest))
	}

	dir, err := os.MkdirTemp("", "ship-verify-"+artifact.Platform+"-")
	if err != nil {
		return nil, verificationFailed(artifact, zerr.Wrap(err, "failed to create verify directory"))
	}
	defer func() { _ = os.RemoveAll(dir) }()

	bundleDir := filepath.Join(dir, "bundle")
	home := filepath.Join(dir, "home")
	for _, d := range []string{bundleDir, home} {
		if err := os.Mkdir(d, domain.DirPerm); err != nil {
			return nil, verificationFailed(artifact, zerr.Wrap(err, "failed to create verify directory"))
		}
	}

	if err := v.packer.Unpack(ctx, artifact.Path, bundleDir); err != nil {
		return nil, verificationFailed(artifact, zerr.Wrap(err, "failed to extract bundle"))
	}

	entry := filepath.Join(bundleDir, filepath.FromSlash(v.project.Entrypoint))
	info, err := os.Stat(entry)
	if err != nil || !info.Mode().IsRegular() {
		err := zerr.With(zerr.New("bundle has no entrypoint"), "entrypoint", v.project.Entrypoint)
		return nil, verificationFailed(artifact, err)
	}

	if err := v.smokeTest(ctx, entry, home); err != nil {
		return nil, verificationFailed(artifact, err)
	}

	verified := artifact
	verified.Verified = true
	verified.VerifiedDigest = artifact.Digest
	if err := v.store.Put(verified); err != nil {
		return nil, verificationFailed(artifact, err)
	}

	v.logger.Info(fmt.Sprintf("%s: bundle verified %s", artifact.Platform, artifact.Digest))
	return &verified, nil
}

func (v *Verifier) smokeTest(ctx context.Context, entry, home string) error {
	spec := v.project.Verify
	res, err := v.executor.Run(ctx, &domain.Command{
		Name:     entry,
		Args:     spec.Args,
		Dir:      home,
		Env:      IsolatedEnv(home),
		Isolated: true,
		Timeout:  spec.Timeout,
	})
	if err != nil {
		if res != nil && res.TimedOut {
			return zerr.With(zerr.Wrap(err, "smoke test timed out"), "timeout", spec.Timeout.String())
		}
		if res != nil {
			err = zerr.With(err, "output", tail(res.Output()))
		}
		return zerr.Wrap(err, "smoke test failed")
	}

	out := strings.TrimSpace(res.Output())
	if out == "" {
		return zerr.New("smoke test produced no output")
	}
	if spec.Expect != "" && !strings.Contains(out, spec.Expect) {
		err := zerr.With(zerr.New("smoke test output does not identify the program"), "expect", spec.Expect)
		return zerr.With(err, "output", tail(out))
	}
	return nil
}

// IsolatedEnv is the complete environment of the smoke test.
func IsolatedEnv(home string) map[string]string {
	return map[string]string{
		"PATH":   isolatedPath,
		"HOME":   home,
		"TMPDIR": home,
		"LANG":   "C.UTF-8",
	}
}

func tail(s string) string {
	const limit = 512
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

func verificationFailed(artifact domain.Artifact, err error) error {
	err = zerr.With(zerr.Wrap(err, domain.ErrBundleVerificationFailed.Error()), "platform", artifact.Platform)
	return domain.Fail(domain.KindBundleVerificationFailed, err)
}
