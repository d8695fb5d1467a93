// Package bootstrap installs the build-time dependency set into a resolved toolchain.
package bootstrap

import (
	"context"
	"fmt"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/ship/internal/engine/retry"
	"go.trai.ch/zerr"
)

// packageManagerName is the package the version floor applies to.
const packageManagerName = "pip"

// Bootstrapper installs pinned requirements so later stages observe exactly those versions.
type Bootstrapper struct {
	pm     ports.PackageManager
	logger ports.Logger
}

// New creates a new Bootstrapper.
func New(pm ports.PackageManager, logger ports.Logger) *Bootstrapper {
	return &Bootstrapper{pm: pm, logger: logger}
}

// Bootstrap brings the toolchain's packages in line with spec and returns the versions
// the package manager reports afterwards. Requirements already satisfied are left alone,
// so running it again with the same spec changes nothing.
func (b *Bootstrapper) Bootstrap(
	ctx context.Context, binding *domain.ToolchainBinding, spec domain.BootstrapSpec,
) (*domain.Environment, error) {
	if err := domain.DetectConflicts(spec.Requirements); err != nil {
		return nil, err
	}

	installed, err := b.installed(ctx, binding, spec)
	if err != nil {
		return nil, err
	}

	changed := false
	if spec.PackageManagerFloor != "" {
		floor := domain.DependencySpec{Name: packageManagerName, Version: spec.PackageManagerFloor}
		if !floor.SatisfiedBy(installed[floor.Key()]) {
			b.logger.Info(fmt.Sprintf("%s: upgrading %s to at least %s", binding.Platform, packageManagerName, floor.Version))
			if err := b.install(ctx, binding, spec, floor); err != nil {
				return nil, err
			}
			changed = true
		}
	}

	for _, req := range spec.Requirements {
		if req.SatisfiedBy(installed[req.Key()]) {
			continue
		}
		b.logger.Info(fmt.Sprintf("%s: installing %s", binding.Platform, req.Requirement()))
		if err := b.install(ctx, binding, spec, req); err != nil {
			return nil, err
		}
		changed = true
	}

	if changed {
		if installed, err = b.installed(ctx, binding, spec); err != nil {
			return nil, err
		}
	}

	for _, req := range spec.Requirements {
		if have := installed[req.Key()]; !req.SatisfiedBy(have) {
			err := zerr.With(domain.ErrVersionConflict, "requirement", req.Requirement())
			err = zerr.With(err, "installed", have)
			return nil, domain.Fail(domain.KindVersionConflict, zerr.With(err, "platform", binding.Platform))
		}
	}

	return &domain.Environment{Binding: binding, Packages: installed}, nil
}

// Observe returns the environment a previous Bootstrap produced without installing
// anything. It fails when a requirement is not satisfied.
func (b *Bootstrapper) Observe(
	ctx context.Context, binding *domain.ToolchainBinding, spec domain.BootstrapSpec,
) (*domain.Environment, error) {
	installed, err := b.installed(ctx, binding, spec)
	if err != nil {
		return nil, err
	}
	for _, req := range spec.Requirements {
		if !req.SatisfiedBy(installed[req.Key()]) {
			err := zerr.With(domain.ErrNotBootstrapped, "requirement", req.Requirement())
			return nil, domain.Fail(domain.KindDependencyUnavailable, zerr.With(err, "platform", binding.Platform))
		}
	}
	return &domain.Environment{Binding: binding, Packages: installed}, nil
}

func (b *Bootstrapper) policy(binding *domain.ToolchainBinding, spec domain.BootstrapSpec, what string) retry.Policy {
	return retry.Policy{
		Attempts:  spec.MaxAttempts,
		Backoff:   spec.Backoff,
		Retryable: domain.IsRetryable,
		OnRetry: func(attempt int, err error) {
			b.logger.Warn(fmt.Sprintf("%s: %s failed (attempt %d), retrying: %v", binding.Platform, what, attempt, err))
		},
	}
}

func (b *Bootstrapper) installed(
	ctx context.Context, binding *domain.ToolchainBinding, spec domain.BootstrapSpec,
) (map[string]string, error) {
	var installed map[string]string
	err := retry.Do(ctx, b.policy(binding, spec, "listing packages"), func(ctx context.Context) error {
		var err error
		installed, err = b.pm.Installed(ctx, binding)
		return unavailable(err)
	})
	if err != nil {
		return nil, err
	}
	return installed, nil
}

func (b *Bootstrapper) install(
	ctx context.Context, binding *domain.ToolchainBinding, spec domain.BootstrapSpec, req domain.DependencySpec,
) error {
	return retry.Do(ctx, b.policy(binding, spec, "installing "+req.Requirement()), func(ctx context.Context) error {
		return unavailable(b.pm.Install(ctx, binding, req, spec.InstallTimeout))
	})
}

// unavailable treats unclassified package manager failures as transient.
func unavailable(err error) error {
	if err == nil || domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return domain.Fail(domain.KindDependencyUnavailable, err)
}
