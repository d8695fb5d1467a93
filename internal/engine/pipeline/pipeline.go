// Package pipeline runs the build stages over the selected platforms.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/ship/internal/engine/bootstrap"
	"go.trai.ch/ship/internal/engine/bundler"
	"go.trai.ch/ship/internal/engine/verifier"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageBootstrap Stage = "bootstrap"
	StageBundle    Stage = "bundle"
	StageVerify    Stage = "verify"
)

// Status represents the status of one platform in one stage.
type Status string

const (
	// StatusPending indicates the platform has not started the stage.
	StatusPending Status = "Pending"
	// StatusRunning indicates the stage is currently executing.
	StatusRunning Status = "Running"
	// StatusCompleted indicates the stage finished successfully.
	StatusCompleted Status = "Completed"
	// StatusFailed indicates the stage failed.
	StatusFailed Status = "Failed"
	// StatusCached indicates the stage reused an earlier result.
	StatusCached Status = "Cached"
)

// Target accumulates one platform's stage outputs.
type Target struct {
	Platform domain.PlatformSpec
	Binding  *domain.ToolchainBinding
	Env      *domain.Environment
	Artifact *domain.Artifact
}

// Deps are the adapters a pipeline drives.
type Deps struct {
	Resolver       ports.ToolchainResolver
	PackageManager ports.PackageManager
	Executor       ports.Executor
	Hasher         ports.Hasher
	Packer         ports.Packer
	Telemetry      ports.Telemetry
	Logger         ports.Logger
}

// Pipeline runs stages for one run. Resolution and bootstrap handle platforms one at a
// time; bundling and verification fan out up to the configured parallelism.
type Pipeline struct {
	project      *domain.Project
	store        ports.ArtifactStore
	runDir       string
	parallelism  int
	resolver     ports.ToolchainResolver
	bootstrapper *bootstrap.Bootstrapper
	bundler      *bundler.Bundler
	verifier     *verifier.Verifier
	telemetry    ports.Telemetry

	mu      sync.RWMutex
	status  map[Stage]map[string]Status
	outputs map[string]*sync.Mutex
}

// New creates a Pipeline writing its private files below runDir.
func New(project *domain.Project, store ports.ArtifactStore, runDir string, parallelism int, deps Deps) *Pipeline {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Pipeline{
		project:      project,
		store:        store,
		runDir:       runDir,
		parallelism:  parallelism,
		resolver:     deps.Resolver,
		bootstrapper: bootstrap.New(deps.PackageManager, deps.Logger),
		bundler:      bundler.New(project, store, deps.Executor, deps.Hasher, deps.Packer, deps.Logger),
		verifier:     verifier.New(project, store, deps.Executor, deps.Packer, deps.Logger),
		telemetry:    deps.Telemetry,
		status:       make(map[Stage]map[string]Status),
		outputs:      make(map[string]*sync.Mutex),
	}
}

// Targets returns one target per platform, in the given order.
func Targets(platforms []domain.PlatformSpec) []*Target {
	targets := make([]*Target, len(platforms))
	for i, p := range platforms {
		targets[i] = &Target{Platform: p}
	}
	return targets
}

// Resolve binds each target's toolchain.
func (p *Pipeline) Resolve(ctx context.Context, targets []*Target) error {
	return p.sequential(ctx, StageResolve, targets, func(ctx context.Context, t *Target) error {
		binding, err := p.resolver.Resolve(ctx, p.runDir, p.project.SearchPath, t.Platform)
		if err != nil {
			return err
		}
		t.Binding = binding
		return nil
	})
}

// Bootstrap installs the build-time dependency set into each resolved toolchain.
func (p *Pipeline) Bootstrap(ctx context.Context, targets []*Target) error {
	return p.sequential(ctx, StageBootstrap, targets, func(ctx context.Context, t *Target) error {
		env, err := p.bootstrapper.Bootstrap(ctx, t.Binding, p.project.Bootstrap)
		if err != nil {
			return err
		}
		t.Env = env
		return nil
	})
}

// Observe records each toolchain's already-bootstrapped environment without installing.
func (p *Pipeline) Observe(ctx context.Context, targets []*Target) error {
	return p.sequential(ctx, StageBootstrap, targets, func(ctx context.Context, t *Target) error {
		env, err := p.bootstrapper.Observe(ctx, t.Binding, p.project.Bootstrap)
		if err != nil {
			return err
		}
		if v, ok := ports.VertexFromContext(ctx); ok {
			v.Cached()
		}
		t.Env = env
		return nil
	})
}

// Bundle builds every target's artifact. Targets sharing an output directory never
// build at the same time.
func (p *Pipeline) Bundle(ctx context.Context, targets []*Target) error {
	return p.parallel(ctx, StageBundle, targets, func(ctx context.Context, t *Target) error {
		lock := p.outputLock(t.Platform.Output)
		lock.Lock()
		defer lock.Unlock()

		artifact, err := p.bundler.Bundle(ctx, t.Env, t.Platform)
		if err != nil {
			return err
		}
		t.Artifact = artifact
		return nil
	})
}

// Verify smoke-tests every target's artifact. An artifact whose current content already
// passed verification is not run again.
func (p *Pipeline) Verify(ctx context.Context, targets []*Target) error {
	return p.parallel(ctx, StageVerify, targets, func(ctx context.Context, t *Target) error {
		if t.Artifact.IsVerified() {
			if v, ok := ports.VertexFromContext(ctx); ok {
				v.Cached()
			}
			return nil
		}
		verified, err := p.verifier.Verify(ctx, *t.Artifact)
		if err != nil {
			return err
		}
		t.Artifact = verified
		return nil
	})
}

// LoadArtifacts fills each target's artifact from the store. A missing artifact fails
// with kind, the failure of the stage that should have produced it.
func (p *Pipeline) LoadArtifacts(targets []*Target, kind domain.Kind) error {
	for _, t := range targets {
		a, err := p.store.Get(t.Platform.Name)
		if err != nil {
			return domain.Fail(kind, err)
		}
		if a == nil {
			return domain.Fail(kind, zerr.With(domain.ErrArtifactNotFound, "platform", t.Platform.Name))
		}
		t.Artifact = a
	}
	return nil
}

// Artifacts returns the targets' artifacts in target order.
func Artifacts(targets []*Target) []domain.Artifact {
	out := make([]domain.Artifact, 0, len(targets))
	for _, t := range targets {
		if t.Artifact != nil {
			out = append(out, *t.Artifact)
		}
	}
	return out
}

// Status returns the status of platform in stage.
func (p *Pipeline) Status(stage Stage, platform string) Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.status[stage][platform]; ok {
		return s
	}
	return StatusPending
}

func (p *Pipeline) setStatus(stage Stage, platform string, s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status[stage] == nil {
		p.status[stage] = make(map[string]Status)
	}
	p.status[stage][platform] = s
}

func (p *Pipeline) outputLock(output string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.outputs[output]
	if !ok {
		l = &sync.Mutex{}
		p.outputs[output] = l
	}
	return l
}

type stageFunc func(ctx context.Context, t *Target) error

// sequential runs fn for each target in order and stops at the first failure.
func (p *Pipeline) sequential(ctx context.Context, stage Stage, targets []*Target, fn stageFunc) error {
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runOne(ctx, stage, t, fn); err != nil {
			return err
		}
	}
	return nil
}

// parallel runs fn for every target concurrently. The first failure cancels the targets
// still running; the errors are joined in target order.
func (p *Pipeline) parallel(ctx context.Context, stage Stage, targets []*Target, fn stageFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	errs := make([]error, len(targets))
	for i, t := range targets {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			errs[i] = p.runOne(gctx, stage, t, fn)
			return errs[i]
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (p *Pipeline) runOne(ctx context.Context, stage Stage, t *Target, fn stageFunc) (err error) {
	vctx, v := p.telemetry.Record(ctx, string(stage)+" "+t.Platform.Name)
	tracked := &trackedVertex{Vertex: v}
	vctx = ports.ContextWithVertex(vctx, tracked)

	p.setStatus(stage, t.Platform.Name, StatusRunning)
	defer func() {
		v.Complete(err)
		switch {
		case err != nil:
			p.setStatus(stage, t.Platform.Name, StatusFailed)
		case tracked.cached.Load():
			p.setStatus(stage, t.Platform.Name, StatusCached)
		default:
			p.setStatus(stage, t.Platform.Name, StatusCompleted)
		}
	}()

	return fn(vctx, t)
}

// trackedVertex remembers whether a stage reported a reused result.
type trackedVertex struct {
	ports.Vertex
	cached atomic.Bool
}

func (v *trackedVertex) Cached() {
	v.cached.Store(true)
	v.Vertex.Cached()
}
