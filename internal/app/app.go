// Package app implements the application layer for ship.
package app

import (
	"context"
	"os"
	"runtime"
	"time"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/ship/internal/engine/pipeline"
	"go.trai.ch/ship/internal/engine/publisher"
	"go.trai.ch/zerr"
)

// Options select the configuration and platforms of a command.
type Options struct {
	ConfigPath string
	// Platforms names the platforms to act on. Empty selects every platform whose OS is
	// the host's.
	Platforms []string
}

// PublishOptions carry the release facts supplied by the pipeline driver.
type PublishOptions struct {
	Options
	Tag    string
	Tagged bool
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	stores       ports.ArtifactStoreOpener
	releases     ports.ReleaseStoreOpener
	deps         pipeline.Deps

	hostOS      string
	parallelism int
	now         func() time.Time
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	stores ports.ArtifactStoreOpener,
	releases ports.ReleaseStoreOpener,
	deps pipeline.Deps,
) *App {
	return &App{
		configLoader: loader,
		stores:       stores,
		releases:     releases,
		deps:         deps,
		hostOS:       runtime.GOOS,
		parallelism:  runtime.NumCPU(),
		now:          time.Now,
	}
}

// WithHostOS overrides the OS used to select default platforms.
func (a *App) WithHostOS(goos string) *App {
	a.hostOS = goos
	return a
}

// session is the state of one command invocation.
type session struct {
	project  *domain.Project
	store    ports.ArtifactStore
	pipeline *pipeline.Pipeline
	targets  []*pipeline.Target
	runDir   string
}

func (a *App) begin(opts Options, report *Report) (*session, error) {
	project, err := a.configLoader.Load(opts.ConfigPath)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}

	platforms, err := selectPlatforms(project, opts.Platforms, a.hostOS)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = p.Name
	}
	report.Platforms = names

	stateDir := domain.DefaultStatePath(project.Root)
	store, err := a.stores.Open(stateDir)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open artifact store")
	}

	runDir := domain.RunPath(stateDir, domain.GenerateRunID(os.Getpid(), a.now(), names))
	return &session{
		project:  project,
		store:    store,
		pipeline: pipeline.New(project, store, runDir, a.parallelism, a.deps),
		targets:  pipeline.Targets(platforms),
		runDir:   runDir,
	}, nil
}

func (a *App) end(s *session) {
	if err := os.RemoveAll(s.runDir); err != nil {
		a.deps.Logger.Warn("failed to remove run directory " + s.runDir + ": " + err.Error())
	}
}

// Bootstrap resolves each selected platform's toolchain and installs the build-time
// dependency set into it.
func (a *App) Bootstrap(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{Command: "bootstrap"}
	s, err := a.begin(opts, report)
	if err != nil {
		return report.settle(err)
	}
	defer a.end(s)

	if err := s.pipeline.Resolve(ctx, s.targets); err != nil {
		return report.settle(err)
	}
	if err := s.pipeline.Bootstrap(ctx, s.targets); err != nil {
		return report.settle(err)
	}
	for _, t := range s.targets {
		report.Toolchains = append(report.Toolchains, toolchainReport(t))
	}
	return report.settle(nil)
}

// Bundle builds each selected platform's artifact from an already bootstrapped toolchain.
func (a *App) Bundle(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{Command: "bundle"}
	s, err := a.begin(opts, report)
	if err != nil {
		return report.settle(err)
	}
	defer a.end(s)

	if err := s.pipeline.Resolve(ctx, s.targets); err != nil {
		return report.settle(err)
	}
	if err := s.pipeline.Observe(ctx, s.targets); err != nil {
		return report.settle(err)
	}
	err = s.pipeline.Bundle(ctx, s.targets)
	report.Artifacts = pipeline.Artifacts(s.targets)
	return report.settle(err)
}

// Verify smoke-tests the stored artifact of each selected platform.
func (a *App) Verify(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{Command: "verify-bundle"}
	s, err := a.begin(opts, report)
	if err != nil {
		return report.settle(err)
	}
	defer a.end(s)

	if err := s.pipeline.LoadArtifacts(s.targets, domain.KindBundleBuildFailed); err != nil {
		return report.settle(err)
	}
	err = s.pipeline.Verify(ctx, s.targets)
	report.Artifacts = pipeline.Artifacts(s.targets)
	return report.settle(err)
}

// Publish uploads the stored, verified artifacts when the release trigger qualifies.
func (a *App) Publish(ctx context.Context, opts PublishOptions) (*Report, error) {
	report := &Report{Command: "publish"}
	s, err := a.begin(opts.Options, report)
	if err != nil {
		return report.settle(err)
	}
	defer a.end(s)

	trigger := domain.EvaluateTrigger(opts.Tag, opts.Tagged)
	if trigger.Qualifying {
		if err := s.pipeline.LoadArtifacts(s.targets, domain.KindBundleVerificationFailed); err != nil {
			report.Tag = trigger.Tag
			report.State = domain.StateTriggerEvaluated
			return report.settle(err)
		}
	}
	return report.settle(a.publish(ctx, s, trigger, report))
}

// Run executes every stage in order: resolve, bootstrap, bundle, verify and publish.
func (a *App) Run(ctx context.Context, opts PublishOptions) (*Report, error) {
	report := &Report{Command: "run"}
	s, err := a.begin(opts.Options, report)
	if err != nil {
		return report.settle(err)
	}
	defer a.end(s)

	stages := []func(context.Context, []*pipeline.Target) error{
		s.pipeline.Resolve,
		s.pipeline.Bootstrap,
		s.pipeline.Bundle,
		s.pipeline.Verify,
	}
	for _, stage := range stages {
		err := stage(ctx, s.targets)
		report.Artifacts = pipeline.Artifacts(s.targets)
		if err != nil {
			return report.settle(err)
		}
	}

	return report.settle(a.publish(ctx, s, domain.EvaluateTrigger(opts.Tag, opts.Tagged), report))
}

// publish drives the publisher. The release target is only opened for a qualifying
// trigger over verified artifacts, so a run that cannot publish never touches it.
func (a *App) publish(ctx context.Context, s *session, trigger domain.ReleaseTrigger, report *Report) error {
	report.Tag = trigger.Tag

	artifacts := pipeline.Artifacts(s.targets)
	var store ports.ReleaseStore
	if trigger.Qualifying {
		if err := publisher.CheckPublishable(artifacts); err != nil {
			report.State = domain.StateTriggerEvaluated
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if store, err = a.releases.Open(ctx, s.project.Release); err != nil {
			return zerr.Wrap(err, "failed to open release target")
		}
	}

	pub := publisher.New(store, a.deps.Logger, publisher.Options{
		Project:     s.project.Name,
		MaxAttempts: s.project.Release.MaxAttempts,
		Backoff:     s.project.Release.Backoff,
	})
	result, err := pub.Publish(ctx, trigger, artifacts)
	if result != nil {
		report.State = result.State
		report.Reason = result.Trigger.Reason
		report.Records = result.Records
	}
	return err
}

// Status reports the digest published for each platform under tag.
func (a *App) Status(ctx context.Context, configPath, tag string) (*Report, error) {
	report := &Report{Command: "release status", Tag: tag}

	project, err := a.configLoader.Load(configPath)
	if err != nil {
		return report.settle(zerr.Wrap(err, "failed to load configuration"))
	}
	store, err := a.releases.Open(ctx, project.Release)
	if err != nil {
		return report.settle(zerr.Wrap(err, "failed to open release target"))
	}
	assets, err := publisher.Status(ctx, store, tag)
	if err != nil {
		return report.settle(err)
	}
	report.Assets = assets
	return report.settle(nil)
}

// selectPlatforms returns the named platforms, or every platform buildable on goos.
func selectPlatforms(project *domain.Project, names []string, goos string) ([]domain.PlatformSpec, error) {
	var out []domain.PlatformSpec
	if len(names) > 0 {
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			p, ok := project.Platform(name)
			if !ok {
				return nil, zerr.With(domain.ErrUnknownPlatform, "platform", name)
			}
			out = append(out, p)
		}
		return out, nil
	}

	for _, p := range project.Platforms {
		if p.OS == "" || p.OS == goos {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, zerr.With(domain.ErrNoPlatforms, "os", goos)
	}
	return out, nil
}
