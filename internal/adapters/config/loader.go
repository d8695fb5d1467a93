// Package config provides the configuration loader for ship.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted after the file is parsed.
const (
	EnvToolchainPath = "SHIP_TOOLCHAIN_PATH"
	EnvAccessKey     = "SHIP_RELEASE_ACCESS_KEY"
	EnvSecretKey     = "SHIP_RELEASE_SECRET_KEY"
)

const (
	defaultInterpreter    = "python"
	defaultVerifyTimeout  = 60 * time.Second
	defaultInstallTimeout = 5 * time.Minute
	defaultAttempts       = 3
)

var defaultVerifyArgs = []string{"--version"}

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	logger ports.Logger
	getenv func(string) string
}

// NewLoader creates a Loader reading overrides from the process environment.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{logger: logger, getenv: os.Getenv}
}

// NewLoaderWithEnv creates a Loader reading overrides through getenv.
func NewLoaderWithEnv(logger ports.Logger, getenv func(string) string) *Loader {
	return &Loader{logger: logger, getenv: getenv}
}

// Load reads the configuration file at path and applies environment overrides.
func (l *Loader) Load(path string) (*domain.Project, error) {
	project, err := Load(path)
	if err != nil {
		return nil, err
	}

	searchPath := l.getenv(EnvToolchainPath)
	if searchPath == "" {
		searchPath = l.getenv("PATH")
	} else {
		l.logger.Info("toolchain search path overridden by " + EnvToolchainPath)
	}
	project.SearchPath = filepath.SplitList(searchPath)

	project.Release.S3.AccessKey = l.getenv(EnvAccessKey)
	project.Release.S3.SecretKey = l.getenv(EnvSecretKey)
	return project, nil
}

// Load reads a configuration file from the given path and returns a validated domain.Project.
// Relative paths in the file are resolved against the file's directory.
func Load(path string) (*domain.Project, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read config file")
	}

	var file Shipfile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, zerr.Wrap(err, "failed to parse config file")
	}

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve project root")
	}
	return file.project(root)
}

func (f *Shipfile) project(root string) (*domain.Project, error) {
	if f.Name == "" {
		return nil, invalid("name", "is required")
	}
	if strings.ContainsAny(f.Name, `/\`) {
		return nil, invalid("name", "must not contain path separators")
	}
	if f.Entrypoint == "" {
		return nil, invalid("entrypoint", "is required")
	}
	if !filepath.IsLocal(f.Entrypoint) {
		return nil, invalid("entrypoint", "must be a relative path inside the bundle")
	}
	if len(f.Sources) == 0 {
		return nil, invalid("sources", "at least one source is required")
	}
	if len(f.Platforms) == 0 {
		return nil, invalid("platforms", "at least one platform is required")
	}

	p := &domain.Project{
		Name:       f.Name,
		Root:       root,
		Entrypoint: f.Entrypoint,
		Sources:    canonicalizeStrings(f.Sources),
		Exclude:    canonicalizeStrings(f.Exclude),
		Verify:     f.Verify.spec(),
	}

	var err error
	if p.Bootstrap, err = f.Bootstrap.spec(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Platforms))
	for i, dto := range f.Platforms {
		platform, err := dto.spec(i)
		if err != nil {
			return nil, err
		}
		if seen[platform.Name] {
			return nil, zerr.With(invalid("platforms", "duplicate platform"), "platform", platform.Name)
		}
		seen[platform.Name] = true
		p.Platforms = append(p.Platforms, platform)
	}

	if p.Release, err = f.Release.target(root); err != nil {
		return nil, err
	}
	return p, nil
}

func (v VerifyDTO) spec() domain.VerifySpec {
	spec := domain.VerifySpec{Args: v.Args, Expect: v.Expect, Timeout: v.Timeout}
	if len(spec.Args) == 0 {
		spec.Args = slices.Clone(defaultVerifyArgs)
	}
	if spec.Timeout <= 0 {
		spec.Timeout = defaultVerifyTimeout
	}
	return spec
}

func (b BootstrapDTO) spec() (domain.BootstrapSpec, error) {
	spec := domain.BootstrapSpec{
		InstallTimeout: b.InstallTimeout,
		MaxAttempts:    b.MaxAttempts,
		Backoff:        b.Backoff,
	}
	if spec.InstallTimeout <= 0 {
		spec.InstallTimeout = defaultInstallTimeout
	}
	if spec.MaxAttempts <= 0 {
		spec.MaxAttempts = defaultAttempts
	}

	if b.PipFloor != "" {
		if _, ok := domain.ParseVersion(b.PipFloor); !ok {
			return domain.BootstrapSpec{}, zerr.With(invalid("bootstrap.pip_floor", "malformed version"), "value", b.PipFloor)
		}
		spec.PackageManagerFloor = b.PipFloor
	}

	for _, raw := range b.Requirements {
		dep, err := domain.ParseDependency(raw)
		if err != nil {
			return domain.BootstrapSpec{}, zerr.With(zerr.Wrap(err, domain.ErrInvalidConfig.Error()), "field", "bootstrap.requirements")
		}
		spec.Requirements = append(spec.Requirements, dep)
	}
	return spec, nil
}

func (d PlatformDTO) spec(index int) (domain.PlatformSpec, error) {
	field := func(name string) string {
		return "platforms[" + strconv.Itoa(index) + "]." + name
	}

	if d.Name == "" {
		return domain.PlatformSpec{}, invalid(field("name"), "is required")
	}
	if d.Toolchain == "" {
		return domain.PlatformSpec{}, invalid(field("toolchain"), "is required")
	}
	constraint, err := domain.ParseConstraint(d.Toolchain)
	if err != nil {
		return domain.PlatformSpec{}, zerr.With(zerr.Wrap(err, domain.ErrInvalidConfig.Error()), "field", field("toolchain"))
	}
	if len(d.Bundle) == 0 {
		return domain.PlatformSpec{}, invalid(field("bundle"), "a bundle command is required")
	}
	if d.Output == "" || !filepath.IsLocal(d.Output) {
		return domain.PlatformSpec{}, invalid(field("output"), "must be a relative path inside the project")
	}

	interpreter := d.Interpreter
	if interpreter == "" {
		interpreter = defaultInterpreter
	}

	return domain.PlatformSpec{
		Name:          d.Name,
		OS:            d.OS,
		Interpreter:   interpreter,
		Toolchain:     constraint,
		ABI:           d.ABI,
		BundleCommand: d.Bundle,
		Output:        filepath.Clean(d.Output),
		Env:           d.Env,
	}, nil
}

func (r ReleaseDTO) target(root string) (domain.ReleaseTarget, error) {
	t := domain.ReleaseTarget{MaxAttempts: r.MaxAttempts, Backoff: r.Backoff}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = defaultAttempts
	}

	switch domain.ReleaseTargetKind(r.Target) {
	case "", domain.TargetDir:
		t.Kind = domain.TargetDir
		t.Dir = r.Dir
		if t.Dir == "" {
			t.Dir = filepath.Join(domain.StateDirName, domain.ReleasesDirName)
		}
		if !filepath.IsAbs(t.Dir) {
			t.Dir = filepath.Join(root, t.Dir)
		}
	case domain.TargetS3:
		t.Kind = domain.TargetS3
		t.S3 = domain.S3Target{
			Endpoint: r.S3.Endpoint,
			Bucket:   r.S3.Bucket,
			Region:   r.S3.Region,
			Prefix:   r.S3.Prefix,
			Secure:   r.S3.Secure == nil || *r.S3.Secure,
		}
		if t.S3.Endpoint == "" {
			return domain.ReleaseTarget{}, invalid("release.s3.endpoint", "is required")
		}
		if t.S3.Bucket == "" {
			return domain.ReleaseTarget{}, invalid("release.s3.bucket", "is required")
		}
	default:
		return domain.ReleaseTarget{}, zerr.With(invalid("release.target", "must be dir or s3"), "value", r.Target)
	}
	return t, nil
}

func invalid(field, reason string) error {
	err := zerr.With(domain.ErrInvalidConfig, "field", field)
	return zerr.With(err, "reason", reason)
}

func canonicalizeStrings(strs []string) []string {
	if len(strs) == 0 {
		return nil
	}

	sorted := make([]string, len(strs))
	for i, s := range strs {
		sorted[i] = filepath.ToSlash(filepath.Clean(s))
	}
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
