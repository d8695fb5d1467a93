package domain

import "time"

// Project is the validated content of ship.yaml.
type Project struct {
	Name string
	// Root is the directory sources and platform outputs are relative to.
	Root string
	// Entrypoint is the program path inside the bundle.
	Entrypoint string
	Sources    []string
	Exclude    []string
	// SearchPath overrides PATH when resolving toolchains.
	SearchPath []string
	Bootstrap  BootstrapSpec
	Verify     VerifySpec
	Platforms  []PlatformSpec
	Release    ReleaseTarget
}

// Platform returns the platform with the given name.
func (p *Project) Platform(name string) (PlatformSpec, bool) {
	for _, pl := range p.Platforms {
		if pl.Name == name {
			return pl, true
		}
	}
	return PlatformSpec{}, false
}

// BootstrapSpec describes the build-time dependency set.
type BootstrapSpec struct {
	// PackageManagerFloor is the minimum pip version required before pins are installed.
	PackageManagerFloor string
	Requirements        []DependencySpec
	InstallTimeout      time.Duration
	MaxAttempts         int
	Backoff             time.Duration
}

// VerifySpec describes the standalone smoke test.
type VerifySpec struct {
	Args []string
	// Expect, when set, must appear in the program's output.
	Expect  string
	Timeout time.Duration
}

// ReleaseTargetKind selects the release store implementation.
type ReleaseTargetKind string

const (
	TargetDir ReleaseTargetKind = "dir"
	TargetS3  ReleaseTargetKind = "s3"
)

// ReleaseTarget configures where assets are published.
type ReleaseTarget struct {
	Kind        ReleaseTargetKind
	Dir         string
	S3          S3Target
	MaxAttempts int
	Backoff     time.Duration
}

// S3Target configures an S3-compatible release bucket.
type S3Target struct {
	Endpoint  string
	Bucket    string
	Region    string
	Prefix    string
	Secure    bool
	AccessKey string
	SecretKey string
}
