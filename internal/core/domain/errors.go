package domain

import "go.trai.ch/zerr"

var (
	// ErrToolchainNotFound is returned when no binary on the search path satisfies a platform's
	// toolchain constraint.
	ErrToolchainNotFound = zerr.New("toolchain not found")

	// ErrDependencyUnavailable is returned when the package registry cannot serve a requirement.
	ErrDependencyUnavailable = zerr.New("dependency unavailable")

	// ErrVersionConflict is returned when requirements pin incompatible versions of one package.
	ErrVersionConflict = zerr.New("version conflict")

	// ErrNotBootstrapped is returned when a stage needs an environment that was never bootstrapped.
	ErrNotBootstrapped = zerr.New("environment is not bootstrapped")

	// ErrBundleBuildFailed is returned when the bundle command or archive packing fails.
	ErrBundleBuildFailed = zerr.New("bundle build failed")

	// ErrBundleVerificationFailed is returned when a bundle does not run standalone.
	ErrBundleVerificationFailed = zerr.New("bundle verification failed")

	// ErrArtifactNotFound is returned when a stage needs an artifact that was never bundled.
	ErrArtifactNotFound = zerr.New("artifact not found")

	// ErrDigestMismatch is returned when artifact content no longer matches its recorded digest.
	ErrDigestMismatch = zerr.New("artifact digest mismatch")

	// ErrPublishTransient is returned when an upload to the release target fails.
	ErrPublishTransient = zerr.New("release upload failed")

	// ErrPublishDigestConflict is returned when a tag already holds different content for a platform.
	ErrPublishDigestConflict = zerr.New("release asset digest conflict")

	// ErrInvalidTransition is returned when the publish state machine is driven out of order.
	ErrInvalidTransition = zerr.New("invalid publish state transition")

	// ErrInvalidConfig is returned when ship.yaml fails validation.
	ErrInvalidConfig = zerr.New("invalid configuration")

	// ErrInvalidTag is returned when a tag name cannot be used as a release key.
	ErrInvalidTag = zerr.New("invalid release tag")

	// ErrUnknownPlatform is returned when a platform filter names no configured platform.
	ErrUnknownPlatform = zerr.New("unknown platform")

	// ErrNoPlatforms is returned when a run selects no platforms at all.
	ErrNoPlatforms = zerr.New("no platforms selected")
)
