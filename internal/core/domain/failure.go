package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Every kind maps to a distinct process exit code.
type Kind int

const (
	// KindUnknown covers configuration and usage errors.
	KindUnknown Kind = iota
	KindToolchainNotFound
	KindDependencyUnavailable
	KindVersionConflict
	KindBundleBuildFailed
	KindBundleVerificationFailed
	KindPublishTransientFailure
	KindPublishDigestConflict
)

var kindNames = map[Kind]string{
	KindUnknown:                  "Unknown",
	KindToolchainNotFound:        "ToolchainNotFound",
	KindDependencyUnavailable:    "DependencyUnavailable",
	KindVersionConflict:          "VersionConflict",
	KindBundleBuildFailed:        "BundleBuildFailed",
	KindBundleVerificationFailed: "BundleVerificationFailed",
	KindPublishTransientFailure:  "PublishTransientFailure",
	KindPublishDigestConflict:    "PublishDigestConflict",
}

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ExitCode returns the process exit code reported for the kind.
func (k Kind) ExitCode() int {
	if k == KindUnknown {
		return 1
	}
	return 9 + int(k)
}

// Retryable reports whether failures of this kind are transient.
func (k Kind) Retryable() bool {
	return k == KindDependencyUnavailable || k == KindPublishTransientFailure
}

// Failure attaches a Kind to an error. It is located with errors.As so the kind survives
// any amount of wrapping with zerr.
type Failure struct {
	Kind Kind
	Err  error
}

// Fail wraps err with the given kind. A nil err yields nil.
func Fail(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Kind: kind, Err: err}
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf returns the kind of the outermost Failure in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err carries a transient kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// ExitCode maps an error to the process exit code. A nil error is success.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
