package domain

import (
	"os"
	"sort"
	"strings"
)

// PlatformSpec describes one entry of the build matrix.
type PlatformSpec struct {
	// Name identifies the platform in artifact and release names ("linux", "macos").
	Name string
	// OS is the GOOS value of the host able to build this platform.
	OS string
	// Interpreter is the logical toolchain name, "python" unless configured otherwise.
	Interpreter string
	// Toolchain constrains the interpreter version.
	Toolchain VersionConstraint
	// ABI is the libc or deployment target constraint, e.g. "glibc2.23" or "macos10.13".
	ABI string
	// BundleCommand produces the self-contained program under Output.
	BundleCommand []string
	// Output is the directory, relative to the project root, the bundle command writes.
	Output string
	// Env holds extra variables for the bundle command.
	Env map[string]string
}

// DeploymentTarget returns the macOS deployment target encoded in the ABI ("10.13" for
// "macos10.13"), or "" for other ABIs.
func (p PlatformSpec) DeploymentTarget() string {
	if v, ok := strings.CutPrefix(p.ABI, "macos"); ok {
		return v
	}
	return ""
}

// ToolchainBinding maps logical tool names to resolved executables for one platform. It is
// built once per run and never modified afterwards.
type ToolchainBinding struct {
	Platform string
	// Tools maps a logical name ("python", "pip") to the path stages must invoke.
	Tools map[string]string
	// Interpreter is the real binary the logical interpreter name resolved to.
	Interpreter string
	// InterpreterVersion is the version the interpreter reported.
	InterpreterVersion Version
	// ShimDir is the pipeline-private directory holding the logical-name shims.
	ShimDir string
	// SearchPath is the per-run search path, ShimDir first.
	SearchPath []string
}

// Tool returns the resolved path of a logical tool name.
func (b *ToolchainBinding) Tool(name string) (string, bool) {
	p, ok := b.Tools[name]
	return p, ok
}

// PathValue renders SearchPath as a PATH value.
func (b *ToolchainBinding) PathValue() string {
	return strings.Join(b.SearchPath, string(os.PathListSeparator))
}

// Environment is a bootstrapped toolchain: the binding plus the package versions the
// package manager reported after installation.
type Environment struct {
	Binding  *ToolchainBinding
	Packages map[string]string
}

// Fingerprint renders the package set in a stable order for input hashing.
func (e *Environment) Fingerprint() []string {
	out := make([]string, 0, len(e.Packages))
	for name, v := range e.Packages {
		out = append(out, name+"=="+v)
	}
	sort.Strings(out)
	return out
}
