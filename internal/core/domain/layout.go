package domain

import "path/filepath"

const (
	// StateDirName is the name of the workspace directory holding stage outputs.
	StateDirName = ".ship"

	// ArtifactsDirName holds one artifact record per platform.
	ArtifactsDirName = "artifacts"

	// CASDirName holds bundle archives addressed by digest.
	CASDirName = "cas"

	// RunDirName holds pipeline-private directories, one per run.
	RunDirName = "run"

	// TmpDirName holds partially written files.
	TmpDirName = "tmp"

	// ReleasesDirName is the default root of the directory release target.
	ReleasesDirName = "releases"

	// ConfigFileName is the name of the project configuration file.
	ConfigFileName = "ship.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// ExecPerm is the permission for generated shims (rwxr-x---).
	ExecPerm = 0o750
)

// DefaultStatePath returns the state directory under root.
func DefaultStatePath(root string) string {
	return filepath.Join(root, StateDirName)
}

// RunPath returns the pipeline-private directory for a run.
func RunPath(stateDir, runID string) string {
	return filepath.Join(stateDir, RunDirName, runID)
}
