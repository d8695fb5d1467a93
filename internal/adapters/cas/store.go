// Package cas stores bundle archives by digest next to one artifact record per platform.
package cas

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.trai.ch/ship/internal/adapters/codec"
	shipfs "go.trai.ch/ship/internal/adapters/fs"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	recordExt  = ".cbor"
	archiveExt = ".tar.zst"
)

var _ ports.ArtifactStore = (*Store)(nil)

// Store implements ports.ArtifactStore below a state directory:
//
//	artifacts/<platform>.cbor  current artifact record
//	cas/<hex>.tar.zst          archive content
//	tmp/                       staging area
type Store struct {
	root string
	mu   sync.RWMutex
}

// NewStore creates the store layout under stateDir.
func NewStore(stateDir string) (*Store, error) {
	s := &Store{root: filepath.Clean(stateDir)}
	for _, dir := range []string{domain.ArtifactsDirName, domain.CASDirName, domain.TmpDirName} {
		path := filepath.Join(s.root, dir)
		if err := os.MkdirAll(path, domain.DirPerm); err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to create state directory"), "path", path)
		}
	}
	return s, nil
}

func (s *Store) recordPath(platform string) string {
	return filepath.Join(s.root, domain.ArtifactsDirName, platform+recordExt)
}

// Get reads the artifact record for platform.
func (s *Store) Get(platform string) (*domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	//nolint:gosec // platform names are validated by the config loader
	data, err := os.ReadFile(s.recordPath(platform))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to read artifact record"), "platform", platform)
	}

	var a domain.Artifact
	if err := codec.Unmarshal(data, &a); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to decode artifact record"), "platform", platform)
	}
	return &a, nil
}

// Put replaces the artifact record. Readers see the previous record or the new one.
func (s *Store) Put(a domain.Artifact) error {
	if a.Platform == "" {
		return zerr.New("artifact record has no platform")
	}

	data, err := codec.Marshal(a)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to encode artifact record"), "platform", a.Platform)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return shipfs.WriteFileAtomic(s.recordPath(a.Platform), data, domain.FilePerm)
}

// Ingest moves a staged archive to its content address. Content already present under
// the same digest is kept and the staged copy discarded.
func (s *Store) Ingest(staging, digest string) (string, error) {
	hex := domain.DigestHex(digest)
	if hex == "" || hex == digest {
		return "", zerr.With(zerr.New("malformed digest"), "digest", digest)
	}
	dest := filepath.Join(s.root, domain.CASDirName, hex+archiveExt)

	if _, err := os.Stat(dest); err == nil {
		_ = os.Remove(staging)
		return dest, nil
	}
	if err := os.Rename(staging, dest); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to ingest archive"), "digest", digest)
	}
	return dest, nil
}

// StagingPath returns where a platform's archive is written before ingestion.
func (s *Store) StagingPath(platform string) string {
	return filepath.Join(s.root, domain.TmpDirName, platform+archiveExt)
}

// Opener implements ports.ArtifactStoreOpener.
type Opener struct{}

// NewOpener creates a new Opener.
func NewOpener() *Opener {
	return &Opener{}
}

// Open opens the artifact store of stateDir.
func (o *Opener) Open(stateDir string) (ports.ArtifactStore, error) {
	return NewStore(stateDir)
}
