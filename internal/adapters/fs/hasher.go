package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher computes bundle input hashes with xxhash.
type Hasher struct {
	walker   *Walker
	resolver *Resolver
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker, resolver *Resolver) *Hasher {
	return &Hasher{walker: walker, resolver: resolver}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}

	return hasher.Sum64(), nil
}

// ComputeInputHash hashes the platform definition, the environment's package set and the
// source files. File paths enter the hash relative to root so that checkouts in different
// directories hash identically.
func (h *Hasher) ComputeInputHash(
	root string,
	sources, exclude []string,
	env *domain.Environment,
	platform domain.PlatformSpec,
) (string, error) {
	hasher := xxhash.New()

	h.hashPlatform(platform, hasher)
	h.hashEnvironment(env, hasher)

	if err := h.hashSources(root, sources, exclude, hasher); err != nil {
		return "", err
	}

	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

func writeField(hasher *xxhash.Digest, s string) {
	_, _ = hasher.WriteString(s)
	_, _ = hasher.Write([]byte{0})
}

func (h *Hasher) hashPlatform(p domain.PlatformSpec, hasher *xxhash.Digest) {
	writeField(hasher, p.Name)
	writeField(hasher, p.OS)
	writeField(hasher, p.Interpreter)
	writeField(hasher, p.Toolchain.String())
	writeField(hasher, p.ABI)
	for _, arg := range p.BundleCommand {
		writeField(hasher, arg)
	}
	_, _ = hasher.Write([]byte{0})
	writeField(hasher, p.Output)

	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(hasher, k+"="+p.Env[k])
	}
	_, _ = hasher.Write([]byte{0})
}

func (h *Hasher) hashEnvironment(env *domain.Environment, hasher *xxhash.Digest) {
	if env != nil {
		if env.Binding != nil {
			writeField(hasher, string(env.Binding.InterpreterVersion))
		}
		for _, pkg := range env.Fingerprint() {
			writeField(hasher, pkg)
		}
	}
	_, _ = hasher.Write([]byte{0})
}

func (h *Hasher) hashSources(root string, sources, exclude []string, hasher *xxhash.Digest) error {
	paths, err := h.resolver.ResolveInputs(sources, root)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to stat path"), "path", path)
		}
		if !info.IsDir() {
			if err := h.hashFile(root, path, seen, hasher); err != nil {
				return err
			}
			continue
		}
		for filePath := range h.walker.WalkFiles(path, exclude) {
			if err := h.hashFile(root, filePath, seen, hasher); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Hasher) hashFile(root, path string, seen map[string]bool, mainHasher io.Writer) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	if seen[rel] {
		return nil
	}
	seen[rel] = true

	_, _ = mainHasher.Write([]byte(rel))
	_, _ = mainHasher.Write([]byte{0})

	hash, err := h.ComputeFileHash(path)
	if err != nil {
		return err
	}

	if err := binary.Write(mainHasher, binary.LittleEndian, hash); err != nil {
		return zerr.Wrap(err, "failed to write hash to digest")
	}
	return nil
}
