package archive

import (
	"archive/tar"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/zerr"
)

// Unpack extracts archive into destDir. Entries escaping destDir are rejected, whether
// through their name, a symlink target, or a chain of already extracted symlinks.
func (p *Packer) Unpack(ctx context.Context, archive, destDir string) error {
	f, err := os.Open(archive) //nolint:gosec // archive paths come from the artifact store
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open archive"), "path", archive)
	}
	defer f.Close() //nolint:errcheck // read-only

	if err := os.MkdirAll(destDir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create directory"), "path", destDir)
	}
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to resolve destination"), "path", destDir)
	}

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return zerr.Wrap(err, "failed to create zstd decoder")
	}
	defer dec.Close()

	var links []string
	tr := tar.NewReader(dec)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to read archive"), "path", archive)
		}

		name := strings.TrimSuffix(hdr.Name, "/")
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return zerr.With(zerr.New("archive entry escapes destination"), "entry", hdr.Name)
		}
		target := filepath.Join(root, filepath.FromSlash(name))

		parent := filepath.Dir(target)
		if hdr.Typeflag == tar.TypeDir {
			parent = target
		}
		if err := checkContained(root, parent, hdr.Name); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, domain.DirPerm); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create directory"), "entry", hdr.Name)
			}
		case tar.TypeReg:
			if err := extractFile(tr, target, hdr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			resolved := filepath.Join(filepath.Dir(filepath.FromSlash(name)), filepath.FromSlash(hdr.Linkname))
			if filepath.IsAbs(hdr.Linkname) || !filepath.IsLocal(resolved) {
				return zerr.With(zerr.New("archive symlink escapes destination"), "entry", hdr.Name)
			}
			if err := os.MkdirAll(parent, domain.DirPerm); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create directory"), "entry", hdr.Name)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create symlink"), "entry", hdr.Name)
			}
			links = append(links, target)
		default:
			return zerr.With(zerr.New("unsupported archive entry"), "entry", hdr.Name)
		}
	}

	// Links may point at entries extracted after them, so targets are resolved once the
	// tree is complete.
	for _, link := range links {
		resolved, err := filepath.EvalSymlinks(link)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to resolve symlink"), "path", link)
		}
		if !within(root, resolved) {
			rel, _ := filepath.Rel(root, link)
			return zerr.With(zerr.New("archive symlink escapes destination"), "entry", filepath.ToSlash(rel))
		}
	}
	return nil
}

// checkContained resolves the deepest existing ancestor of dir and rejects entry when it
// lies outside root. A dangling symlink on the way is rejected as well.
func checkContained(root, dir, entry string) error {
	existing, rest := dir, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			if !within(root, filepath.Join(resolved, rest)) {
				return zerr.With(zerr.New("archive entry escapes destination"), "entry", entry)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return zerr.With(zerr.Wrap(err, "failed to resolve entry path"), "entry", entry)
		}
		if _, lerr := os.Lstat(existing); lerr == nil {
			return zerr.With(zerr.New("archive entry escapes destination"), "entry", entry)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return zerr.With(zerr.Wrap(err, "failed to resolve entry path"), "entry", entry)
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && filepath.IsLocal(rel)
}

func extractFile(r io.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create directory"), "entry", hdr.Name)
	}
	//nolint:gosec // target is checked to be local to the destination
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.FileMode(hdr.Mode).Perm())
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create file"), "entry", hdr.Name)
	}
	if _, err := io.CopyN(f, r, hdr.Size); err != nil {
		_ = f.Close()
		return zerr.With(zerr.Wrap(err, "failed to extract file"), "entry", hdr.Name)
	}
	if err := f.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to close file"), "entry", hdr.Name)
	}
	return nil
}

// Digest recomputes the BLAKE3 digest of an archive on disk.
func (p *Packer) Digest(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // archive paths come from the artifact store
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to open archive"), "path", path)
	}
	defer f.Close() //nolint:errcheck // read-only

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to hash archive"), "path", path)
	}
	return domain.FormatDigest(hex.EncodeToString(hasher.Sum(nil))), nil
}
