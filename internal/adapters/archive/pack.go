// Package archive implements deterministic bundle archives: tar streams compressed with
// zstd and identified by the BLAKE3 digest of the compressed bytes.
package archive

import (
	"archive/tar"
	"context"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

var (
	_ ports.Packer = (*Packer)(nil)

	// epoch is the modification time stamped on every entry.
	epoch = time.Unix(0, 0).UTC()
)

// Packer implements ports.Packer.
type Packer struct{}

// NewPacker creates a new Packer.
func NewPacker() *Packer {
	return &Packer{}
}

// Pack archives srcDir into dest. The archive depends only on relative paths, file content,
// the executable bit and symlink targets: entries are sorted, timestamps are fixed at the
// Unix epoch and ownership is cleared, so identical trees produce identical bytes.
func (p *Packer) Pack(ctx context.Context, srcDir, dest string) (string, int64, error) {
	entries, err := collect(srcDir)
	if err != nil {
		return "", 0, err
	}
	if len(entries) == 0 {
		return "", 0, zerr.With(zerr.New("bundle output is empty"), "path", srcDir)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return "", 0, zerr.With(zerr.Wrap(err, "failed to create archive directory"), "path", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.partial")
	if err != nil {
		return "", 0, zerr.Wrap(err, "failed to create temp archive")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hasher := blake3.New()
	counter := &countingWriter{}
	out := io.MultiWriter(tmp, hasher, counter)

	enc, err := zstd.NewWriter(out,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return "", 0, zerr.Wrap(err, "failed to create zstd encoder")
	}

	tw := tar.NewWriter(enc)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			_ = enc.Close()
			return "", 0, err
		}
		if err := writeEntry(tw, srcDir, e); err != nil {
			_ = enc.Close()
			return "", 0, err
		}
	}
	if err := tw.Close(); err != nil {
		_ = enc.Close()
		return "", 0, zerr.Wrap(err, "failed to finish tar stream")
	}
	if err := enc.Close(); err != nil {
		return "", 0, zerr.Wrap(err, "failed to finish zstd stream")
	}
	if err := tmp.Sync(); err != nil {
		return "", 0, zerr.Wrap(err, "failed to sync archive")
	}
	if err := tmp.Close(); err != nil {
		return "", 0, zerr.Wrap(err, "failed to close archive")
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return "", 0, zerr.Wrap(err, "failed to set archive permissions")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return "", 0, zerr.With(zerr.Wrap(err, "failed to move archive into place"), "path", dest)
	}
	committed = true

	return domain.FormatDigest(hex.EncodeToString(hasher.Sum(nil))), counter.n, nil
}

type entry struct {
	rel  string
	mode fs.FileMode
}

// collect lists srcDir in lexical order with slash-separated relative paths.
func collect(srcDir string) ([]entry, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "bundle output missing"), "path", srcDir)
	}
	if !info.IsDir() {
		return nil, zerr.With(zerr.New("bundle output is not a directory"), "path", srcDir)
	}

	var entries []entry
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		switch t := d.Type(); {
		case t.IsDir(), t.IsRegular(), t&fs.ModeSymlink != 0:
		default:
			return zerr.With(zerr.New("unsupported file type in bundle"), "path", path)
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), mode: d.Type()})
		return nil
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to walk bundle output")
	}
	return entries, nil
}

func writeEntry(tw *tar.Writer, srcDir string, e entry) error {
	path := filepath.Join(srcDir, filepath.FromSlash(e.rel))
	hdr := &tar.Header{
		Name:    e.rel,
		ModTime: epoch,
		Format:  tar.FormatPAX,
	}

	switch {
	case e.mode.IsDir():
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
		hdr.Mode = 0o755
	case e.mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to read symlink"), "path", path)
		}
		if filepath.IsAbs(target) {
			return zerr.With(zerr.New("absolute symlink in bundle"), "path", e.rel)
		}
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = filepath.ToSlash(target)
		hdr.Mode = 0o777
	default:
		info, err := os.Stat(path)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to stat file"), "path", path)
		}
		hdr.Typeflag = tar.TypeReg
		hdr.Size = info.Size()
		hdr.Mode = 0o644
		if info.Mode()&0o111 != 0 {
			hdr.Mode = 0o755
		}
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write tar header"), "path", e.rel)
	}
	if hdr.Typeflag != tar.TypeReg {
		return nil
	}

	f, err := os.Open(path) //nolint:gosec // path is below the bundle output directory
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // read-only

	if n, err := io.Copy(tw, f); err != nil || n != hdr.Size {
		if err == nil {
			err = io.ErrShortWrite
		}
		return zerr.With(zerr.Wrap(err, "failed to archive file"), "path", e.rel)
	}
	return nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
