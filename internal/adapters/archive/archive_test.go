package archive_test

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/ship/internal/adapters/archive"
)

func writeBundle(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tutor", "lib"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tutor", "tutor"), []byte("#!/bin/sh\necho ok\n"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tutor", "lib", "core.py"), []byte("x = 1\n"), 0o600))
	require.NoError(t, os.Symlink("lib/core.py", filepath.Join(root, "tutor", "core.py")))
}

func TestPacker_Pack_Deterministic(t *testing.T) {
	ctx := context.Background()
	packer := archive.NewPacker()

	first := t.TempDir()
	second := t.TempDir()
	writeBundle(t, first)
	writeBundle(t, second)

	old := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(second, "tutor", "lib", "core.py"), old, old))

	out := t.TempDir()
	d1, s1, err := packer.Pack(ctx, first, filepath.Join(out, "a.tar.zst"))
	require.NoError(t, err)
	d2, s2, err := packer.Pack(ctx, second, filepath.Join(out, "b.tar.zst"))
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Equal(t, s1, s2)
	assert.Contains(t, d1, "blake3:")

	b1, err := os.ReadFile(filepath.Join(out, "a.tar.zst"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(b1)), s1)

	recomputed, err := packer.Digest(filepath.Join(out, "a.tar.zst"))
	require.NoError(t, err)
	assert.Equal(t, d1, recomputed)
}

func TestPacker_Pack_ContentChangesDigest(t *testing.T) {
	ctx := context.Background()
	packer := archive.NewPacker()

	first := t.TempDir()
	second := t.TempDir()
	writeBundle(t, first)
	writeBundle(t, second)
	require.NoError(t, os.WriteFile(filepath.Join(second, "tutor", "lib", "core.py"), []byte("x = 2\n"), 0o600))

	out := t.TempDir()
	d1, _, err := packer.Pack(ctx, first, filepath.Join(out, "a.tar.zst"))
	require.NoError(t, err)
	d2, _, err := packer.Pack(ctx, second, filepath.Join(out, "b.tar.zst"))
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}

func TestPacker_Pack_EmptyOutput(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "empty.tar.zst")

	_, _, err := archive.NewPacker().Pack(context.Background(), t.TempDir(), dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle output is empty")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPacker_Pack_MissingOutput(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing.tar.zst")

	_, _, err := archive.NewPacker().Pack(context.Background(), filepath.Join(t.TempDir(), "nope"), dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle output missing")
}

func TestPacker_RoundTrip(t *testing.T) {
	ctx := context.Background()
	packer := archive.NewPacker()

	src := t.TempDir()
	writeBundle(t, src)
	dest := filepath.Join(t.TempDir(), "bundle.tar.zst")
	_, _, err := packer.Pack(ctx, src, dest)
	require.NoError(t, err)

	out := t.TempDir()
	require.NoError(t, packer.Unpack(ctx, dest, out))

	content, err := os.ReadFile(filepath.Join(out, "tutor", "lib", "core.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(content))

	info, err := os.Stat(filepath.Join(out, "tutor", "tutor"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "entrypoint keeps its executable bit")

	target, err := os.Readlink(filepath.Join(out, "tutor", "core.py"))
	require.NoError(t, err)
	assert.Equal(t, "lib/core.py", target)
}

func writeRawArchive(t *testing.T, path string, headers ...*tar.Header) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	tw := tar.NewWriter(enc)
	for _, hdr := range headers {
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write(make([]byte, hdr.Size))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, enc.Close())
}

func TestPacker_Unpack_RejectsEscapes(t *testing.T) {
	tests := []struct {
		name string
		hdr  *tar.Header
		want string
	}{
		{
			name: "parent traversal",
			hdr:  &tar.Header{Name: "../evil", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1},
			want: "escapes destination",
		},
		{
			name: "absolute name",
			hdr:  &tar.Header{Name: "/etc/evil", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1},
			want: "escapes destination",
		},
		{
			name: "symlink out of tree",
			hdr:  &tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "../../etc/passwd", Mode: 0o777},
			want: "symlink escapes destination",
		},
		{
			name: "absolute symlink",
			hdr:  &tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd", Mode: 0o777},
			want: "symlink escapes destination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.tar.zst")
			writeRawArchive(t, path, tt.hdr)

			err := archive.NewPacker().Unpack(context.Background(), path, t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPacker_Unpack_RejectsSymlinkChains(t *testing.T) {
	self := &tar.Header{Name: "a", Typeflag: tar.TypeSymlink, Linkname: ".", Mode: 0o777}
	up := &tar.Header{Name: "b", Typeflag: tar.TypeSymlink, Linkname: "a/..", Mode: 0o777}

	tests := []struct {
		name    string
		headers []*tar.Header
		want    string
	}{
		{
			name:    "file written through chained links",
			headers: []*tar.Header{self, up, {Name: "b/x", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1}},
			want:    "entry escapes destination",
		},
		{
			name:    "directory created through chained links",
			headers: []*tar.Header{self, up, {Name: "b/sub/", Typeflag: tar.TypeDir, Mode: 0o755}},
			want:    "entry escapes destination",
		},
		{
			name:    "chained link left in the tree",
			headers: []*tar.Header{self, up},
			want:    "symlink escapes destination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.tar.zst")
			writeRawArchive(t, path, tt.headers...)

			parent := t.TempDir()
			out := filepath.Join(parent, "out")
			err := archive.NewPacker().Unpack(context.Background(), path, out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			_, statErr := os.Lstat(filepath.Join(parent, "x"))
			assert.True(t, os.IsNotExist(statErr), "nothing is written outside the destination")
			_, statErr = os.Lstat(filepath.Join(parent, "sub"))
			assert.True(t, os.IsNotExist(statErr), "nothing is written outside the destination")
		})
	}
}

func TestPacker_Unpack_ForwardSymlink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.tar.zst")
	writeRawArchive(t, path,
		&tar.Header{Name: "tutor/core.py", Typeflag: tar.TypeSymlink, Linkname: "lib/core.py", Mode: 0o777},
		&tar.Header{Name: "tutor/lib/", Typeflag: tar.TypeDir, Mode: 0o755},
		&tar.Header{Name: "tutor/lib/core.py", Typeflag: tar.TypeReg, Mode: 0o644, Size: 3},
	)

	out := t.TempDir()
	require.NoError(t, archive.NewPacker().Unpack(context.Background(), path, out))

	content, err := os.ReadFile(filepath.Join(out, "tutor", "core.py"))
	require.NoError(t, err)
	assert.Len(t, content, 3)
}

func TestPacker_Digest_MissingFile(t *testing.T) {
	_, err := archive.NewPacker().Digest(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
