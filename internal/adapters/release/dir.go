package release

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.trai.ch/ship/internal/adapters/codec"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	blobsDirName = ".blobs"
	recordExt    = ".cbor"
)

var _ ports.ReleaseStore = (*DirStore)(nil)

// DirStore publishes releases into a directory tree:
//
//	<root>/<tag>/<platform>.cbor   asset record, created exactly once
//	<root>/<tag>/<asset name>      asset content
//	<root>/<tag>/.blobs/<hex>      content addressed by digest
//
// The asset name and then the record are claimed with hard links, which fail if the
// name exists, so two processes racing on the same (tag, platform) cannot both win and
// a record never points at a missing asset.
type DirStore struct {
	root string
	now  func() time.Time
}

// NewDirStore creates a DirStore rooted at root.
func NewDirStore(root string) (*DirStore, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create release directory"), "path", root)
	}
	return &DirStore{root: root, now: time.Now}, nil
}

func (s *DirStore) tagDir(tag string) string {
	return filepath.Join(s.root, tag)
}

func (s *DirStore) recordPath(tag, platform string) string {
	return filepath.Join(s.tagDir(tag), platform+recordExt)
}

// Lookup reads the asset record of (tag, platform).
func (s *DirStore) Lookup(_ context.Context, tag, platform string) (*domain.ReleaseAsset, error) {
	if err := domain.ValidateTag(tag); err != nil {
		return nil, err
	}
	return readRecord(s.recordPath(tag, platform))
}

func readRecord(path string) (*domain.ReleaseAsset, error) {
	//nolint:gosec // tag and platform names are validated
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to read release record"), "path", path)
	}
	var asset domain.ReleaseAsset
	if err := codec.Unmarshal(data, &asset); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to decode release record"), "path", path)
	}
	return &asset, nil
}

// Put publishes contentPath as asset unless (tag, platform) is already taken.
func (s *DirStore) Put(
	ctx context.Context, asset domain.ReleaseAsset, contentPath string,
) (*domain.ReleaseAsset, bool, error) {
	if err := domain.ValidateTag(asset.Tag); err != nil {
		return nil, false, err
	}
	existing, err := s.Lookup(ctx, asset.Tag, asset.Platform)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return settle(existing, asset)
	}

	size, err := checkContent(asset, contentPath)
	if err != nil {
		return nil, false, err
	}
	asset.Size = size
	asset.PublishedAt = s.now().UTC()

	blob, err := s.storeBlob(ctx, asset, contentPath)
	if err != nil {
		return nil, false, err
	}
	if err := nameAsset(blob, filepath.Join(s.tagDir(asset.Tag), asset.Name), asset); err != nil {
		return nil, false, err
	}

	claimed, err := s.claim(asset)
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		// Another publisher took the record between Lookup and claim.
		existing, err := s.Lookup(ctx, asset.Tag, asset.Platform)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, zerr.With(zerr.New("release record vanished"), "platform", asset.Platform)
		}
		return settle(existing, asset)
	}
	return &asset, true, nil
}

// nameAsset links blob under the asset's name. A name already holding other content
// belongs to a publisher that got there first.
func nameAsset(blob, named string, asset domain.ReleaseAsset) error {
	err := os.Link(blob, named)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return zerr.With(zerr.Wrap(err, "failed to name release asset"), "path", named)
	}
	taken, _, err := fileDigest(named)
	if err != nil {
		return err
	}
	if taken != asset.Digest {
		return conflict(asset.Tag, asset.Platform, taken, asset.Digest)
	}
	return nil
}

// settle compares an existing record with the asset being published.
func settle(existing *domain.ReleaseAsset, asset domain.ReleaseAsset) (*domain.ReleaseAsset, bool, error) {
	if existing.Digest == asset.Digest {
		return existing, false, nil
	}
	return nil, false, conflict(asset.Tag, asset.Platform, existing.Digest, asset.Digest)
}

// storeBlob copies the content under its digest. The copy becomes visible only once
// complete.
func (s *DirStore) storeBlob(ctx context.Context, asset domain.ReleaseAsset, contentPath string) (string, error) {
	dir := filepath.Join(s.tagDir(asset.Tag), blobsDirName)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to create release directory"), "path", dir)
	}
	dest := filepath.Join(dir, domain.DigestHex(asset.Digest))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	src, err := os.Open(contentPath) //nolint:gosec // content comes from the artifact store
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to open asset content"), "path", contentPath)
	}
	defer src.Close() //nolint:errcheck // read-only

	tmp, err := os.CreateTemp(dir, ".upload.*")
	if err != nil {
		return "", zerr.Wrap(err, "failed to create upload file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src}); err != nil {
		_ = tmp.Close()
		return "", zerr.With(zerr.Wrap(err, "failed to upload asset"), "platform", asset.Platform)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", zerr.Wrap(err, "failed to sync upload")
	}
	if err := tmp.Close(); err != nil {
		return "", zerr.Wrap(err, "failed to close upload")
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return "", zerr.Wrap(err, "failed to set asset permissions")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to commit upload"), "path", dest)
	}
	return dest, nil
}

// claim creates the record for asset. It reports false when the record already exists.
func (s *DirStore) claim(asset domain.ReleaseAsset) (bool, error) {
	data, err := codec.Marshal(asset)
	if err != nil {
		return false, zerr.Wrap(err, "failed to encode release record")
	}

	dir := s.tagDir(asset.Tag)
	tmp, err := os.CreateTemp(dir, ".record.*")
	if err != nil {
		return false, zerr.Wrap(err, "failed to create release record")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return false, zerr.Wrap(err, "failed to write release record")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return false, zerr.Wrap(err, "failed to sync release record")
	}
	if err := tmp.Close(); err != nil {
		return false, zerr.Wrap(err, "failed to close release record")
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return false, zerr.Wrap(err, "failed to set record permissions")
	}

	if err := os.Link(tmpName, s.recordPath(asset.Tag, asset.Platform)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, zerr.With(zerr.Wrap(err, "failed to claim release record"), "platform", asset.Platform)
	}
	return true, nil
}

// Manifest lists the assets of tag ordered by platform.
func (s *DirStore) Manifest(_ context.Context, tag string) ([]domain.ReleaseAsset, error) {
	if err := domain.ValidateTag(tag); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.tagDir(tag))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to list release"), "tag", tag)
	}

	var assets []domain.ReleaseAsset
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		asset, err := readRecord(filepath.Join(s.tagDir(tag), name))
		if err != nil {
			return nil, err
		}
		if asset != nil {
			assets = append(assets, *asset)
		}
	}
	slices.SortFunc(assets, func(a, b domain.ReleaseAsset) int {
		return strings.Compare(a.Platform, b.Platform)
	})
	return assets, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context //nolint:containedctx // scoped to a single copy
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
