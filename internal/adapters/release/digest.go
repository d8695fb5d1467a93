// Package release implements the release targets assets are published to.
package release

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/zerr"
)

// checkContent confirms contentPath still holds the bytes asset claims.
func checkContent(asset domain.ReleaseAsset, contentPath string) (int64, error) {
	got, n, err := fileDigest(contentPath)
	if err != nil {
		return 0, err
	}
	if got != asset.Digest {
		err := zerr.With(domain.ErrDigestMismatch, "expected", asset.Digest)
		err = zerr.With(err, "actual", got)
		return 0, domain.Fail(domain.KindBundleVerificationFailed, zerr.With(err, "platform", asset.Platform))
	}
	return n, nil
}

// fileDigest returns the BLAKE3 digest and size of the file at path.
func fileDigest(path string) (string, int64, error) {
	f, err := os.Open(path) //nolint:gosec // paths come from the artifact store or the release tree
	if err != nil {
		return "", 0, zerr.With(zerr.Wrap(err, "failed to open asset content"), "path", path)
	}
	defer f.Close() //nolint:errcheck // read-only

	hasher := blake3.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, zerr.With(zerr.Wrap(err, "failed to hash asset content"), "path", path)
	}
	return domain.FormatDigest(hex.EncodeToString(hasher.Sum(nil))), n, nil
}

func conflict(tag, platform, existing, incoming string) error {
	err := zerr.With(domain.ErrPublishDigestConflict, "tag", tag)
	err = zerr.With(err, "platform", platform)
	err = zerr.With(err, "existing_digest", existing)
	err = zerr.With(err, "incoming_digest", incoming)
	return domain.Fail(domain.KindPublishDigestConflict, err)
}
