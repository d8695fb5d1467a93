package domain

import (
	"strings"
	"time"
)

// DigestAlgorithm prefixes every artifact digest.
const DigestAlgorithm = "blake3"

// Artifact is one platform's bundle. Records are replaced, never patched: verification
// produces a new record with Verified set.
type Artifact struct {
	Platform string `cbor:"platform" json:"platform"`
	// Path is the location of the archive in the content-addressed store.
	Path string `cbor:"path" json:"path"`
	// Digest is "blake3:<hex>" over the archive bytes.
	Digest string `cbor:"digest" json:"digest"`
	Size   int64  `cbor:"size" json:"size"`
	// InputHash identifies the sources, dependency set and platform the bundle was built from.
	InputHash string `cbor:"input_hash" json:"input_hash"`
	// BuildTimestamp is informational and never contributes to Digest.
	BuildTimestamp time.Time `cbor:"build_timestamp" json:"build_timestamp"`
	// Verified is set once the bundle passed a standalone smoke test.
	Verified bool `cbor:"verified" json:"verified"`
	// VerifiedDigest is the digest that was smoke-tested.
	VerifiedDigest string `cbor:"verified_digest,omitempty" json:"verified_digest,omitempty"`
}

// IsVerified reports whether the current content is the content that passed verification.
func (a *Artifact) IsVerified() bool {
	return a.Verified && a.VerifiedDigest != "" && a.VerifiedDigest == a.Digest
}

// FormatDigest renders a raw hex digest with its algorithm prefix.
func FormatDigest(hex string) string {
	return DigestAlgorithm + ":" + hex
}

// DigestHex strips the algorithm prefix from a digest.
func DigestHex(digest string) string {
	return strings.TrimPrefix(digest, DigestAlgorithm+":")
}

// AssetName is the release asset file name for a platform's bundle.
func AssetName(project, platform string) string {
	return project + "-" + platform + ".tar.zst"
}
