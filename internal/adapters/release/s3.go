package release

import (
	"context"
	"net/http"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	metaDigest   = "Ship-Digest"
	metaPlatform = "Ship-Platform"
	metaTag      = "Ship-Tag"

	contentType = "application/zstd"
)

var _ ports.ReleaseStore = (*S3Store)(nil)

// S3Store publishes releases to an S3-compatible bucket under
// <prefix><tag>/<platform>/<asset name>. The digest travels as object metadata.
// An object becomes visible only once its upload completed.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store connects to the bucket of target, creating it when missing.
func NewS3Store(ctx context.Context, target domain.S3Target) (*S3Store, error) {
	if err := validateS3(target); err != nil {
		return nil, err
	}

	client, err := minio.New(target.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(target.AccessKey, target.SecretKey, ""),
		Secure: target.Secure,
		Region: target.Region,
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create object store client"), "endpoint", target.Endpoint)
	}

	exists, err := client.BucketExists(ctx, target.Bucket)
	if err != nil {
		return nil, domain.Fail(domain.KindPublishTransientFailure,
			zerr.With(zerr.Wrap(err, "failed to reach release bucket"), "bucket", target.Bucket))
	}
	if !exists {
		if err := client.MakeBucket(ctx, target.Bucket, minio.MakeBucketOptions{Region: target.Region}); err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to create release bucket"), "bucket", target.Bucket)
		}
	}

	return &S3Store{client: client, bucket: target.Bucket, prefix: normalizePrefix(target.Prefix)}, nil
}

func validateS3(target domain.S3Target) error {
	switch {
	case strings.TrimSpace(target.Endpoint) == "":
		return zerr.With(domain.ErrInvalidConfig, "field", "release.s3.endpoint")
	case strings.Contains(target.Endpoint, "://"):
		return zerr.With(zerr.With(domain.ErrInvalidConfig, "field", "release.s3.endpoint"), "reason", "must not include a scheme")
	case strings.TrimSpace(target.Bucket) == "":
		return zerr.With(domain.ErrInvalidConfig, "field", "release.s3.bucket")
	case target.AccessKey == "" || target.SecretKey == "":
		return zerr.With(domain.ErrInvalidConfig, "field", "release credentials")
	}
	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (s *S3Store) platformPrefix(tag, platform string) string {
	return s.prefix + tag + "/" + platform + "/"
}

// ObjectKey returns the key an asset is stored under.
func (s *S3Store) ObjectKey(asset domain.ReleaseAsset) string {
	return s.platformPrefix(asset.Tag, asset.Platform) + path.Base(asset.Name)
}

// Lookup finds the asset stored for (tag, platform).
func (s *S3Store) Lookup(ctx context.Context, tag, platform string) (*domain.ReleaseAsset, error) {
	if err := domain.ValidateTag(tag); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.platformPrefix(tag, platform),
		Recursive: true,
		MaxKeys:   1,
	}) {
		if obj.Err != nil {
			return nil, zerr.With(zerr.Wrap(obj.Err, "failed to list release objects"), "tag", tag)
		}
		return s.stat(ctx, obj.Key)
	}
	return nil, nil
}

func (s *S3Store) stat(ctx context.Context, key string) (*domain.ReleaseAsset, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to stat release object"), "key", key)
	}

	return &domain.ReleaseAsset{
		Tag:         metadata(info.UserMetadata, metaTag),
		Platform:    metadata(info.UserMetadata, metaPlatform),
		Name:        path.Base(info.Key),
		Digest:      metadata(info.UserMetadata, metaDigest),
		Size:        info.Size,
		PublishedAt: info.LastModified.UTC(),
	}, nil
}

func metadata(m map[string]string, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Put uploads contentPath as asset unless (tag, platform) already holds an object.
// The upload is create-only (If-None-Match: *): when another publisher wrote the key
// first, the stored object is settled against asset instead of overwritten.
func (s *S3Store) Put(
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

	f, err := os.Open(contentPath) //nolint:gosec // content comes from the artifact store
	if err != nil {
		return nil, false, zerr.With(zerr.Wrap(err, "failed to open asset content"), "path", contentPath)
	}
	defer f.Close() //nolint:errcheck // read-only

	key := s.ObjectKey(asset)
	opts := minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			metaDigest:   asset.Digest,
			metaPlatform: asset.Platform,
			metaTag:      asset.Tag,
		},
	}
	opts.SetMatchETagExcept("*")

	if _, err := s.client.PutObject(ctx, s.bucket, key, f, size, opts); err != nil {
		if !preconditionFailed(err) {
			return nil, false, zerr.With(zerr.Wrap(err, "failed to upload release object"), "key", key)
		}
		winner, err := s.stat(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if winner == nil {
			return nil, false, zerr.With(zerr.New("release object vanished after conflicting upload"), "key", key)
		}
		return settle(winner, asset)
	}

	// Servers that ignore If-None-Match still accept the put; reading the object back
	// catches a concurrent writer on those.
	stored, err := s.stat(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, zerr.With(zerr.New("release object vanished after upload"), "key", key)
	}
	if stored.Digest != asset.Digest {
		return nil, false, conflict(asset.Tag, asset.Platform, stored.Digest, asset.Digest)
	}
	return stored, true, nil
}

func preconditionFailed(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusPreconditionFailed || resp.Code == "PreconditionFailed"
}

// Manifest lists the assets of tag ordered by platform.
func (s *S3Store) Manifest(ctx context.Context, tag string) ([]domain.ReleaseAsset, error) {
	if err := domain.ValidateTag(tag); err != nil {
		return nil, err
	}

	var assets []domain.ReleaseAsset
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix + tag + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, zerr.With(zerr.Wrap(obj.Err, "failed to list release objects"), "tag", tag)
		}
		asset, err := s.stat(ctx, obj.Key)
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
