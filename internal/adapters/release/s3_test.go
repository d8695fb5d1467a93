package release_test

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/ship/internal/adapters/release"
	"go.trai.ch/ship/internal/core/domain"
)

const metaPrefix = "X-Amz-Meta-"

type fakeObject struct {
	size    int64
	meta    http.Header
	modTime time.Time
}

// fakeS3 serves the subset of the S3 API the release store uses: bucket HEAD,
// ListObjectsV2, object HEAD and PUT honoring If-None-Match.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    []string

	// listGate holds the first gateWaiters list requests until all of them arrived.
	listGate    chan struct{}
	gateWaiters int

	// beforePut runs once, ahead of the next PUT.
	beforePut func()
}

func newFakeS3(t *testing.T) (*fakeS3, domain.S3Target) {
	t.Helper()
	f := &fakeS3{objects: make(map[string]fakeObject)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return f, domain.S3Target{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    "ship-releases",
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
	}
}

func (f *fakeS3) gateLists(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listGate = make(chan struct{})
	f.gateWaiters = n
}

func (f *fakeS3) seed(key string, a domain.ReleaseAsset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta := http.Header{}
	meta.Set(metaPrefix+"Ship-Digest", a.Digest)
	meta.Set(metaPrefix+"Ship-Platform", a.Platform)
	meta.Set(metaPrefix+"Ship-Tag", a.Tag)
	f.objects[key] = fakeObject{size: 1, meta: meta, modTime: time.Now()}
}

func (f *fakeS3) onNextPut(hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforePut = hook
}

func (f *fakeS3) conditions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.puts)
}

func (f *fakeS3) digest(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key].meta.Get(metaPrefix + "Ship-Digest")
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	switch {
	case key == "" && r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		f.list(w, r)
	case r.Method == http.MethodHead:
		f.head(w, key)
	case r.Method == http.MethodPut:
		f.put(w, r, key)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

type listEntry struct {
	Key          string
	LastModified string
	ETag         string
	Size         int64
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string
	Prefix      string
	KeyCount    int
	IsTruncated bool
	Contents    []listEntry
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	gate := f.listGate
	if gate != nil {
		f.gateWaiters--
		if f.gateWaiters == 0 {
			close(gate)
			f.listGate = nil
		}
	}
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-time.After(5 * time.Second):
		}
	}

	prefix := r.URL.Query().Get("prefix")
	maxKeys := 1000
	if v, err := strconv.Atoi(r.URL.Query().Get("max-keys")); err == nil && v > 0 {
		maxKeys = v
	}

	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if len(keys) > maxKeys {
		keys = keys[:maxKeys]
	}
	res := listResult{Name: "ship-releases", Prefix: prefix, KeyCount: len(keys)}
	for _, k := range keys {
		obj := f.objects[k]
		res.Contents = append(res.Contents, listEntry{
			Key:          k,
			LastModified: obj.modTime.UTC().Format(time.RFC3339),
			ETag:         `"etag"`,
			Size:         obj.size,
		})
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(res)
}

func (f *fakeS3) head(w http.ResponseWriter, key string) {
	f.mu.Lock()
	obj, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for k, v := range obj.meta {
		w.Header()[k] = v
	}
	w.Header().Set("ETag", `"etag"`)
	w.Header().Set("Last-Modified", obj.modTime.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.FormatInt(obj.size, 10))
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) put(w http.ResponseWriter, r *http.Request, key string) {
	_, _ = io.Copy(io.Discard, r.Body)

	f.mu.Lock()
	hook := f.beforePut
	f.beforePut = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	size := r.ContentLength
	if v, err := strconv.ParseInt(r.Header.Get("X-Amz-Decoded-Content-Length"), 10, 64); err == nil {
		size = v
	}
	meta := http.Header{}
	for k, v := range r.Header {
		if strings.HasPrefix(k, metaPrefix) {
			meta[k] = v
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, r.Header.Get("If-None-Match"))
	if _, exists := f.objects[key]; exists && r.Header.Get("If-None-Match") == "*" {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	f.objects[key] = fakeObject{size: size, meta: meta, modTime: time.Now()}
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func TestS3Store_Put(t *testing.T) {
	ctx := context.Background()
	fake, target := newFakeS3(t)
	store, err := release.NewS3Store(ctx, target)
	require.NoError(t, err)

	path, digest := writeContent(t, "linux bundle")
	stored, created, err := store.Put(ctx, asset("linux", digest), path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, digest, stored.Digest)
	assert.Equal(t, "tutor-linux.tar.zst", stored.Name)
	assert.Equal(t, []string{"*"}, fake.conditions(), "uploads are create-only")

	_, created, err = store.Put(ctx, asset("linux", digest), path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, fake.conditions(), 1, "an identical asset is not uploaded again")

	otherPath, otherDigest := writeContent(t, "other")
	_, _, err = store.Put(ctx, asset("linux", otherDigest), otherPath)
	assert.Equal(t, domain.KindPublishDigestConflict, domain.KindOf(err))
	assert.Equal(t, digest, fake.digest(store.ObjectKey(asset("linux", digest))))
}

func TestS3Store_Put_LosesRaceAfterLookup(t *testing.T) {
	tests := []struct {
		name     string
		winner   string
		wantKind domain.Kind
	}{
		{name: "same content", winner: "bundle", wantKind: domain.KindUnknown},
		{name: "different content", winner: "rebuilt bundle", wantKind: domain.KindPublishDigestConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fake, target := newFakeS3(t)
			store, err := release.NewS3Store(ctx, target)
			require.NoError(t, err)

			path, digest := writeContent(t, "bundle")
			_, winnerDigest := writeContent(t, tt.winner)
			key := store.ObjectKey(asset("linux", digest))
			fake.onNextPut(func() { fake.seed(key, asset("linux", winnerDigest)) })

			_, created, err := store.Put(ctx, asset("linux", digest), path)
			assert.False(t, created)
			if tt.wantKind == domain.KindUnknown {
				require.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
			}
			assert.Equal(t, winnerDigest, fake.digest(key), "the first upload is never overwritten")
		})
	}
}

func TestS3Store_Put_ConcurrentWritersOneWins(t *testing.T) {
	ctx := context.Background()
	fake, target := newFakeS3(t)
	store, err := release.NewS3Store(ctx, target)
	require.NoError(t, err)

	// Both lookups complete before either upload starts.
	fake.gateLists(2)

	type outcome struct {
		digest  string
		created bool
		err     error
	}
	contents := []string{"bundle a", "bundle b"}
	results := make([]outcome, len(contents))

	var wg sync.WaitGroup
	for i, content := range contents {
		path, digest := writeContent(t, content)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := store.Put(ctx, asset("linux", digest), path)
			results[i] = outcome{digest: digest, created: created, err: err}
		}()
	}
	wg.Wait()

	var winner string
	for _, r := range results {
		if r.created {
			require.Empty(t, winner, "only one writer may create the asset")
			require.NoError(t, r.err)
			winner = r.digest
			continue
		}
		assert.Equal(t, domain.KindPublishDigestConflict, domain.KindOf(r.err))
	}
	require.NotEmpty(t, winner)
	assert.Equal(t, winner, fake.digest(store.ObjectKey(asset("linux", winner))))
}

func TestS3Store_Manifest(t *testing.T) {
	ctx := context.Background()
	_, target := newFakeS3(t)
	store, err := release.NewS3Store(ctx, target)
	require.NoError(t, err)

	for _, platform := range []string{"macos", "linux"} {
		path, digest := writeContent(t, platform)
		_, _, err := store.Put(ctx, asset(platform, digest), path)
		require.NoError(t, err)
	}

	assets, err := store.Manifest(ctx, "v1.2.0")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "linux", assets[0].Platform)
	assert.Equal(t, "macos", assets[1].Platform)
}
