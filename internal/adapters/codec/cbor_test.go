package codec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/ship/internal/adapters/codec"
	"go.trai.ch/ship/internal/core/domain"
)

func TestMarshal_Deterministic(t *testing.T) {
	a := domain.Artifact{
		Platform:       "linux",
		Digest:         "blake3:abc",
		Size:           42,
		BuildTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
	}

	first, err := codec.Marshal(a)
	require.NoError(t, err)
	second, err := codec.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var got domain.Artifact
	require.NoError(t, codec.Unmarshal(first, &got))
	assert.Equal(t, a.Digest, got.Digest)
	assert.True(t, a.BuildTimestamp.Equal(got.BuildTimestamp), "timestamps keep nanoseconds")
}

func TestUnmarshal_IgnoresUnknownFields(t *testing.T) {
	data, err := codec.Marshal(map[string]any{"platform": "macos", "future": true})
	require.NoError(t, err)

	var got domain.Artifact
	require.NoError(t, codec.Unmarshal(data, &got))
	assert.Equal(t, "macos", got.Platform)
}
