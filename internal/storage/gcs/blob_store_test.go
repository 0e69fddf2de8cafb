package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "rank-mirror"})
	require.ErrorContains(t, err, "client is required")
}
