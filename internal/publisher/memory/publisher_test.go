package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "channel-runs", map[string]any{"run_id": "r1", "acquired": 100})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "channel-runs", msgs[0].Topic)
	require.JSONEq(t, `{"run_id":"r1","acquired":100}`, string(msgs[0].Data))

	msgs[0].Topic = "modified"
	require.Equal(t, "channel-runs", pub.Messages()[0].Topic)
}

func TestPublisherErrors(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.SetError(errors.New("unavailable"))
	_, err := pub.Publish(context.Background(), "channel-runs", map[string]any{})
	require.ErrorContains(t, err, "unavailable")

	_, err = pub.Publish(context.Background(), "channel-runs", make(chan int))
	require.ErrorContains(t, err, "marshal payload")

	pub.SetError(nil)
	_, err = pub.Publish(context.Background(), "channel-runs", map[string]any{})
	require.NoError(t, err)
	require.Len(t, pub.Messages(), 1)
}
