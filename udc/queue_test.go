package udc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueOrder(t *testing.T) {
	q := newEventQueue(4)

	for i := uint8(1); i <= 4; i++ {
		err := q.put(event{kind: eventStartTransfer, ep: Address{Number: i}})
		require.NoError(t, err)
	}

	for i := uint8(1); i <= 4; i++ {
		ev, ok := q.get(context.Background())
		require.True(t, ok)
		assert.Equal(t, i, ev.ep.Number)
	}
}

func TestEventQueuePutNeverBlocks(t *testing.T) {
	q := newEventQueue(1)

	require.NoError(t, q.put(event{kind: eventStartTransfer}))

	// A full queue drops the event instead of blocking the producer.
	err := q.put(event{kind: eventStartTransfer})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestEventQueueGetHonorsContext(t *testing.T) {
	q := newEventQueue(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.get(ctx)
	assert.False(t, ok)
}
