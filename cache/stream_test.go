package cache

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStream(buf int) (*stream[int], *int) {
	drops := 0
	s := newStream[int](buf, "test", slog.New(slog.DiscardHandler), func() { drops++ })
	return s, &drops
}

func TestStream_PublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	s, _ := newTestStream(4)
	_, a, err := s.subscribe()
	require.NoError(t, err)
	_, b, err := s.subscribe()
	require.NoError(t, err)

	s.publish(1)
	s.publish(2)

	assert.Equal(t, 1, <-a)
	assert.Equal(t, 2, <-a)
	assert.Equal(t, 1, <-b)
	assert.Equal(t, 2, <-b)
}

func TestStream_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	s, _ := newTestStream(4)
	id, ch, err := s.subscribe()
	require.NoError(t, err)

	s.unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok, "channel must be closed")

	// A second unsubscribe for the same id is a no-op.
	s.unsubscribe(id)

	// Publishing after the subscriber left must not panic or block.
	s.publish(42)
}

func TestStream_SlowSubscriberLosesRecordsOnly(t *testing.T) {
	t.Parallel()

	s, drops := newTestStream(2)
	_, slow, err := s.subscribe()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s.publish(i)
	}
	// Buffer of 2: the first two records are kept, the rest dropped.
	assert.Equal(t, 3, *drops)
	assert.Equal(t, 0, <-slow)
	assert.Equal(t, 1, <-slow)

	// Once the consumer catches up, delivery resumes.
	s.publish(9)
	assert.Equal(t, 9, <-slow)
	assert.Equal(t, 3, *drops)
}

func TestStream_CloseCompletesSubscribers(t *testing.T) {
	t.Parallel()

	s, _ := newTestStream(4)
	_, ch, err := s.subscribe()
	require.NoError(t, err)

	s.publish(7)
	s.close()

	// Pending records drain, then the channel closes.
	v, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 7, v)
	_, ok = <-ch
	assert.False(t, ok)

	// Post-close interactions are inert.
	s.publish(8)
	_, _, err = s.subscribe()
	assert.ErrorIs(t, err, ErrClosed)
	select {
	case <-s.closing():
	default:
		t.Fatal("closing channel must be closed")
	}
}

// The cache-level dropped counter and metric see subscriber overflow.
func TestCache_DroppedRecordsCounted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New[int, int](Options[int, int]{SubscriberBuffer: 1})
	t.Cleanup(func() { _ = c.Close() })

	// Nobody reads this subscription, so its buffer (capacity 1) overflows.
	_, err := c.Subscribe(ctx)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, c.Add(ctx, i, i))
	}
	st := c.Stats()
	assert.Equal(t, uint64(3), st.DroppedRecords)
}
