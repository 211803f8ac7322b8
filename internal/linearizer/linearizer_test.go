package linearizer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mhismail3/tron-sub003/internal/metrics"
	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

func newTestLinearizer(t *testing.T) (*Linearizer, *store.Store, string) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sess, _, err := s.CreateSession(context.Background(), store.CreateSessionParams{
		WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "gpt-4o",
	})
	require.NoError(t, err)

	l := New(s, metrics.New())
	return l, s, sess.ID
}

func TestAppendLinearizedSync_ReturnsDurableEvent(t *testing.T) {
	l, _, sessionID := newTestLinearizer(t)

	ev, err := l.AppendLinearizedSync(context.Background(), sessionID, types.EventMessageUser, types.MessageUserPayload{Turn: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), ev.Sequence)
}

func TestAppendLinearized_PreservesProgramOrder(t *testing.T) {
	l, s, sessionID := newTestLinearizer(t)

	const n = 20
	var mu sync.Mutex
	var seenOrder []int

	for i := 0; i < n; i++ {
		turn := i
		l.AppendLinearized(sessionID, types.EventMessageUser, types.MessageUserPayload{Turn: turn}, func(ev types.Event) {
			mu.Lock()
			seenOrder = append(seenOrder, turn)
			mu.Unlock()
		})
	}

	l.WaitIdle(sessionID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seenOrder, n)
	for i, v := range seenOrder {
		require.Equal(t, i, v)
	}

	events, err := s.GetEventsBySession(context.Background(), sessionID, store.GetEventsBySessionParams{})
	require.NoError(t, err)
	require.Len(t, events, n+1) // +1 for the session.start root
	for i := 1; i < len(events); i++ {
		require.Equal(t, int64(i), events[i].Sequence)
	}
}

func TestOnCreated_CanReenqueueOnSameSession(t *testing.T) {
	l, _, sessionID := newTestLinearizer(t)

	done := make(chan struct{})
	l.AppendLinearized(sessionID, types.EventMessageUser, types.MessageUserPayload{Turn: 1}, func(ev types.Event) {
		l.AppendLinearized(sessionID, types.EventMessageUser, types.MessageUserPayload{Turn: 2}, func(types.Event) {
			close(done)
		})
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-enqueued onCreated never ran")
	}
}

func TestWaitIdle_BlocksUntilQueueDrained(t *testing.T) {
	l, _, sessionID := newTestLinearizer(t)

	for i := 0; i < 5; i++ {
		l.AppendLinearized(sessionID, types.EventMessageUser, types.MessageUserPayload{Turn: i}, nil)
	}
	l.WaitIdle(sessionID)

	l.Close(sessionID)
}
