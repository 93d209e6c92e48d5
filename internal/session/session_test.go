package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueFIFO(t *testing.T) {
	s := New("x", 4)
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, s.Enqueue([]byte(p), time.Millisecond))
	}
	for _, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, string(<-s.Outbound()))
	}
}

func TestEnqueueTimeoutWhenFull(t *testing.T) {
	s := New("x", 1)
	require.NoError(t, s.Enqueue([]byte("a"), 0))

	assert.Equal(t, ErrSendTimeout, s.Enqueue([]byte("b"), 0))

	start := time.Now()
	assert.Equal(t, ErrSendTimeout, s.Enqueue([]byte("b"), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestEnqueueAfterClose(t *testing.T) {
	s := New("x", 1)
	s.Close()
	s.Close()

	assert.True(t, s.Closed())
	assert.Equal(t, ErrClosed, s.Enqueue([]byte("a"), time.Second))
}

func TestCloseUnblocksEnqueue(t *testing.T) {
	s := New("x", 1)
	require.NoError(t, s.Enqueue([]byte("a"), 0))

	result := make(chan error, 1)
	go func() { result <- s.Enqueue([]byte("b"), 5*time.Second) }()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case err := <-result:
		assert.Equal(t, ErrClosed, err)
	case <-time.After(time.Second):
		t.Fatal("Enqueue did not return after Close")
	}
}

func TestSubject(t *testing.T) {
	s := New("x", 0)
	assert.Empty(t, s.Subject())
	s.SetSubject("alice")
	assert.Equal(t, "alice", s.Subject())
}
