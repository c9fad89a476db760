package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectLocksSerializeAndEvict(t *testing.T) {
	locks := newProjectLocks()
	ctx := context.Background()

	release, err := locks.acquire(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, locks.size())

	// A second caller waits until the first releases.
	acquired := make(chan func())
	go func() {
		r, err := locks.acquire(ctx, "proj")
		if err == nil {
			acquired <- r
		}
	}()
	select {
	case <-acquired:
		t.Fatal("second acquire should block while the lock is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	release() // releasing twice is harmless
	var second func()
	select {
	case second = <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
	assert.Equal(t, 1, locks.size())

	second()
	assert.Equal(t, 0, locks.size())
}

func TestProjectLocksEvictOnCancel(t *testing.T) {
	locks := newProjectLocks()
	release, err := locks.acquire(context.Background(), "proj")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "proj")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, locks.size())

	release()
	assert.Equal(t, 0, locks.size())

	// Distinct projects do not share an entry.
	r1, err := locks.acquire(context.Background(), "a")
	require.NoError(t, err)
	r2, err := locks.acquire(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 2, locks.size())
	r1()
	r2()
	assert.Equal(t, 0, locks.size())
}
