package phase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalDrainsInEnqueueOrder(t *testing.T) {
	c := New()

	var order []int
	c.Enqueue("X", func() { order = append(order, 1) })
	c.Enqueue("X", func() { order = append(order, 2) })
	c.Enqueue("X", func() { order = append(order, 3) })

	c.Signal("X")
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, c.Pending("X"))
}

func TestSignalUnknownTopicFallsBackToDefault(t *testing.T) {
	c := New()

	drained := false
	c.Enqueue(DefaultTopic, func() { drained = true })

	c.Signal("Y")
	assert.True(t, drained, "signal on an empty topic must drain default waiters")
}

func TestSignalPrefersItsOwnTopic(t *testing.T) {
	c := New()

	var got string
	c.Enqueue("X", func() { got = "X" })
	c.Enqueue(DefaultTopic, func() { got = "default" })

	c.Signal("X")
	assert.Equal(t, "X", got)
	assert.Equal(t, 1, c.Pending(DefaultTopic), "default waiters untouched")
}

func TestSignalBeforeWaitIsNotBuffered(t *testing.T) {
	c := New()

	c.Signal("X")

	drained := false
	c.Enqueue("X", func() { drained = true })
	assert.False(t, drained, "an earlier signal must not settle a later waiter")

	c.Signal("X")
	assert.True(t, drained)
}

func TestWaitReturnsSettlingFuture(t *testing.T) {
	c := New()
	fut := c.Wait("ready")

	select {
	case <-fut.Done():
		t.Fatal("future settled before signal")
	default:
	}

	c.Signal("ready")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := fut.Await(ctx)
	require.NoError(t, err)
}

func TestWaiterIsOneShot(t *testing.T) {
	c := New()

	count := 0
	c.Enqueue("X", func() { count++ })

	c.Signal("X")
	c.Signal("X")
	assert.Equal(t, 1, count)
}

func TestEmptyTopicAliasesDefault(t *testing.T) {
	c := New()

	drained := false
	c.Enqueue("", func() { drained = true })
	c.Signal(DefaultTopic)
	assert.True(t, drained)
}
