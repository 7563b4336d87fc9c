package framebuf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestWins(t *testing.T) {
	b := New(1)
	defer b.Close()

	b.Put([]byte("F1"))
	b.Put([]byte("F2"))
	b.Put([]byte("F3"))

	frame, ok := b.TryNext()
	require.True(t, ok)
	assert.Equal(t, "F3", string(frame))
	assert.Equal(t, uint64(2), b.Dropped())

	_, ok = b.TryNext()
	assert.False(t, ok, "F1 and F2 must be lost, never delivered")
}

func TestEvictOldestAtCapacity(t *testing.T) {
	b := New(3)
	defer b.Close()

	for _, s := range []string{"a", "b", "c", "d"} {
		b.Put([]byte(s))
	}

	assert.Equal(t, 3, b.Len())
	frame, ok := b.TryNext()
	require.True(t, ok)
	assert.Equal(t, "b", string(frame), "oldest frame is the one evicted")
}

func TestNextBlocksUntilPut(t *testing.T) {
	b := New(1)
	defer b.Close()

	got := make(chan []byte, 1)
	go func() {
		frame, err := b.Next()
		if err == nil {
			got <- frame
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before any frame was put")
	case <-time.After(50 * time.Millisecond):
	}

	b.Put([]byte("frame"))

	select {
	case frame := <-got:
		assert.Equal(t, "frame", string(frame))
	case <-time.After(time.Second):
		t.Fatal("Next did not wake after Put")
	}
}

func TestCloseUnblocksReaders(t *testing.T) {
	b := New(1)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := b.Next()
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	b.Close()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("reader still blocked after Close")
		}
	}
}

func TestPutAfterCloseIsDiscarded(t *testing.T) {
	b := New(1)
	b.Close()
	b.Put([]byte("late"))
	assert.Equal(t, 0, b.Len())
}

func TestConcurrentProducersAndConsumer(t *testing.T) {
	b := New(3)

	const producers = 4
	const perProducer = 200

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				b.Put([]byte{byte(j)})
			}
		}()
	}

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := b.Next(); err != nil {
				return
			}
			received++
		}
	}()

	wg.Wait()
	b.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not finish")
	}

	total := int(b.Dropped()) + received + b.Len()
	assert.Equal(t, producers*perProducer, total, "every frame is either delivered, dropped, or pending")
}
