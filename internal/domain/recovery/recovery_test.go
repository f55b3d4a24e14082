package recovery

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesOnce(t *testing.T) {
	var calls atomic.Int32
	c := New(logging.Nop(), func() error {
		calls.Add(1)
		return nil
	})

	c.Run()
	c.Run()
	c.Run()

	assert.Equal(t, int32(1), calls.Load())
}

func TestRunIsRaceSafe(t *testing.T) {
	var calls atomic.Int32
	c := New(logging.Nop(), func() error {
		calls.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestFailingStepDoesNotBlockRemaining(t *testing.T) {
	var second atomic.Bool
	c := New(logging.Nop(),
		func() error { return errors.New("listener refused to stop") },
		func() error { second.Store(true); return nil },
	)

	c.Run()
	assert.True(t, second.Load())
}

func TestOnSignalRunsTeardown(t *testing.T) {
	var calls atomic.Int32
	c := New(logging.Nop(), func() error {
		calls.Add(1)
		return nil
	})

	stop := c.OnSignal(syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestOnSignalStopDetachesHandler(t *testing.T) {
	var calls atomic.Int32
	c := New(logging.Nop(), func() error {
		calls.Add(1)
		return nil
	})

	stop := c.OnSignal()
	stop()
	stop() // detaching twice must not panic

	assert.Equal(t, int32(0), calls.Load())
}
