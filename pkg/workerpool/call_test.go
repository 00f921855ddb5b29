package workerpool

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/flowcore/internal/testutil"
)

func TestCallReturnsValue(t *testing.T) {
	pool := MustNew(2, 4)
	defer pool.Close()

	v, err := Call(context.Background(), pool, func(ctx context.Context) (int, error) {
		return 21 * 2, nil
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, 42)

	boom := errors.New("blocking step failed")
	_, err = Call(context.Background(), pool, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	testutil.AssertEqual(t, errors.Is(err, boom), true)
}

func TestCallDoesNotBlockOtherCallers(t *testing.T) {
	pool := MustNew(2, 4)
	defer pool.Close()

	release := make(chan struct{})
	slow := make(chan error, 1)
	go func() {
		_, err := Call(context.Background(), pool, func(ctx context.Context) (int, error) {
			<-release
			return 0, nil
		})
		slow <- err
	}()

	testutil.Eventually(t, func() bool { return pool.ActiveWorkers() == 1 }, time.Second, time.Millisecond)

	v, err := Call(context.Background(), pool, func(ctx context.Context) (string, error) {
		return "quick", nil
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, "quick")

	close(release)
	testutil.AssertNoError(t, <-slow)
}

func TestCallRecoversPanic(t *testing.T) {
	pool := MustNew(1, 1)
	defer pool.Close()

	_, err := Call(context.Background(), pool, func(ctx context.Context) (int, error) {
		panic("bad input")
	})
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, strings.Contains(err.Error(), "task panicked: bad input"), true)
}

func TestCallCanceledWhileQueued(t *testing.T) {
	pool := MustNew(1, 4)
	defer pool.Close()

	release := make(chan struct{})
	go func() {
		_, _ = Call(context.Background(), pool, func(ctx context.Context) (int, error) {
			<-release
			return 0, nil
		})
	}()
	testutil.Eventually(t, func() bool { return pool.ActiveWorkers() == 1 }, time.Second, time.Millisecond)

	var ran int32
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Call(ctx, pool, func(ctx context.Context) (int, error) {
		atomic.StoreInt32(&ran, 1)
		return 1, nil
	})
	testutil.AssertEqual(t, errors.Is(err, context.DeadlineExceeded), true)

	close(release)
	testutil.AssertNoError(t, pool.Close())
	testutil.AssertEqual(t, atomic.LoadInt32(&ran), int32(0))
}

func TestCallCanceledWhileRunningWaitsForStep(t *testing.T) {
	pool := MustNew(1, 1)
	defer pool.Close()

	var cleaned int32
	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-started
		cancel()
	}()

	_, err := Call(ctx, pool, func(ctx context.Context) (int, error) {
		defer atomic.StoreInt32(&cleaned, 1)
		close(started)
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return 0, ctx.Err()
	})

	testutil.AssertEqual(t, errors.Is(err, context.Canceled), true)
	testutil.AssertEqual(t, atomic.LoadInt32(&cleaned), int32(1))
}

func TestCallAfterShutdown(t *testing.T) {
	pool := MustNew(1, 1)
	testutil.AssertNoError(t, pool.Close())

	_, err := Call(context.Background(), pool, func(ctx context.Context) (int, error) { return 1, nil })
	testutil.AssertEqual(t, errors.Is(err, ErrPoolShutdown), true)
}
