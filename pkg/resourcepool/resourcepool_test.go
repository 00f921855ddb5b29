package resourcepool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/flowcore/internal/testutil"
	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
	"github.com/vnykmshr/flowcore/pkg/metrics"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{"valid capacity", 10, false},
		{"capacity one", 1, false},
		{"zero capacity", 0, true},
		{"negative capacity", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := New(tt.capacity)
			if tt.wantErr {
				if !errors.Is(err, gferrors.ErrInvalidConfiguration) {
					t.Fatalf("got %v, want ErrInvalidConfiguration", err)
				}
				if pool != nil {
					t.Error("expected nil pool on error")
				}
				return
			}

			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, pool.Capacity(), tt.capacity)
			testutil.AssertEqual(t, pool.Available(), tt.capacity)
			testutil.AssertEqual(t, pool.InUse(), 0)
			testutil.AssertEqual(t, pool.Waiting(), 0)
		})
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero capacity")
		}
	}()
	MustNew(0)
}

func TestBasicAcquireRelease(t *testing.T) {
	pool := MustNew(2)
	ctx := context.Background()

	p1, err := pool.Acquire(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, pool.Available(), 1)
	testutil.AssertEqual(t, pool.InUse(), 1)

	p2, ok := pool.TryAcquire()
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, pool.Available(), 0)

	_, ok = pool.TryAcquire()
	testutil.AssertEqual(t, ok, false)

	p1.Release()
	p2.Release()
	testutil.AssertEqual(t, pool.Available(), 2)
	testutil.AssertEqual(t, pool.InUse(), 0)
}

func TestPermitReleaseIsIdempotent(t *testing.T) {
	pool := MustNew(1)

	permit, err := pool.Acquire(context.Background())
	testutil.AssertNoError(t, err)

	permit.Release()
	permit.Release()
	permit.Release()

	testutil.AssertEqual(t, pool.Available(), 1)
	testutil.AssertEqual(t, pool.InUse(), 0)

	var nilPermit *Permit
	nilPermit.Release()
}

func TestFIFOGrantOrder(t *testing.T) {
	pool := MustNew(1)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	holder, err := pool.Acquire(ctx)
	testutil.AssertNoError(t, err)

	const waiters = 5
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			permit, err := pool.Acquire(ctx)
			if err != nil {
				t.Errorf("waiter %d: %v", id, err)
				return
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			permit.Release()
		}(i)

		// Make sure waiter i is queued before waiter i+1 arrives
		want := i + 1
		testutil.Eventually(t, func() bool { return pool.Waiting() == want }, time.Second, time.Millisecond)
	}

	// A newcomer must not overtake the queue even though a permit is about to free up
	if _, ok := pool.TryAcquire(); ok {
		t.Fatal("TryAcquire overtook queued waiters")
	}

	holder.Release()
	wg.Wait()

	for i, id := range order {
		if id != i {
			t.Fatalf("grant order = %v, want ascending", order)
		}
	}
	testutil.AssertEqual(t, pool.Available(), 1)
}

func TestConcurrencyNeverExceedsCapacity(t *testing.T) {
	for _, capacity := range []int{1, 2, 5} {
		pool := MustNew(capacity)
		ctx := context.Background()

		var active, peak int32
		var wg sync.WaitGroup

		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = pool.Do(ctx, func(ctx context.Context) error {
					n := atomic.AddInt32(&active, 1)
					for {
						p := atomic.LoadInt32(&peak)
						if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					atomic.AddInt32(&active, -1)
					return nil
				})
			}()
		}
		wg.Wait()

		if peak > int32(capacity) {
			t.Errorf("capacity %d: observed %d concurrent sections", capacity, peak)
		}
		testutil.AssertEqual(t, pool.InUse()+pool.Available(), capacity)
	}
}

func TestAcquireCanceledWhileQueued(t *testing.T) {
	pool := MustNew(1)
	holder, err := pool.Acquire(context.Background())
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
	testutil.AssertEqual(t, pool.Waiting(), 0)
	testutil.AssertEqual(t, pool.InUse(), 1)

	holder.Release()
	testutil.AssertEqual(t, pool.Available(), 1)
}

func TestAcquirePreCanceledContext(t *testing.T) {
	pool := MustNew(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pool.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want Canceled", err)
	}
	testutil.AssertEqual(t, pool.Available(), 1)
}

func TestDoReleasesOnEveryExitPath(t *testing.T) {
	pool := MustNew(1)
	ctx := context.Background()

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		err := pool.Do(ctx, func(ctx context.Context) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want boom", err)
		}
		testutil.AssertEqual(t, pool.Available(), 1)
	})

	t.Run("panic", func(t *testing.T) {
		func() {
			defer func() { _ = recover() }()
			_ = pool.Do(ctx, func(ctx context.Context) error { panic("inside") })
		}()
		testutil.AssertEqual(t, pool.Available(), 1)
	})

	t.Run("cancellation while holding", func(t *testing.T) {
		before := pool.Available()
		cctx, cancel := context.WithCancel(ctx)
		entered := make(chan struct{})
		done := make(chan error, 1)

		go func() {
			done <- pool.Do(cctx, func(ctx context.Context) error {
				close(entered)
				<-ctx.Done()
				return ctx.Err()
			})
		}()

		<-entered
		testutil.AssertEqual(t, pool.Available(), before-1)
		cancel()

		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want Canceled", err)
		}
		testutil.AssertEqual(t, pool.Available(), before)
	})
}

func TestWith(t *testing.T) {
	pool := MustNew(1)

	v, err := With(context.Background(), pool, func(ctx context.Context) (string, error) {
		if pool.Available() != 0 {
			t.Error("permit not held inside With")
		}
		return "Data from A", nil
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, "Data from A")
	testutil.AssertEqual(t, pool.Available(), 1)
}

func TestMetricsPool(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	pool, err := NewWithMetrics(2, "db", reg)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, promtest.ToFloat64(reg.PoolCapacity.WithLabelValues("db")), 2.0)

	permit, err := pool.Acquire(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.PoolInUse.WithLabelValues("db")), 1.0)

	permit.Release()
	permit.Release()
	testutil.AssertEqual(t, promtest.ToFloat64(reg.PoolInUse.WithLabelValues("db")), 0.0)
	testutil.AssertEqual(t, pool.Available(), 2)

	err = pool.Do(context.Background(), func(ctx context.Context) error {
		testutil.AssertEqual(t, promtest.ToFloat64(reg.PoolInUse.WithLabelValues("db")), 1.0)
		return nil
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.PoolWaiting.WithLabelValues("db")), 0.0)
}

func TestMetricsPoolWaitingTracksQueue(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	pool, err := NewWithMetrics(1, "cache", reg)
	testutil.AssertNoError(t, err)
	waiting := func() float64 { return promtest.ToFloat64(reg.PoolWaiting.WithLabelValues("cache")) }

	held, err := pool.Acquire(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, waiting(), 0.0)

	granted := make(chan *Permit, 1)
	go func() {
		p, err := pool.Acquire(context.Background())
		if err == nil {
			granted <- p
		}
	}()
	testutil.Eventually(t, func() bool { return pool.Waiting() == 1 }, time.Second, time.Millisecond)

	_, ok := pool.TryAcquire()
	testutil.AssertEqual(t, ok, false)
	testutil.AssertEqual(t, waiting(), 1.0)

	held.Release()
	p := <-granted
	testutil.AssertEqual(t, waiting(), 0.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.PoolInUse.WithLabelValues("cache")), 1.0)
	p.Release()
}
