/*
Package resourcepool provides a bounded admission gate for concurrent operations.

A Pool holds a fixed number of permits. Acquire suspends the caller until a
permit is available; Release hands the permit to the longest-waiting
acquirer, so waiters are served strictly in arrival order and none starves
while holders keep releasing.

Basic usage:

	pool, err := resourcepool.New(2) // at most two concurrent sections
	if err != nil {
		return err
	}

	err = pool.Do(ctx, func(ctx context.Context) error {
		return writeRecord(ctx, rec)
	})

Do, and the generic With, release the permit on every exit path: normal
return, error, panic, or ctx cancellation while fn is running. Callers that
manage permits by hand get the same guarantee from defer:

	permit, err := pool.Acquire(ctx)
	if err != nil {
		return err // ctx canceled while queued; no permit held
	}
	defer permit.Release()

Permit.Release is idempotent, so a permit can never be returned twice.

Invariants:

  - InUse() + Available() == Capacity() at all times.
  - Capacity is fixed at construction.
  - An acquirer canceled while queued leaves the queue without consuming a
    permit; if the permit was granted at the same instant it is passed on
    to the next waiter.

Use NewWithMetrics or Instrument to export in-use, waiting and wait-time
metrics through the metrics package.
*/
package resourcepool
