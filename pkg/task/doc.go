/*
Package task provides cancellable, awaitable units of work and the scopes that
own them.

A Handle runs a Func on its own goroutine and reaches exactly one terminal
state: Completed, Failed or Cancelled. Its Outcome carries a Kind that tells
a timeout apart from a plain cancellation and from a failure:

	scope := task.NewScope(ctx, task.WithName("fetch"))
	h := task.Spawn(scope, "fetch-a", func(ctx context.Context) (string, error) {
		if err := task.Sleep(ctx, time.Second); err != nil {
			return "", err
		}
		return "Data from A", nil
	})
	v, err := h.Await(ctx)

Cancellation is cooperative. A Func observes it through ctx at its next
suspension point and must return ctx's error (or one wrapping it) after its
own cleanup. Doing so is what lets the task settle as Cancelled; a Func that
swallows the cancellation and returns nil settles as Completed.

Dependent work is expressed by awaiting: a task that needs another task's
value calls Await on that handle.

WithTimeout guards a handle with a deadline. When the deadline wins, the task
is cancelled with ErrTimeout and the guard waits for it to settle, so the
task's cleanup has run before the TimedOut outcome is returned:

	o := task.WithTimeout(ctx, h, 2*time.Second)
	if o.Kind == task.TimedOut {
		// h has already released whatever it held
	}

Gather awaits many handles and returns every outcome without failing fast.
Scope.Wait does the same for everything a scope owns and is what shutdown
coordination builds on.
*/
package task
