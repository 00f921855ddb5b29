// Package shutdown coordinates an orderly process exit.
//
// A Coordinator moves through Armed, Triggered, Draining and Complete. The
// first stop request (an OS signal via Notify, a call to Trigger, or the end
// of the context passed to Run) cancels every root task, waits for all of
// them to settle and then releases registered resources in LIFO order.
// Later requests are ignored, so a second Ctrl-C never double-cancels or
// double-releases anything.
//
//	c := shutdown.New(shutdown.WithDrainTimeout(10 * time.Second))
//	c.Notify()
//	c.Register("hub", hub)
//	c.Go("http", serveHTTP)
//	report := c.Run(ctx)
//	if err := report.Err(); err != nil {
//		log.Println(err)
//	}
//
// Task failures and release errors are collected in the Report rather than
// raised, so one failing task never stops the others from draining.
package shutdown
