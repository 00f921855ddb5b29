// Package scheduler fires recurring root jobs.
//
// Jobs are scheduled once (Schedule, ScheduleAfter), on a fixed interval
// (ScheduleRepeating) or on a cron expression parsed by robfig/cron
// (ScheduleCron). Every firing runs as a task in the scheduler's scope, so a
// shutdown that cancels the scope also cancels the jobs in flight and waits
// for them to settle. A job still running when it is due again is skipped.
//
//	s, _ := scheduler.New(scheduler.Config{Scope: coordinator.Scope()})
//	_ = s.ScheduleCron("heartbeat", "@every 30s", func(ctx context.Context) error {
//		hub.Broadcast(ctx, "", "heartbeat")
//		return nil
//	})
//	_ = s.Start()
package scheduler
