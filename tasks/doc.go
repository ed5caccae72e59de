// Package tasks runs background work one task at a time and tracks its status.
//
// A Queue accepts tasks up to a fixed capacity, runs them sequentially on a single
// worker and records their progress. Running tasks report progress through a
// Reporter; reports travel over a channel to one goroutine that owns every status
// change, so callers can read a consistent snapshot at any time. Finished tasks are
// swept after a retention period.
//
//	q, _ := tasks.New(16)
//	q.Start(ctx)
//	defer q.Stop()
//	id, err := q.Enqueue(core.UserOwner(1), task)
//	status, err := q.Wait(ctx, id)
package tasks
