// Package queue provides a repository-agnostic task queue with first-class
// support for immediate, delayed, deduplicated, and periodic execution. It
// backs the delivery pipeline: webhook dispatch jobs, CDN purges, and proxy
// healthchecks all flow through it.
//
// The package is organised around three main components:
//
//   - Enqueuer   — adds one-time tasks to the queue
//   - Scheduler  — converts cron-like Schedule definitions into tasks at runtime
//   - Worker     — claims pending tasks and dispatches them to a user supplied Handler
//
// Components interact only through a set of small repository interfaces,
// keeping the business logic decoupled from persistence. The queue can be
// backed by any storage engine (MongoDB, Redis, memory) by implementing the
// required interfaces.
//
// # Deduplication
//
// Tasks enqueued with WithDedupKey collapse: while a task with the same key
// is pending or processing in a queue, enqueueing another returns
// ErrDuplicateTask. Rapid-fire saves of the same feature therefore produce a
// single delivery job.
//
// # Retry schedules
//
// WithRetrySchedule attaches explicit per-attempt delays to a task. A
// schedule of [5s, 5m] means one initial attempt, a retry 5 seconds later,
// a final retry 5 minutes after that, then the task is dead-lettered.
// Without a schedule, failed tasks back off linearly.
//
// # Usage
//
//	type DeliverWebhookPayload struct {
//	    WebhookID string
//	}
//
//	func example(repo queue.EnqueuerRepository) error {
//	    e, err := queue.NewEnqueuer(repo)
//	    if err != nil {
//	        return err
//	    }
//	    return e.Enqueue(context.Background(),
//	        DeliverWebhookPayload{WebhookID: "wh_1"},
//	        queue.WithDedupKey("wh_1"),
//	        queue.WithRetrySchedule(5*time.Second, 5*time.Minute),
//	    )
//	}
//
// Periodic job:
//
//	s, _ := queue.NewScheduler(repo, queue.WithCheckInterval(30*time.Second))
//	_ = s.AddTask("proxy_healthcheck", queue.EveryInterval(time.Hour))
//	go s.Start(context.Background())
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrDuplicateTask, ErrNoHandlers)
// signal violations of business invariants and can be checked with errors.Is.
package queue
