package pipeline

import (
	"context"
	"sync"
	"time"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/log"
	"smart-stick/tracker/internal/notify"
)

type AlertQueue interface {
	DequeueAlert(ctx context.Context, timeout time.Duration) (*domain.AlertTask, error)
	AckAlert(ctx context.Context, task domain.AlertTask) error
	RequeueInflight(ctx context.Context) (int, error)
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, task domain.AlertTask) map[string]notify.Outcome
}

// NotificationWorker drains the durable alert queue into the notification
// dispatcher. A task taken off the queue is finished even during shutdown and
// stays in flight until dispatched, so a crash redelivers it on restart.
type NotificationWorker struct {
	queue       AlertQueue
	dispatcher  AlertDispatcher
	workers     int
	pollTimeout time.Duration
	errBackoff  time.Duration
}

func NewNotificationWorker(queue AlertQueue, dispatcher AlertDispatcher, workers int) *NotificationWorker {
	if workers < 1 {
		workers = 1
	}
	return &NotificationWorker{
		queue:       queue,
		dispatcher:  dispatcher,
		workers:     workers,
		pollTimeout: 5 * time.Second,
		errBackoff:  time.Second,
	}
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Info("Starting notification workers", "workers", w.workers)

	if n, err := w.queue.RequeueInflight(ctx); err != nil {
		log.Error(err, "Failed to requeue in-flight alerts")
	} else if n > 0 {
		log.Warn("Requeued in-flight alerts from a previous run", "count", n)
	}

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.run(ctx, id)
		}(i)
	}
	wg.Wait()
	return nil
}

func (w *NotificationWorker) run(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := w.queue.DequeueAlert(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error(err, "Alert queue read failed", "worker", id)
			select {
			case <-time.After(w.errBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		if task == nil {
			continue
		}

		dctx := context.WithoutCancel(ctx)
		w.dispatcher.Dispatch(dctx, *task)
		if err := w.queue.AckAlert(dctx, *task); err != nil {
			log.Error(err, "Alert ack failed", "worker", id, "alertId", task.ID)
		}
	}
}
