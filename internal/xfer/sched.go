package xfer

import (
	"log/slog"
	"sync"
)

// scheduler runs executor jobs. Both flavours run one job at a time; the slot makes sure
// there is never more than one to run.
type scheduler interface {
	schedule(job func()) error
	close()
}

type inline struct{}

func (inline) schedule(job func()) error {
	job()
	return nil
}

func (inline) close() {}

// worker is a goroutine fed through a channel, same shape as a ring manager loop: block
// for work, run it, repeat until the channel closes.
type worker struct {
	log		*slog.Logger
	mu		sync.Mutex
	jobs	chan func()
	done	chan struct{}
	closed	bool
}

func startWorker(log *slog.Logger) *worker {
	w := &worker{
		log:	log,
		jobs:	make(chan func(), 1),
		done:	make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	for job := range w.jobs {
		job()
	}
	w.log.Debug("worker exit")
}

// schedule never blocks: a job is only handed over once the previous one has left the
// slot, by which point the loop has already taken it off the channel.
func (w *worker) schedule(job func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.jobs <- job
	return nil
}

// close lets the job in flight run to completion and stops the loop.
func (w *worker) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	<- w.done
}
