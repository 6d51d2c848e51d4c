// Package mergesched implements the background merge scheduler (§4.G): a
// single worker draining a mutex-protected queue of full-shard events,
// grounded on the pack's mutex+sync.Cond background-worker idiom (compare
// hupe1980-vecgo/internal/wal.WAL.runSyncer, which blocks on a Cond until
// there is pending work or the WAL is closed, then drains and syncs it).
package mergesched

import (
	"log/slog"
	"sync"
)

// Appender is satisfied by *shard.Builder[R] for any record type; the
// scheduler stays non-generic by depending only on this method.
type Appender interface {
	Append() error
}

type job struct {
	shardID  string
	appender Appender
}

// Scheduler runs one background goroutine that pops full-shard jobs off a
// queue and appends them, serialising disk writes for shards enqueued
// concurrently by many ingestion workers.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	running bool
	done    chan struct{}
	logger  *slog.Logger
}

// New constructs a stopped scheduler.
func New() *Scheduler {
	s := &Scheduler{logger: slog.Default().With("component", "merge-scheduler")}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start spawns the background worker goroutine (start_merge_thread).
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop()
}

// Enqueue records that shardID's builder is full and needs appending. Safe
// to call from any ingestion worker goroutine.
func (s *Scheduler) Enqueue(shardID string, a Appender) {
	s.mu.Lock()
	s.queue = append(s.queue, job{shardID: shardID, appender: a})
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *Scheduler) loop() {
	done := s.done
	defer close(done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && s.running {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && !s.running {
			s.mu.Unlock()
			return
		}
		j := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if err := j.appender.Append(); err != nil {
			s.logger.Error("scheduled append failed", "shard_id", j.shardID, "error", err)
		}
	}
}

// stop signals the worker to drain the queue and exit, then blocks until
// it does.
func (s *Scheduler) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	done := s.done
	s.cond.Broadcast()
	s.mu.Unlock()
	<-done
}

// StopOnlyAppend drains the queue and joins the worker without running any
// final merge (stop_merge_thread_only_append): used when the caller wants
// to batch merges across many shards later rather than merge immediately.
func (s *Scheduler) StopOnlyAppend() {
	s.stop()
}

// Stop drains the queue, joins the worker, then runs finalMerge
// (stop_merge_thread): the normal shutdown path, which compacts every
// shard touched by the appends that just drained.
func (s *Scheduler) Stop(finalMerge func() error) error {
	s.stop()
	if finalMerge == nil {
		return nil
	}
	return finalMerge()
}
