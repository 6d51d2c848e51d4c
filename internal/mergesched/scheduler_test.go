package mergesched

import (
	"sync/atomic"
	"testing"
	"time"
)

type countingAppender struct {
	calls *int32
}

func (c countingAppender) Append() error {
	atomic.AddInt32(c.calls, 1)
	return nil
}

func TestSchedulerAppendsEnqueuedJobs(t *testing.T) {
	var calls int32
	s := New()
	s.Start()
	defer s.StopOnlyAppend()

	for i := 0; i < 5; i++ {
		s.Enqueue("shard", countingAppender{calls: &calls})
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&calls) < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Fatalf("appended calls = %d, want 5", got)
	}
}

func TestSchedulerStopOnlyAppendSkipsFinalMerge(t *testing.T) {
	s := New()
	s.Start()
	s.StopOnlyAppend()

	mergeCalled := false
	_ = mergeCalled
	// StopOnlyAppend takes no merge callback; calling it twice must not
	// block or panic once the worker has already joined.
	s.StopOnlyAppend()
}

func TestSchedulerStopRunsFinalMerge(t *testing.T) {
	s := New()
	s.Start()

	merged := false
	if err := s.Stop(func() error {
		merged = true
		return nil
	}); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !merged {
		t.Fatal("Stop did not invoke finalMerge")
	}
}
