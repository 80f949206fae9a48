package room_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"collaborative-rooms/internal/room"
)

func TestScheduler_RunOnceExecutesAndCounts(t *testing.T) {
	var calls atomic.Int32
	s := room.NewScheduler(time.Hour, func() { calls.Add(1) })
	s.Start()
	defer s.Stop()

	s.RunOnce()
	s.RunOnce()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, uint64(2), s.Runs())
}

func TestScheduler_StopPreventsFurtherRuns(t *testing.T) {
	var calls atomic.Int32
	s := room.NewScheduler(time.Hour, func() { calls.Add(1) })
	s.Start()

	s.RunOnce()
	s.Stop()
	s.RunOnce()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), s.Runs())
}

func TestScheduler_StopDuringRunSkipsRearm(t *testing.T) {
	var s *room.Scheduler
	s = room.NewScheduler(time.Millisecond, func() { s.Stop() })
	s.Start()

	// The task stops the scheduler from inside; give the armed timer a chance
	// to fire exactly once.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), s.Runs())
}

func TestScheduler_TimedFiring(t *testing.T) {
	done := make(chan struct{}, 4)
	s := room.NewScheduler(5*time.Millisecond, func() { done <- struct{}{} })
	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler never fired")
	}
}
