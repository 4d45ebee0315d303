package wake

import (
	"testing"
	"time"
)

func newTimers(t *testing.T) *CronTimers {
	t.Helper()
	timers, err := NewCronTimers(nil)
	if err != nil {
		t.Fatalf("new timers: %v", err)
	}
	t.Cleanup(func() { _ = timers.Shutdown() })
	return timers
}

func TestTimerFires(t *testing.T) {
	timer := newTimers(t).Timer("s1")
	fired := make(chan struct{}, 2)
	timer.OnFire(func() { fired <- struct{}{} })

	if err := timer.ArmAt(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Fatalf("arm: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimerPastInstantFiresImmediately(t *testing.T) {
	timer := newTimers(t).Timer("s2")
	fired := make(chan struct{}, 1)
	timer.OnFire(func() { fired <- struct{}{} })
	if err := timer.ArmAt(time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("arm: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestRearmReplacesAndDisarmCancels(t *testing.T) {
	timer := newTimers(t).Timer("s3")
	fired := make(chan struct{}, 4)
	timer.OnFire(func() { fired <- struct{}{} })

	if err := timer.ArmAt(time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := timer.ArmAt(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("re-armed timer did not fire")
	}

	if err := timer.ArmAt(time.Now().Add(100 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if err := timer.Disarm(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
		t.Fatal("disarmed timer fired")
	case <-time.After(400 * time.Millisecond):
	}
}
