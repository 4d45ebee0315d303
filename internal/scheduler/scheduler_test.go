package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type memStore struct {
	mu    sync.Mutex
	tasks map[string]Task
}

func newMemStore() *memStore { return &memStore{tasks: map[string]Task{}} }

func (m *memStore) UpsertTask(_ context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memStore) sorted() []Task {
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (m *memStore) DueTasks(_ context.Context, now time.Time) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.sorted() {
		if !t.ScheduledAt.After(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) NextTask(_ context.Context) (Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	if len(all) == 0 {
		return Task{}, false, nil
	}
	return all[0], true, nil
}

type fakeTimer struct {
	arms    []time.Time
	disarms int
	armedAt *time.Time
	fire    func()
}

func (f *fakeTimer) ArmAt(at time.Time) error {
	f.arms = append(f.arms, at)
	f.armedAt = &at
	return nil
}

func (f *fakeTimer) Disarm() error {
	f.disarms++
	f.armedAt = nil
	return nil
}

func (f *fakeTimer) OnFire(fn func()) { f.fire = fn }

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler() (*Scheduler, *memStore, *fakeTimer, *clockwork.FakeClock) {
	store := newMemStore()
	timer := &fakeTimer{}
	clock := clockwork.NewFakeClockAt(t0)
	return New(store, timer, WithClock(clock), WithRetryDelay(time.Minute)), store, timer, clock
}

func TestScheduleCoalescesToEarliest(t *testing.T) {
	ctx := context.Background()
	s, _, timer, _ := newTestScheduler()

	if _, err := s.Schedule(ctx, t0.Add(10*time.Minute), "a", nil, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule(ctx, t0.Add(5*time.Minute), "a", nil, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule(ctx, t0.Add(20*time.Minute), "a", nil, ""); err != nil {
		t.Fatal(err)
	}
	if len(timer.arms) != 2 {
		t.Fatalf("arms = %v, want two (10m then 5m)", timer.arms)
	}
	if !timer.armedAt.Equal(t0.Add(5 * time.Minute)) {
		t.Fatalf("armed at %v", timer.armedAt)
	}
}

func TestOnWakeRunsDueTasksInOrderAndRearms(t *testing.T) {
	ctx := context.Background()
	s, store, timer, clock := newTestScheduler()
	var ran []string
	s.Handle("note", func(_ context.Context, task Task) error {
		ran = append(ran, task.ID)
		return nil
	})
	_, _ = s.Schedule(ctx, t0.Add(2*time.Minute), "note", nil, "second")
	_, _ = s.Schedule(ctx, t0.Add(1*time.Minute), "note", nil, "first")
	_, _ = s.Schedule(ctx, t0.Add(time.Hour), "note", nil, "later")

	clock.Advance(3 * time.Minute)
	if err := s.OnWake(ctx); err != nil {
		t.Fatalf("wake: %v", err)
	}
	if len(ran) != 2 || ran[0] != "first" || ran[1] != "second" {
		t.Fatalf("ran = %v", ran)
	}
	if len(store.tasks) != 1 {
		t.Fatalf("remaining tasks = %v", store.tasks)
	}
	if !timer.armedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("re-armed at %v, want +1h", timer.armedAt)
	}
}

func TestOnWakeAggregatesFailuresAndKeepsRows(t *testing.T) {
	ctx := context.Background()
	s, store, timer, clock := newTestScheduler()
	boom := errors.New("boom")
	var okRuns int
	s.Handle("fail", func(context.Context, Task) error { return boom })
	s.Handle("ok", func(context.Context, Task) error { okRuns++; return nil })
	_, _ = s.Schedule(ctx, t0, "fail", nil, "f1")
	_, _ = s.Schedule(ctx, t0, "ok", nil, "o1")
	_, _ = s.Schedule(ctx, t0, "fail", nil, "f2")

	clock.Advance(time.Second)
	err := s.OnWake(ctx)
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("err = %v, want *BatchError", err)
	}
	if len(batch.Failures) != 2 || !errors.Is(err, boom) {
		t.Fatalf("failures = %+v", batch.Failures)
	}
	if okRuns != 1 {
		t.Fatalf("ok handler ran %d times", okRuns)
	}
	if _, ok := store.tasks["f1"]; !ok {
		t.Fatal("failed task f1 was deleted")
	}
	if _, ok := store.tasks["o1"]; ok {
		t.Fatal("succeeded task o1 still stored")
	}
	if want := clock.Now().Add(time.Minute); !timer.armedAt.Equal(want) {
		t.Fatalf("retry armed at %v, want %v", timer.armedAt, want)
	}
}

func TestSpuriousWakeIsNoop(t *testing.T) {
	ctx := context.Background()
	s, store, timer, _ := newTestScheduler()
	var runs int
	s.Handle("x", func(context.Context, Task) error { runs++; return nil })
	_, _ = s.Schedule(ctx, t0.Add(time.Hour), "x", nil, "x1")

	if err := s.OnWake(ctx); err != nil {
		t.Fatal(err)
	}
	if runs != 0 || len(store.tasks) != 1 {
		t.Fatalf("spurious wake ran tasks: runs=%d tasks=%v", runs, store.tasks)
	}
	if !timer.armedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("armed at %v", timer.armedAt)
	}
}

func TestCancelAndUnknownType(t *testing.T) {
	ctx := context.Background()
	s, store, timer, clock := newTestScheduler()
	_, _ = s.Schedule(ctx, t0, "mystery", nil, "m1")
	_, _ = s.Schedule(ctx, t0, "mystery", nil, "m2")
	if err := s.Cancel(ctx, "m2"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if err := s.OnWake(ctx); err != nil {
		t.Fatalf("wake: %v", err)
	}
	if len(store.tasks) != 0 {
		t.Fatalf("tasks = %v", store.tasks)
	}
	if timer.disarms == 0 {
		t.Fatal("expected disarm with empty queue")
	}
}

func TestStableIDReplacesTask(t *testing.T) {
	ctx := context.Background()
	s, store, _, _ := newTestScheduler()
	_, _ = s.Schedule(ctx, t0.Add(time.Minute), "check", map[string]int{"round": 1}, "round_check")
	_, _ = s.Schedule(ctx, t0.Add(2*time.Minute), "check", map[string]int{"round": 2}, "round_check")
	if len(store.tasks) != 1 {
		t.Fatalf("tasks = %v", store.tasks)
	}
	if string(store.tasks["round_check"].Data) != `{"round":2}` {
		t.Fatalf("data = %s", store.tasks["round_check"].Data)
	}
}

func TestRestoreArmsEarliest(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	_ = store.UpsertTask(ctx, Task{ID: "a", Type: "x", ScheduledAt: t0.Add(time.Hour)})
	_ = store.UpsertTask(ctx, Task{ID: "b", Type: "x", ScheduledAt: t0.Add(time.Minute)})
	timer := &fakeTimer{}
	s := New(store, timer, WithClock(clockwork.NewFakeClockAt(t0)))
	if err := s.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if at, ok := s.ArmedAt(); !ok || !at.Equal(t0.Add(time.Minute)) {
		t.Fatalf("armed at %v %v", at, ok)
	}
}
