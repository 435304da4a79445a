package scheduler

import (
	"testing"
	"time"
)

func TestEngineEmitsInRunOrder(t *testing.T) {
	engine := NewEngine(8)
	engine.Start()
	defer engine.Stop()

	if _, err := engine.Schedule("later", 80*time.Millisecond); err != nil {
		t.Fatalf("schedule later: %v", err)
	}
	if _, err := engine.Schedule("sooner", 20*time.Millisecond); err != nil {
		t.Fatalf("schedule sooner: %v", err)
	}

	first := waitJob(t, engine.C(), time.Second)
	second := waitJob(t, engine.C(), time.Second)
	if first.Key != "sooner" || second.Key != "later" {
		t.Fatalf("unexpected order: first=%s second=%s", first.Key, second.Key)
	}
}

func TestScheduleSameKeyReplacesPendingJob(t *testing.T) {
	engine := NewEngine(8)
	engine.Start()
	defer engine.Stop()

	start := time.Now()
	if _, err := engine.Schedule("save", 40*time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	last, err := engine.Schedule("save", 60*time.Millisecond)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	got := waitJob(t, engine.C(), time.Second)
	if got.Seq != last.Seq {
		t.Fatalf("expected only the latest job to fire, got seq=%d want=%d", got.Seq, last.Seq)
	}
	if elapsed := time.Since(start); elapsed < 75*time.Millisecond {
		t.Fatalf("replaced job fired too early: %s", elapsed)
	}
	select {
	case extra := <-engine.C():
		t.Fatalf("unexpected extra job: %#v", extra)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestCancelDisarmsJob(t *testing.T) {
	engine := NewEngine(8)
	engine.Start()
	defer engine.Stop()

	if _, err := engine.Schedule("pull", 30*time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !engine.Pending("pull") {
		t.Fatal("expected pull pending")
	}
	if !engine.Cancel("pull") {
		t.Fatal("expected cancel to remove pending job")
	}
	if engine.Cancel("pull") {
		t.Fatal("second cancel should report nothing removed")
	}
	select {
	case job := <-engine.C():
		t.Fatalf("cancelled job fired: %#v", job)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestEngineNonBlockingDropsWhenConsumerIsSlow(t *testing.T) {
	engine := NewEngine(1)
	engine.Start()
	defer engine.Stop()

	at := time.Now().Add(20 * time.Millisecond)
	for i := 0; i < 25; i++ {
		if _, err := engine.ScheduleAt(string(rune('a'+i)), at); err != nil {
			t.Fatalf("schedule job: %v", err)
		}
	}

	time.Sleep(120 * time.Millisecond)
	if engine.Dropped() == 0 {
		t.Fatalf("expected dropped jobs > 0, got %d", engine.Dropped())
	}
}

func TestDropHandlerSeesDroppedJobs(t *testing.T) {
	engine := NewEngine(1)
	dropped := make(chan Job, 4)
	engine.SetDropHandler(func(job Job) { dropped <- job })
	engine.Start()
	defer engine.Stop()

	at := time.Now().Add(10 * time.Millisecond)
	first, err := engine.ScheduleAt("a", at)
	if err != nil {
		t.Fatalf("schedule a: %v", err)
	}
	second, err := engine.ScheduleAt("b", at)
	if err != nil {
		t.Fatalf("schedule b: %v", err)
	}

	select {
	case job := <-dropped:
		if job.Seq != first.Seq && job.Seq != second.Seq {
			t.Fatalf("unexpected dropped job: %#v", job)
		}
	case <-time.After(time.Second):
		t.Fatal("expected drop handler to run")
	}
	if engine.Dropped() != 1 {
		t.Fatalf("expected one dropped job, got %d", engine.Dropped())
	}
	job := <-engine.C()
	if job.Key != "a" && job.Key != "b" {
		t.Fatalf("unexpected delivered job: %#v", job)
	}
}

func TestScheduleValidatesInput(t *testing.T) {
	engine := NewEngine(1)
	if _, err := engine.ScheduleAt("bad", time.Time{}); err != ErrInvalidRunTime {
		t.Fatalf("expected ErrInvalidRunTime, got %v", err)
	}
	if _, err := engine.Schedule("", time.Second); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	engine.Stop()
	if _, err := engine.Schedule("late", time.Second); err != ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func waitJob(t *testing.T, ch <-chan Job, timeout time.Duration) Job {
	t.Helper()
	select {
	case job := <-ch:
		return job
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for job")
		return Job{}
	}
}
