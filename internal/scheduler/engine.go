package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidRunTime = errors.New("scheduler: invalid run time")
	ErrEmptyKey       = errors.New("scheduler: job key is required")
	ErrStopped        = errors.New("scheduler: engine stopped")
)

// Job is a keyed one-shot timer. Scheduling a key that is already pending
// replaces the earlier job, so at most one job per key is ever armed.
type Job struct {
	Key   string
	Seq   uint64
	RunAt time.Time
}

type queueItem struct {
	job   Job
	index int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].job.RunAt.Before(pq[j].job.RunAt)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

type Engine struct {
	mu      sync.Mutex
	queue   priorityQueue
	byKey   map[string]*queueItem
	seq     uint64
	out     chan Job
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	dropped uint64
	onDrop  func(Job)
}

func NewEngine(bufferSize int) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Engine{
		queue:  make(priorityQueue, 0),
		byKey:  make(map[string]*queueItem),
		out:    make(chan Job, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// C delivers due jobs. It is closed when the engine stops.
func (e *Engine) C() <-chan Job {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	heap.Init(&e.queue)
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

// Schedule arms key to fire after delay, replacing any pending job with the
// same key. The returned job carries a sequence number unique to this call.
func (e *Engine) Schedule(key string, delay time.Duration) (Job, error) {
	if delay < 0 {
		delay = 0
	}
	return e.ScheduleAt(key, time.Now().Add(delay))
}

func (e *Engine) ScheduleAt(key string, at time.Time) (Job, error) {
	if key == "" {
		return Job{}, ErrEmptyKey
	}
	if at.IsZero() {
		return Job{}, ErrInvalidRunTime
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return Job{}, ErrStopped
	}

	e.seq++
	job := Job{Key: key, Seq: e.seq, RunAt: at}
	if existing, ok := e.byKey[key]; ok {
		existing.job = job
		heap.Fix(&e.queue, existing.index)
	} else {
		item := &queueItem{job: job}
		heap.Push(&e.queue, item)
		e.byKey[key] = item
	}
	e.signalWakeup()
	return job, nil
}

// Cancel disarms key. It reports whether a pending job was removed.
func (e *Engine) Cancel(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&e.queue, item.index)
	delete(e.byKey, key)
	e.signalWakeup()
	return true
}

// Pending reports whether key is armed and not yet fired.
func (e *Engine) Pending(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.byKey[key]
	return ok
}

func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

// SetDropHandler registers fn to run on the engine goroutine for every job
// that fired while C was full. fn may call Schedule.
func (e *Engine) SetDropHandler(fn func(Job)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDrop = fn
}

func (e *Engine) dropHandler() func(Job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onDrop
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		next, hasNext := e.peek()
		if !hasNext {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				return
			}
		}

		wait := time.Until(next.RunAt)
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			due := e.popDue(time.Now())
			for _, job := range due {
				select {
				case e.out <- job:
				default:
					atomic.AddUint64(&e.dropped, 1)
					if fn := e.dropHandler(); fn != nil {
						fn(job)
					}
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			if timer != nil {
				stopTimer(timer)
			}
			return
		}
	}
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) peek() (Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return Job{}, false
	}
	return e.queue[0].job, true
}

func (e *Engine) popDue(now time.Time) []Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Job, 0)
	for len(e.queue) > 0 {
		next := e.queue[0].job
		if next.RunAt.After(now) {
			break
		}
		item := heap.Pop(&e.queue).(*queueItem)
		delete(e.byKey, item.job.Key)
		out = append(out, item.job)
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
