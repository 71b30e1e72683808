// Package scheduler is an in-process alarm service: a heap of wake-up times
// drained by one timer goroutine. Each alarm is keyed by GUID, so arming a
// GUID again moves its alarm instead of adding a second one.
package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidFireTime = errors.New("scheduler: invalid fire time")
	ErrMissingGUID     = errors.New("scheduler: alarm guid is required")
	ErrEngineStopped   = errors.New("scheduler: engine stopped")
)

// Alarm is one pending wake-up. Code and Action are passed through to the
// consumer untouched.
type Alarm struct {
	GUID   string
	Code   int
	Action string
	FireAt time.Time
}

type queueItem struct {
	alarm Alarm
	index int
}

type alarmQueue []*queueItem

func (q alarmQueue) Len() int { return len(q) }

func (q alarmQueue) Less(i, j int) bool {
	if q[i].alarm.FireAt.Equal(q[j].alarm.FireAt) {
		return q[i].alarm.Code < q[j].alarm.Code
	}
	return q[i].alarm.FireAt.Before(q[j].alarm.FireAt)
}

func (q alarmQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *alarmQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *alarmQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[0 : n-1]
	return item
}

type Engine struct {
	mu      sync.Mutex
	queue   alarmQueue
	byGUID  map[string]*queueItem
	out     chan Alarm
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	dropped uint64
}

func NewEngine(bufferSize int) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Engine{
		queue:  make(alarmQueue, 0),
		byGUID: make(map[string]*queueItem),
		out:    make(chan Alarm, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// C delivers due alarms. It is closed after Stop.
func (e *Engine) C() <-chan Alarm {
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
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

// Schedule arms the alarm, replacing any pending alarm with the same GUID.
func (e *Engine) Schedule(a Alarm) error {
	if a.GUID == "" {
		return ErrMissingGUID
	}
	if a.FireAt.IsZero() {
		return ErrInvalidFireTime
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}

	if item, ok := e.byGUID[a.GUID]; ok {
		item.alarm = a
		heap.Fix(&e.queue, item.index)
	} else {
		item := &queueItem{alarm: a}
		heap.Push(&e.queue, item)
		e.byGUID[a.GUID] = item
	}
	e.signalWakeup()
	return nil
}

// Cancel disarms the alarm for guid. It reports whether one was pending.
func (e *Engine) Cancel(guid string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.byGUID[guid]
	if !ok {
		return false
	}
	heap.Remove(&e.queue, item.index)
	delete(e.byGUID, guid)
	e.signalWakeup()
	return true
}

// Pending returns the armed alarm for guid.
func (e *Engine) Pending(guid string) (Alarm, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.byGUID[guid]
	if !ok {
		return Alarm{}, false
	}
	return item.alarm, true
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Dropped counts alarms discarded because C was full.
func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
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

		wait := max(time.Until(next.FireAt), 0)
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			for _, a := range e.popDue(time.Now()) {
				select {
				case e.out <- a:
				default:
					atomic.AddUint64(&e.dropped, 1)
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			stopTimer(timer)
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

func (e *Engine) peek() (Alarm, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return Alarm{}, false
	}
	return e.queue[0].alarm, true
}

func (e *Engine) popDue(now time.Time) []Alarm {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Alarm, 0)
	for len(e.queue) > 0 {
		if e.queue[0].alarm.FireAt.After(now) {
			break
		}
		item := heap.Pop(&e.queue).(*queueItem)
		delete(e.byGUID, item.alarm.GUID)
		out = append(out, item.alarm)
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
