package scheduler

import (
	"sync"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/common/app"
	"vincit.fi/image-viewer/common/logger"
)

type task struct {
	id   api.TaskId
	fn   func(id api.TaskId)
	done chan struct{}
}

// Scheduler is a single worker task runner with two priorities.
// Directory scans run here so the UI thread never touches the disk.
type Scheduler struct {
	context *app.Context

	mux       sync.Mutex
	nextId    api.TaskId
	critical  []*task
	normal    []*task
	cancelled map[api.TaskId]bool
	running   *task
	closed    bool
	wake      chan struct{}
	exited    chan struct{}

	api.Scheduler
}

func NewScheduler(context *app.Context) *Scheduler {
	s := &Scheduler{
		context:   context,
		nextId:    1,
		cancelled: map[api.TaskId]bool{},
		wake:      make(chan struct{}, 1),
		exited:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Scheduler) Schedule(priority api.TaskPriority, fn func(id api.TaskId)) api.TaskId {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return api.InvalidTaskId
	}
	queued := &task{
		id:   s.nextId,
		fn:   fn,
		done: make(chan struct{}),
	}
	s.nextId++
	if priority == api.TaskPriorityCritical {
		s.critical = append(s.critical, queued)
	} else {
		s.normal = append(s.normal, queued)
	}
	s.mux.Unlock()
	s.signal()
	return queued.id
}

// Cancel marks the task cancelled. A queued task is dropped; a
// running task observes IsTaskCancelled and exits on its own. With
// waitUntilCancelled the call blocks until the task is gone.
func (s *Scheduler) Cancel(id api.TaskId, waitUntilCancelled bool) {
	if id == api.InvalidTaskId {
		return
	}
	s.mux.Lock()
	s.cancelled[id] = true
	s.critical = removeTask(s.critical, id)
	s.normal = removeTask(s.normal, id)
	var running *task
	if s.running != nil && s.running.id == id {
		running = s.running
	}
	s.mux.Unlock()

	if waitUntilCancelled && running != nil {
		<-running.done
	}
}

func (s *Scheduler) IsTaskCancelled(id api.TaskId) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.cancelled[id] || s.closed || s.context.IsQuitting()
}

func (s *Scheduler) Close() {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return
	}
	s.closed = true
	s.critical = nil
	s.normal = nil
	s.mux.Unlock()
	s.signal()
	<-s.exited
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) pop() *task {
	s.mux.Lock()
	defer s.mux.Unlock()
	if len(s.critical) > 0 {
		next := s.critical[0]
		s.critical = s.critical[1:]
		s.running = next
		return next
	}
	if len(s.normal) > 0 {
		next := s.normal[0]
		s.normal = s.normal[1:]
		s.running = next
		return next
	}
	return nil
}

func (s *Scheduler) run() {
	defer close(s.exited)
	logger.Debug.Print("Scheduler started")

	for {
		s.mux.Lock()
		closed := s.closed || s.context.IsQuitting()
		s.mux.Unlock()
		if closed {
			logger.Debug.Print("Scheduler stopped")
			return
		}

		next := s.pop()
		if next == nil {
			<-s.wake
			continue
		}

		next.fn(next.id)

		s.mux.Lock()
		s.running = nil
		delete(s.cancelled, next.id)
		s.mux.Unlock()
		close(next.done)
	}
}

func removeTask(queue []*task, id api.TaskId) []*task {
	for i, queued := range queue {
		if queued.id == id {
			close(queued.done)
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}
