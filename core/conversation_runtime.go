package orchestration

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const conversationJobQueueCapacity = 64

// conversationRuntime is the single goroutine that owns conversation state.
// Recognizer callbacks, timers, transport messages and async continuations
// are posted here as jobs and run one at a time.
type conversationRuntime struct {
	queue   chan conversationJob
	closeCh chan struct{}
	done    chan struct{}

	// afterJob runs on the loop after every job.
	afterJob func()

	startOnce sync.Once
	endOnce   sync.Once

	started atomic.Bool
}

func newConversationRuntime() *conversationRuntime {
	return &conversationRuntime{
		queue:    make(chan conversationJob, conversationJobQueueCapacity),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
		afterJob: func() {},
	}
}

// conversationJob is one unit of loop work. applied, when set, is closed
// once the job and the afterJob hook have both run.
type conversationJob struct {
	run     func()
	applied chan struct{}
}

func (runtime *conversationRuntime) start() (started bool) {
	if runtime.isClosed() {
		return false
	}

	runtime.startOnce.Do(func() {
		started = true
		runtime.started.Store(true)
		go func() {
			defer close(runtime.done)

			for {
				select {
				case <-runtime.closeCh:
					return
				case job := <-runtime.queue:
					runtime.run(job)
				}
			}
		}()
	})

	return started
}

func (runtime *conversationRuntime) run(job conversationJob) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("conversation job panicked", "error", fmt.Sprint(recovered))
		}
		if job.applied != nil {
			close(job.applied)
		}
	}()

	job.run()
	runtime.afterJob()
}

func (runtime *conversationRuntime) end() {
	runtime.endOnce.Do(func() {
		close(runtime.closeCh)
	})
}

func (runtime *conversationRuntime) waitUntilEnded() {
	if runtime.started.Load() {
		<-runtime.done
	}
}

// post queues job without waiting for it. It never blocks on the job
// itself, only on queue capacity, so it is safe to call from callbacks that
// the loop may be waiting on.
func (runtime *conversationRuntime) post(job func()) bool {
	return runtime.enqueue(conversationJob{run: job})
}

func (runtime *conversationRuntime) enqueue(job conversationJob) bool {
	if runtime.isClosed() {
		return false
	}

	select {
	case <-runtime.closeCh:
		return false
	case runtime.queue <- job:
		return true
	}
}

// do runs job on the loop and waits until it has been applied and
// published. It reports false when the loop ended before running job. It
// must not be called from the loop itself.
func (runtime *conversationRuntime) do(job func()) bool {
	applied := make(chan struct{})
	if !runtime.enqueue(conversationJob{run: job, applied: applied}) {
		return false
	}

	select {
	case <-applied:
		return true
	case <-runtime.done:
		// The loop may have run the job right before it ended.
		select {
		case <-applied:
			return true
		default:
			return false
		}
	}
}

// schedule posts job after delay. The returned timer cancels it; jobs must
// still check their own liveness because a timer can fire concurrently with
// Stop.
func (runtime *conversationRuntime) schedule(delay time.Duration, job func()) *time.Timer {
	return time.AfterFunc(delay, func() { runtime.post(job) })
}

func (runtime *conversationRuntime) isClosed() bool {
	select {
	case <-runtime.closeCh:
		return true
	default:
		return false
	}
}
