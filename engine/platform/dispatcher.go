package platform

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-rhi/engine/core"
)

// funcRun is a function to call on the command thread and an optional
// channel to signal once it returned.
type funcRun struct {
	f    func()
	done chan struct{}
}

// Dispatcher serializes actions onto a single OS thread, the command thread
// of a backend. Actions coming from the same goroutine run in the order they
// were submitted. Submitting never blocks: pending actions are kept in a
// list the loop drains in batches.
type Dispatcher struct {
	mu      sync.Mutex
	pending []funcRun
	spare   []funcRun
	closed  bool
	// wakes the loop when pending goes from empty to non-empty or on Shutdown.
	wake    chan struct{}
	started atomic.Bool
	// true while the loop runs, cleared before done is closed.
	running atomic.Bool
	// id of the command thread, 0 when no loop runs.
	tid  atomic.Uint64
	done chan struct{}
}

// NewDispatcher returns a stopped dispatcher. batchSize is the initial
// capacity of the pending list.
func NewDispatcher(batchSize int) *Dispatcher {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Dispatcher{
		pending: make([]funcRun, 0, batchSize),
		spare:   make([]funcRun, 0, batchSize),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start runs the command loop on a new goroutine locked to its own OS
// thread and returns once the loop is ready. The goroutine exits without
// unlocking, so the thread is terminated instead of going back to the
// scheduler.
func (d *Dispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	ready := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		d.enter()
		close(ready)
		d.loop()
	}()
	<-ready
}

// Run makes the calling thread the command thread and processes actions
// until Shutdown. Use it from the main goroutine when the window system
// requires its calls on the process main thread.
func (d *Dispatcher) Run() {
	if !d.started.CompareAndSwap(false, true) {
		core.LogWarn("dispatcher already running")
		return
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	d.enter()
	d.loop()
}

func (d *Dispatcher) enter() {
	d.tid.Store(currentThreadID())
	d.running.Store(true)
}

func (d *Dispatcher) loop() {
	defer func() {
		d.running.Store(false)
		d.tid.Store(0)
		close(d.done)
	}()
	for {
		d.mu.Lock()
		batch := d.pending
		closed := d.closed
		if len(batch) > 0 {
			// Submissions go to the spare buffer while batch runs.
			d.pending = d.spare[:0]
			d.spare = nil
		}
		d.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-d.wake
			continue
		}
		for i, run := range batch {
			d.execute(run.f)
			if run.done != nil {
				close(run.done)
			}
			batch[i] = funcRun{}
		}
		d.mu.Lock()
		d.spare = batch[:0]
		d.mu.Unlock()
	}
}

func (d *Dispatcher) execute(f func()) {
	defer func() {
		if r := recover(); r != nil {
			core.LogError("panic on command thread: %v", r)
		}
	}()
	f()
}

// OnDesignatedThread reports whether the caller runs on the command thread
// of a running loop. Where the platform cannot identify OS threads the
// goroutine id stands in for it, which is equivalent because the command
// goroutine is locked to its thread.
func (d *Dispatcher) OnDesignatedThread() bool {
	if !d.running.Load() {
		return false
	}
	tid := d.tid.Load()
	return tid != 0 && tid == currentThreadID()
}

// RunOnDesignatedThread enqueues f and returns without waiting for it.
// When already on the command thread f runs immediately.
func (d *Dispatcher) RunOnDesignatedThread(f func()) error {
	if d.OnDesignatedThread() {
		d.execute(f)
		return nil
	}
	return d.enqueue("RunOnDesignatedThread", funcRun{f: f})
}

// Call runs f on the command thread, waits for it and returns its error.
// A panic in f is turned into a FatalUsageError.
func (d *Dispatcher) Call(f func() error) error {
	var err error
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				err = core.NewFatalUsageError("Call", "panic on command thread: %v", r)
			}
		}()
		err = f()
	}
	if d.OnDesignatedThread() {
		wrapped()
		return err
	}
	done := make(chan struct{})
	if qerr := d.enqueue("Call", funcRun{f: wrapped, done: done}); qerr != nil {
		return qerr
	}
	<-done
	return err
}

func (d *Dispatcher) enqueue(op string, run funcRun) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return core.NewFatalUsageError(op, "dispatcher is shut down")
	}
	d.pending = append(d.pending, run)
	d.mu.Unlock()
	d.signal()
	return nil
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Shutdown stops accepting actions, runs the ones already submitted and
// waits for the loop to exit. Called from the command thread it does not
// wait, the loop exits once the current batch and the rest are done.
// Calling it again is safe and waits the same way.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	first := !d.closed
	d.closed = true
	d.mu.Unlock()
	if first {
		d.signal()
	}

	if d.started.Load() && !d.OnDesignatedThread() {
		<-d.done
	}
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("dispatcher(thread=%d)", d.tid.Load())
}
