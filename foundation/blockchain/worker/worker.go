// Package worker implements the single writer for the blockchain. Every
// mutation of the chain is funneled through one goroutine so commits, nonce
// assignment and lock transitions are totally ordered.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
)

// job is a unit of work and the channel closed once it ran.
type job struct {
	fn   func()
	done chan struct{}
	err  error
}

// =============================================================================

// Worker manages the write workflows for the blockchain.
type Worker struct {
	state     *state.State
	wg        sync.WaitGroup
	ticker    *time.Ticker
	shut      chan struct{}
	jobs      chan *job
	evHandler state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, evHandler state.EventHandler) {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	w := Worker{
		state:     st,
		shut:      make(chan struct{}),
		jobs:      make(chan *job),
		evHandler: evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.writeOperations,
	}

	if bt := st.BlockTime(); bt > 0 {
		w.ticker = time.NewTicker(bt)
		operations = append(operations, w.miningOperations)
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work. A job that was already
// accepted finishes before Shutdown returns.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	if w.ticker != nil {
		w.evHandler("worker: shutdown: stop ticker")
		w.ticker.Stop()
	}

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// Do hands fn to the writer goroutine and waits for it to run. If ctx is done
// before the job is accepted, Do returns the context error and fn never runs.
// Once accepted, fn always runs to completion.
func (w *Worker) Do(ctx context.Context, fn func()) error {
	j := &job{
		fn:   fn,
		done: make(chan struct{}),
	}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.shut:
		return state.ErrShutdown
	}

	<-j.done

	return j.err
}

// =============================================================================

// writeOperations runs jobs one at a time in the order they were accepted.
func (w *Worker) writeOperations() {
	w.evHandler("worker: writeOperations: G started")
	defer w.evHandler("worker: writeOperations: G completed")

	for {
		select {
		case j := <-w.jobs:
			w.run(j)
		case <-w.shut:
			w.evHandler("worker: writeOperations: received shut signal")
			return
		}
	}
}

// run executes the job, recovering from a panic so the writer survives.
func (w *Worker) run(j *job) {
	defer close(j.done)

	defer func() {
		if r := recover(); r != nil {
			j.err = fmt.Errorf("worker: job panic: %v", r)
			w.evHandler("worker: run: PANIC: %s", fmt.Sprint(r))
		}
	}()

	j.fn()
}

// miningOperations mines an empty block on every tick of the block time.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation takes a slot on the writer to mine the pending block.
func (w *Worker) runMiningOperation() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	block, err := w.state.MineBlock(ctx)
	if err != nil {
		w.evHandler("worker: runMiningOperation: ERROR: %s", err)
		return
	}

	w.evHandler("worker: runMiningOperation: block[%d] mined", block.Number())
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
