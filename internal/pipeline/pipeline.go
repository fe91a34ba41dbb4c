// Package pipeline implements the bounded concurrent fetch-and-persist pool
// executed during a task's capture phase.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kingotools/capture/internal/capture"
	"github.com/kingotools/capture/internal/metrics"
	"github.com/kingotools/capture/internal/transport"
)

// Request is one queued fetch: a form POST answering a single work item.
type Request struct {
	Item    capture.WorkItem
	URL     string
	Form    map[string]string
	Headers map[string]string
}

// Handler consumes one successful fetch, typically parsing the page and
// persisting an artifact. A handler error fails only that item, never the
// pool.
type Handler func(ctx context.Context, item capture.WorkItem, resp *transport.Response) error

// Config controls pool behavior.
//   - TaskID: owning task, used for logging.
//   - Threads: worker count (default 1).
//   - BaseContext: parent context for resumed rounds (default Background).
//   - OnComplete: invoked once the queue fully drains, from any round.
//   - OnItemError: invoked per failed item after it is counted and logged.
type Config struct {
	TaskID      string
	Threads     int
	BaseContext context.Context
	OnComplete  func()
	OnItemError func(item capture.WorkItem, err error)
}

// Pool runs up to Threads concurrent fetches over a fixed request queue.
// Stop is cooperative: dispatched items run to completion and workers stop
// pulling. Start resumes draining the same queue with the same worker count.
type Pool struct {
	cfg     Config
	client  *transport.Client
	handler Handler
	logger  *zap.Logger

	mu      sync.Mutex
	queue   []Request
	next    int
	state   capture.RuntimeState
	stopped bool

	succeeded atomic.Int64
	failed    atomic.Int64
}

// New builds a Pool over a fixed request queue. The pool does not begin
// draining until Run is called, so it can be registered first.
func New(cfg Config, client *transport.Client, requests []Request, handler Handler, logger *zap.Logger) *Pool {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:     cfg,
		client:  client,
		handler: handler,
		logger:  logger,
		queue:   requests,
		state:   capture.RuntimeStopped,
	}
}

// Run executes the queue until drained or stopped, blocking the caller.
// A stop issued before Run wins: the round ends without dispatching work.
func (p *Pool) Run(ctx context.Context) {
	if !p.begin(false) {
		return
	}
	p.drain(ctx)
}

// State reports the current execution state.
func (p *Pool) State() capture.RuntimeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stop signals workers to stop pulling queued items. In-flight items finish
// normally; the state transitions to Stopped once they have.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// Start resumes draining the remaining queue asynchronously, reusing the
// configured worker count. It fails if a round is already running.
func (p *Pool) Start() error {
	if !p.begin(true) {
		return capture.ErrRuntimeRunning
	}
	go p.drain(p.cfg.BaseContext)
	return nil
}

// Snapshot returns the live counters for monitoring.
func (p *Pool) Snapshot() capture.RuntimeSnapshot {
	p.mu.Lock()
	queued := len(p.queue) - p.next
	state := p.state
	p.mu.Unlock()
	return capture.RuntimeSnapshot{
		State:     state,
		Queued:    queued,
		Succeeded: int(p.succeeded.Load()),
		Failed:    int(p.failed.Load()),
	}
}

// begin transitions the pool into a running round. A pending stop blocks a
// plain Run but is cleared by an operator resume.
func (p *Pool) begin(resume bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == capture.RuntimeRunning {
		return false
	}
	if p.stopped && !resume {
		return false
	}
	p.stopped = false
	p.state = capture.RuntimeRunning
	return true
}

func (p *Pool) drain(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}
	wg.Wait()

	p.mu.Lock()
	p.state = capture.RuntimeStopped
	completed := p.next >= len(p.queue)
	p.mu.Unlock()

	if completed && p.cfg.OnComplete != nil {
		p.cfg.OnComplete()
	}
}

func (p *Pool) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		req, ok := p.take()
		if !ok {
			return
		}
		p.process(ctx, req)
	}
}

// take hands out the next queued request, or reports that the worker should
// exit. The stop flag is checked here, between queue pulls.
func (p *Pool) take() (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.next >= len(p.queue) {
		return Request{}, false
	}
	req := p.queue[p.next]
	p.next++
	return req, true
}

func (p *Pool) process(ctx context.Context, req Request) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	resp, err := p.client.PostForm(ctx, req.URL, req.Form, req.Headers)
	if err != nil {
		p.fail(req.Item, err)
		return
	}
	if err := p.handler(ctx, req.Item, resp); err != nil {
		p.fail(req.Item, err)
		return
	}
	p.succeeded.Add(1)
	metrics.ObservePage("succeeded")
	p.logger.Debug("work item captured",
		zap.String("task_id", p.cfg.TaskID),
		zap.String("item", req.Item.Code),
	)
}

func (p *Pool) fail(item capture.WorkItem, err error) {
	p.failed.Add(1)
	metrics.ObservePage("failed")
	p.logger.Warn("work item failed",
		zap.String("task_id", p.cfg.TaskID),
		zap.String("item", item.Code),
		zap.Error(err),
	)
	if p.cfg.OnItemError != nil {
		p.cfg.OnItemError(item, err)
	}
}
