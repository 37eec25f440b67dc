package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobFunc performs the work of one job. It should return promptly once ctx
// is done.
type JobFunc func(ctx context.Context, job Job) (FetchResult, error)

// CompletionLedger receives exactly one Outcome per accepted job.
type CompletionLedger interface {
	OnJobComplete(Outcome)
}

// Pool runs jobs on at most Capacity goroutines. Submit never blocks: when
// every slot is busy it fails with ErrPoolSaturated and the caller decides
// how to wait.
type Pool struct {
	slots   chan struct{}
	ledger  CompletionLedger
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool builds a pool with capacity slots. timeout bounds each job; zero
// means DefaultJobTimeout.
func NewPool(capacity int, ledger CompletionLedger, timeout time.Duration, logger *zap.Logger) (*Pool, error) {
	if capacity < 1 {
		return nil, &ConfigError{Field: "max_workers", Reason: "must be >= 1"}
	}
	if ledger == nil {
		return nil, errors.New("worker pool requires a completion ledger")
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		slots:   make(chan struct{}, capacity),
		ledger:  ledger,
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Submit starts fn for job on a free slot.
func (p *Pool) Submit(job Job, fn JobFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.slots <- struct{}{}:
	default:
		return ErrPoolSaturated
	}
	p.wg.Add(1)
	go p.run(job, fn)
	return nil
}

func (p *Pool) run(job Job, fn JobFunc) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	out := p.execute(ctx, job, fn)
	cancel()

	// Free the slot before reporting so the ledger never sees more active
	// jobs than the pool can hold.
	<-p.slots
	p.ledger.OnJobComplete(out)
}

func (p *Pool) execute(ctx context.Context, job Job, fn JobFunc) Outcome {
	target := job.Location.String()
	done := make(chan Outcome, 1)
	go func() {
		out := Outcome{Job: job}
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("job panicked", zap.String("url", target), zap.Any("panic", r))
				out.Err = &FetchError{Kind: FetchTransport, URL: target, Err: fmt.Errorf("panic: %v", r)}
				out.Result = FetchResult{}
			}
			done <- out
		}()
		out.Result, out.Err = fn(ctx, job)
	}()

	var out Outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = Outcome{Job: job, Err: ctx.Err()}
	}
	if out.Err == nil {
		return out
	}
	fe := ClassifyFetchError(target, out.Err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && fe.Kind != FetchTimeout {
		fe = &FetchError{Kind: FetchTimeout, URL: target, Err: out.Err}
	}
	out.Err = fe
	out.Result = FetchResult{}
	return out
}

// ActiveCount returns the number of occupied slots.
func (p *Pool) ActiveCount() int {
	return len(p.slots)
}

// Capacity returns the number of slots.
func (p *Pool) Capacity() int {
	return cap(p.slots)
}

// Shutdown stops accepting jobs and waits until every slot is free. Without
// drain, in-flight jobs are cancelled through their context first. It is
// safe to call more than once.
func (p *Pool) Shutdown(drain bool) {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if !drain {
		p.cancel()
	}
	p.wg.Wait()
	p.cancel()
}
