package orchestrator

import (
	"context"
	"sync"
	"time"
)

// Processor handles one raw inbound update.
type Processor interface {
	Process(ctx context.Context, data []byte)
}

// Pool runs Process calls concurrently with an upper bound on messages in
// flight. Submit blocks while the pool is full, which pushes back on the
// subscription.
type Pool struct {
	proc Processor
	sem  chan struct{}
	wg   sync.WaitGroup
}

// NewPool creates a Pool allowing max concurrent messages (at least 1).
func NewPool(proc Processor, max int) *Pool {
	if max < 1 {
		max = 1
	}
	return &Pool{proc: proc, sem: make(chan struct{}, max)}
}

// Submit schedules data for processing. It returns false without scheduling
// when ctx is done before a slot frees up.
func (p *Pool) Submit(ctx context.Context, data []byte) bool {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	// The payload buffer may be reused by the caller.
	buf := make([]byte, len(data))
	copy(buf, data)

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		p.proc.Process(ctx, buf)
	}()
	return true
}

// Drain waits for in-flight messages. It reports false if timeout elapsed
// first.
func (p *Pool) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
