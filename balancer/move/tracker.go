// Package move implements C5: submits asynchronous move requests to the
// external replication engine and tracks their outcomes under a deadline
// (spec §4.5).
package move

import (
	"context"
	"errors"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/container"
	"github.com/containerfleet/balancer/balancer/glog"
)

// ErrTransient wraps a ReplicationManager.Move error to signal the engine
// was momentarily unreachable (e.g. connection not yet established) rather
// than permanently rejecting the move. Submit retries these with a short
// bounded backoff before giving up and resolving Failed.
var ErrTransient = errors.New("move: transient submission error")

// key identifies one in-flight move for the tracker's idempotence
// guarantee (spec §4.5: at most one in-flight submission per
// (ContainerId, source, target)).
type key struct {
	container string
	source    string
	target    string
}

func keyFor(id container.ContainerId, source, target cluster.NodeId) key {
	return key{container: id.String(), source: source.UUID, target: target.UUID}
}

// Future is a handle to one move's eventual outcome. CorrelationID lets an
// operator join balancer logs with replication-engine logs for this move.
type Future struct {
	CorrelationID uuid.UUID
	Container     container.ContainerId
	Source        cluster.NodeId
	Target        cluster.NodeId

	mu       sync.Mutex
	done     bool
	result   container.MoveResult
	resultCh <-chan container.MoveResult
	cancel   func()
}

// Done reports whether the future has resolved.
func (f *Future) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Result returns the resolved outcome. Calling it before Done is true is
// a programming error and panics, matching the rest of this package's
// "the tracker owns resolution" discipline.
func (f *Future) Result() container.MoveResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.done {
		panic("move: Result called before future resolved")
	}
	return f.result
}

func (f *Future) resolve(result container.MoveResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return
	}
	f.done = true
	f.result = result
}

// Tracker submits moves to a ReplicationManager and collects their
// outcomes, enforcing at most one in-flight submission per
// (container, source, target).
type Tracker struct {
	repl container.ReplicationManager

	mu      sync.Mutex
	inFlight map[key]*Future
}

// New builds a Tracker bound to one replication engine.
func New(repl container.ReplicationManager) *Tracker {
	return &Tracker{repl: repl, inFlight: make(map[key]*Future)}
}

// Submit issues a move request. If the engine rejects it synchronously,
// the returned Future already resolves as Failed. If an identical move
// (container, source, target) is already in flight, the existing Future
// is returned instead of re-submitting (spec §4.5 idempotence).
func (t *Tracker) Submit(ctx context.Context, id container.ContainerId, source, target cluster.NodeId) *Future {
	k := keyFor(id, source, target)

	t.mu.Lock()
	if existing, ok := t.inFlight[k]; ok {
		t.mu.Unlock()
		glog.V(2).Infof("move: re-submission of %s %s->%s, returning existing future", id, source, target)
		return existing
	}
	t.mu.Unlock()

	future := &Future{
		CorrelationID: uuid.New(),
		Container:     id,
		Source:        source,
		Target:        target,
	}

	moveCtx, cancel := context.WithCancel(ctx)
	future.cancel = cancel

	resultCh, err := t.submitWithRetry(moveCtx, id, source, target)
	if err != nil {
		glog.Warningf("move %s: synchronous submission of %s %s->%s failed: %v", future.CorrelationID, id, source, target, err)
		future.resolve(container.MoveResult{Outcome: container.OutcomeFailed, Reason: err.Error()})
		cancel()
		// Per spec §9 (resolving the "resolved-exceptionally futures are
		// silently dropped" bug): store the future unconditionally, even
		// though it resolved synchronously, so callers can still observe
		// it through Await/outcome tallying.
		t.store(k, future)
		return future
	}

	future.resultCh = resultCh
	t.store(k, future)

	go t.awaitOne(k, future)

	return future
}

// submitWithRetry retries a handful of times, with a short exponential
// backoff, when the engine's synchronous submission path fails with
// ErrTransient. Anything else (container/node not found, placement
// rejection) fails fast.
func (t *Tracker) submitWithRetry(ctx context.Context, id container.ContainerId, source, target cluster.NodeId) (<-chan container.MoveResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.MaxElapsedTime = 500 * time.Millisecond

	var resultCh <-chan container.MoveResult
	err := backoff.Retry(func() error {
		ch, err := t.repl.Move(ctx, id, source, target)
		if err != nil {
			if errors.Is(err, ErrTransient) {
				return err
			}
			return backoff.Permanent(err)
		}
		resultCh = ch
		return nil
	}, backoff.WithContext(policy, ctx))

	return resultCh, err
}

func (t *Tracker) store(k key, f *Future) {
	t.mu.Lock()
	t.inFlight[k] = f
	t.mu.Unlock()
}

func (t *Tracker) awaitOne(k key, f *Future) {
	if f.resultCh != nil {
		if result, ok := <-f.resultCh; ok {
			f.resolve(result)
		}
	}
	t.mu.Lock()
	delete(t.inFlight, k)
	t.mu.Unlock()
}

// AwaitAll blocks until every future in futures resolves or deadline
// elapses, whichever comes first. On deadline, every still-unresolved
// future is cancelled and resolves as TimedOut (spec §4.5, §5).
func (t *Tracker) AwaitAll(ctx context.Context, futures []*Future, deadline time.Duration) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if allDone(futures) {
			return
		}
		select {
		case <-timer.C:
			t.cancelUnresolved(ctx, futures)
			return
		case <-ctx.Done():
			t.cancelUnresolved(ctx, futures)
			return
		case <-ticker.C:
		}
	}
}

func allDone(futures []*Future) bool {
	for _, f := range futures {
		if !f.Done() {
			return false
		}
	}
	return true
}

func (t *Tracker) cancelUnresolved(ctx context.Context, futures []*Future) {
	for _, f := range futures {
		if f.Done() {
			continue
		}
		glog.Warningf("move %s: %s %s->%s did not resolve before deadline, cancelling", f.CorrelationID, f.Container, f.Source, f.Target)
		if err := t.repl.Cancel(ctx, f.Container, f.Source, f.Target); err != nil {
			glog.Warningf("move %s: cancel request failed: %v", f.CorrelationID, err)
		}
		if f.cancel != nil {
			f.cancel()
		}
		f.resolve(container.MoveResult{Outcome: container.OutcomeTimedOut})
	}
}
