// Package service implements C7: the balancer's start/stop lifecycle,
// leader/safe-mode gating, and the between-iteration worker loop (spec
// §4.7). The lifecycle transitions (Stopped<->Running plus the worker
// handle) are guarded by a single mutex, matching spec §5's "Shared-
// resource discipline"; counters live in balancer/stats as atomics via
// prometheus, and IterationState is thread-confined to the worker so it
// needs no lock of its own.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/containerfleet/balancer/balancer/config"
	"github.com/containerfleet/balancer/balancer/glog"
	"github.com/containerfleet/balancer/balancer/iteration"
	"github.com/containerfleet/balancer/balancer/scm"
)

// Service is the Container Balancer's lifecycle state machine (spec
// §4.7's Stopped<->Running diagram).
type Service struct {
	deps iteration.Deps
	cfg  config.Config
	ctx  scm.Context

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	worker   *sync.WaitGroup
	stoppedFromWorker bool

	// shouldRunFlag backs ShouldRun, which per spec §9's Open Question
	// always returns false in the source this codebase was distilled
	// from; start() only calls the worker if ShouldRun() passes, but
	// StartBalancer bypasses it entirely. Both paths are preserved
	// faithfully rather than "fixed" since intent is unclear (spec §9).
	shouldRunFlag bool
}

// New builds a Service around the given collaborators and config. It does
// not itself implement leader election or safe-mode tracking; ctx is
// queried for both (spec §9: pull interface).
func New(deps iteration.Deps, cfg config.Config, ctx scm.Context) *Service {
	return &Service{deps: deps, cfg: cfg, ctx: ctx}
}

// ShouldRun mirrors the spec's documented (if puzzling) predicate: in the
// implementation this was distilled from, it always returns false. Start
// honors it; StartBalancer does not (spec §9 Open Question, preserved
// verbatim rather than guessed at).
func (s *Service) ShouldRun() bool {
	return s.shouldRunFlag
}

// Start runs the balancer only if ShouldRun() passes, in addition to the
// leader/safe-mode/config checks StartBalancer always applies. This is
// the path spec §9 calls out as possibly intended for "start requires
// explicit operator action".
func (s *Service) Start(ctx context.Context) error {
	if !s.ShouldRun() {
		glog.V(1).Infof("service: ShouldRun() is false, not starting")
		return nil
	}
	return s.StartBalancer(ctx)
}

// StartBalancer starts the worker unconditionally (modulo the checks
// below), bypassing ShouldRun (spec §9 Open Question). It fails if
// already running, if the config is invalid, if this instance is not
// leader-ready, or if the cluster is in safe mode (spec §4.7, §7).
func (s *Service) StartBalancer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("service: balancer already running")
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("service: invalid configuration: %w", err)
	}
	if !s.ctx.IsLeaderReady() {
		return fmt.Errorf("service: not leader-ready")
	}
	if s.ctx.IsInSafeMode() {
		return fmt.Errorf("service: cluster is in safe mode")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.stoppedFromWorker = false

	wg := &sync.WaitGroup{}
	s.worker = wg
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.workerLoop(workerCtx)
	}()

	glog.Infof("service: balancer started")
	return nil
}

// IsRunning reports whether the worker loop is active. The iteration
// Engine polls this inside its matching loop so a mid-iteration stop
// request is observed promptly (spec §4.6.2 step 8, §5).
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StopBalancer is idempotent: calling it twice has the same observable
// effect as calling it once (spec §8 "Idempotence of stop"). It sets the
// run flag false, cancels the worker's context so any cancellable wait
// wakes up, and joins the worker — unless called from the worker itself,
// in which case joining would deadlock (spec §4.7).
func (s *Service) StopBalancer() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	wg := s.worker
	calledFromWorker := s.stoppedFromWorker
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wg != nil && !calledFromWorker {
		wg.Wait()
	}
}

// NotifyStatusChanged is the push half of the leader/safe-mode interface
// (spec §4.7, §9): the surrounding service manager calls this on every
// leader or safe-mode transition. If this instance is no longer leader or
// has entered safe mode, the balancer stops.
func (s *Service) NotifyStatusChanged() {
	if !s.ctx.IsLeader() || s.ctx.IsInSafeMode() {
		glog.Infof("service: leader/safe-mode status changed unfavorably, stopping balancer")
		s.StopBalancer()
	}
}

// workerLoop drives iterations until config.Iterations is exhausted, a
// precondition fails, or StopBalancer is called (spec §4.6.1, §4.7).
func (s *Service) workerLoop(ctx context.Context) {
	ran := 0
	for s.cfg.Iterations < 0 || ran < s.cfg.Iterations {
		if !s.IsRunning() {
			return
		}
		if !s.ctx.IsLeader() || s.ctx.IsInSafeMode() {
			glog.Infof("service: lost leadership or entered safe mode, stopping")
			s.stopFromWorker()
			return
		}

		engine := iteration.New(s.deps, s.cfg, s.IsRunning)
		result := engine.Run(ctx)
		ran++

		switch result {
		case iteration.ResultInterrupted:
			return
		case iteration.ResultCannotBalance:
			// No move was generated this iteration, so the cluster cannot be
			// balanced any further; stop rather than spin on empty/balanced
			// snapshots every BalancingInterval (spec §4.7's Running->Stopped
			// transition on CannotBalance).
			glog.Infof("service: iteration %d: cannot balance, stopping", ran)
			s.stopFromWorker()
			return
		case iteration.ResultCompleted:
			glog.V(1).Infof("service: iteration %d: completed", ran)
		}

		if !s.sleep(ctx, s.cfg.BalancingInterval) {
			return
		}
	}

	glog.Infof("service: completed configured %d iterations, stopping", s.cfg.Iterations)
	s.stopFromWorker()
}

// sleep is the cancellable between-iteration wait (spec §5 suspension
// point 2). It returns false if the context was cancelled first.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// stopFromWorker marks that StopBalancer was (or will be) invoked from
// inside the worker goroutine itself, so StopBalancer does not try to
// join a WaitGroup it is itself a member of.
func (s *Service) stopFromWorker() {
	s.mu.Lock()
	s.stoppedFromWorker = true
	s.running = false
	s.mu.Unlock()
}
