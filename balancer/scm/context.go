// Package scm models the cluster-manager conditions the balancer must
// observe before running an iteration: leadership and safe mode (spec
// §4.6.1, §6.1, §9). The relationship between the balancer service and
// its surrounding context is deliberately modeled as two one-way
// interfaces rather than mutual ownership: Context is a pull interface
// the service polls; StatusObserver is a push interface the context
// calls into on transitions. Neither side owns the other.
package scm

import (
	"strconv"

	"github.com/hashicorp/raft"
)

// Context is the pull interface the balancer service reads leader/safe-
// mode status from (spec §6.1: ctx.isLeader(), ctx.isLeaderReady(),
// ctx.isInSafeMode()).
type Context interface {
	// IsLeader reports whether this instance is currently the raft
	// leader. A leader may still not be "ready" immediately after
	// election; see IsLeaderReady.
	IsLeader() bool

	// IsLeaderReady reports whether this instance is leader AND has
	// completed whatever barrier/replay is required before it may
	// authoritatively write cluster state.
	IsLeaderReady() bool

	// IsInSafeMode reports whether the cluster currently forbids writes.
	IsInSafeMode() bool
}

// StatusObserver is the push interface a Context calls on every
// leader/safe-mode transition (spec §4.7: "notifyStatusChanged() is
// invoked by the surrounding service manager on leader/safe-mode
// transitions").
type StatusObserver interface {
	NotifyStatusChanged()
}

// RaftContext is a Context backed by hashicorp/raft, mirroring
// weed/topology.Topology.IsLeader's State()-based check but without that
// type's dual raft-implementation branching (this codebase only ever runs
// hashicorp/raft).
type RaftContext struct {
	raftNode *raft.Raft

	leaderReady func() bool
	safeMode    func() bool

	observers []StatusObserver
}

// NewRaftContext builds a Context around an already-running raft.Raft.
// leaderReady and safeMode are injected predicates so callers can compose
// this with whatever barrier/safe-mode bookkeeping their cluster manager
// already does.
func NewRaftContext(raftNode *raft.Raft, leaderReady func() bool, safeMode func() bool) *RaftContext {
	return &RaftContext{raftNode: raftNode, leaderReady: leaderReady, safeMode: safeMode}
}

func (c *RaftContext) IsLeader() bool {
	return c.raftNode != nil && c.raftNode.State() == raft.Leader
}

// LeaderTerm exposes the raft term this node last observed, purely for an
// informational log line when leadership changes; it does not gate any
// control-flow decision.
func (c *RaftContext) LeaderTerm() uint64 {
	if c.raftNode == nil {
		return 0
	}
	term, err := strconv.ParseUint(c.raftNode.Stats()["term"], 10, 64)
	if err != nil {
		return 0
	}
	return term
}

func (c *RaftContext) IsLeaderReady() bool {
	if !c.IsLeader() {
		return false
	}
	if c.leaderReady == nil {
		return true
	}
	return c.leaderReady()
}

func (c *RaftContext) IsInSafeMode() bool {
	if c.safeMode == nil {
		return false
	}
	return c.safeMode()
}

// AddObserver registers a StatusObserver to be notified whenever this
// context's caller detects a leader or safe-mode transition. Notification
// itself is driven by whatever polls raft state (e.g. a leaderCh watcher);
// this type only keeps the registry.
func (c *RaftContext) AddObserver(o StatusObserver) {
	c.observers = append(c.observers, o)
}

// NotifyAll pushes a status-changed notification to every registered
// observer. Called by whatever watches raftNode.LeaderCh() / safe-mode
// transitions in the surrounding process.
func (c *RaftContext) NotifyAll() {
	for _, o := range c.observers {
		o.NotifyStatusChanged()
	}
}
