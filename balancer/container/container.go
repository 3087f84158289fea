// Package container defines the container-side data model (spec §3) and
// the external collaborator interfaces the balancer reads from: the
// container manager, the replication manager, the placement policy, and
// the network topology model (spec §6.1).
package container

import (
	"context"
	"fmt"

	"github.com/containerfleet/balancer/balancer/cluster"
)

// ContainerId is an opaque, stable identifier for a container: a
// fixed-maximum-size unit of storage replicated across some set of nodes.
type ContainerId struct {
	value string
}

func NewContainerId(value string) ContainerId {
	return ContainerId{value: value}
}

func (c ContainerId) String() string {
	return c.value
}

// Less gives ContainerId a total order, used to tie-break candidate
// ordering in selection (spec §4.2).
func (c ContainerId) Less(other ContainerId) bool {
	return c.value < other.value
}

// State is the lifecycle state of a container. Only Closed and Quasi-Closed
// ("sealed") containers are eligible for a balancer move; an Open
// container is still accepting writes and must not be relocated.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
	StateQuasiClosed
	StateDeleting
	StateDeleted
)

// Movable reports whether a container in this state may be selected as a
// balancer move candidate (spec §4.2 criterion 1).
func (s State) Movable() bool {
	return s == StateClosed || s == StateQuasiClosed
}

// Info is the immutable-for-the-iteration view of one container (spec §3).
// UsedBytes is treated as fixed for the duration of an iteration even if
// the container is concurrently being written elsewhere in the cluster.
type Info struct {
	Id                ContainerId
	UsedBytes         int64
	ReplicaSet        []cluster.NodeId
	State             State
	ReplicationFactor int
}

// ErrNotFound is returned by ContainerManager.Get when a container id is
// unknown, e.g. because it was deleted between snapshot and selection.
var ErrNotFound = fmt.Errorf("container not found")

// Manager is the external collaborator holding authoritative container
// metadata (spec §6.1).
type Manager interface {
	// Get returns container metadata, or ErrNotFound.
	Get(id ContainerId) (Info, error)

	// ContainersOn returns every container with a replica on the given
	// node, in no particular order; FindSource/selection impose ordering.
	ContainersOn(node cluster.NodeId) []ContainerId
}

// MoveOutcome is the tagged result of one asynchronous move (spec §3).
type MoveOutcome int

const (
	OutcomeCompleted MoveOutcome = iota
	OutcomeFailed
	OutcomeTimedOut
	OutcomeCancelled
	OutcomeReplaced
	OutcomePlacementInvalid
)

func (o MoveOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "Completed"
	case OutcomeFailed:
		return "Failed"
	case OutcomeTimedOut:
		return "TimedOut"
	case OutcomeCancelled:
		return "Cancelled"
	case OutcomeReplaced:
		return "Replaced"
	case OutcomePlacementInvalid:
		return "PlacementInvalid"
	default:
		return "Unknown"
	}
}

// MoveResult carries the outcome plus, for Failed, a human-readable reason.
type MoveResult struct {
	Outcome MoveOutcome
	Reason  string
}

// ReplicationManager is the external replication engine that actually
// performs container moves. It is out of scope per spec §1; this is the
// seam the balancer core calls through (spec §6.1).
type ReplicationManager interface {
	// Move asynchronously starts moving one replica of a container from
	// source to target. The returned channel receives exactly one
	// MoveResult. If the engine rejects the request synchronously (e.g.
	// container or node not found), Move returns a non-nil error and no
	// channel; the move tracker turns that into a Future already resolved
	// as Failed.
	Move(ctx context.Context, id ContainerId, source, target cluster.NodeId) (<-chan MoveResult, error)

	// Cancel asks the engine to cancel an in-flight move. Cancellation is
	// cooperative: whether the physical move actually stops is the
	// engine's concern (spec §4.5, §5).
	Cancel(ctx context.Context, id ContainerId, source, target cluster.NodeId) error

	// HasInflightOperation reports whether the engine already has an
	// operation (any kind, not just a balancer move) in flight against
	// this container, used by selection criterion 3 (spec §4.2).
	HasInflightOperation(id ContainerId) bool
}

// PlacementPolicy validates a candidate replica set, e.g. enforcing rack
// or datacenter spread requirements (spec §6.1).
type PlacementPolicy interface {
	Validate(replicaSet []cluster.NodeId) bool
}

// NetworkTopology exposes rack-awareness queries used by the
// by-network-topology FindTarget variant (spec §4.4, §6.1).
type NetworkTopology interface {
	SameRack(a, b cluster.NodeId) bool
	RackDistance(a, b cluster.NodeId) int
}
