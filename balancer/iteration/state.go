// Package iteration implements C6: the control algorithm that orchestrates
// one balancer iteration — snapshot, classify, match, submit, await,
// record (spec §4.6).
package iteration

import (
	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/container"
	"github.com/containerfleet/balancer/balancer/move"
)

// Result is the outcome of one iteration (spec §4.6.2, §4.6.1).
type Result int

const (
	ResultCompleted Result = iota
	ResultCannotBalance
	ResultInterrupted
	ResultNotLeader
	ResultSafeMode
)

func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "Completed"
	case ResultCannotBalance:
		return "CannotBalance"
	case ResultInterrupted:
		return "Interrupted"
	case ResultNotLeader:
		return "NotLeader"
	case ResultSafeMode:
		return "SafeMode"
	default:
		return "Unknown"
	}
}

// State lives for exactly one iteration, owned exclusively by the Engine
// (spec §3 "Lifecycle", "Ownership"). C3/C4/C5 are handed slices of it by
// reference and never retain those references past their call.
type State struct {
	OverUtilized    []cluster.NodeUsage
	UnderUtilized   []cluster.NodeUsage
	WithinThreshold []cluster.NodeUsage

	UpperLimit float64
	LowerLimit float64

	SelectedContainers map[container.ContainerId]struct{}
	SourceToTarget     map[cluster.NodeId]Selection
	SelectedTargets    map[cluster.NodeId]struct{}
	BytesLeaving       map[cluster.NodeId]int64
	BytesEntering      map[cluster.NodeId]int64
	PendingMoves       map[Selection]*move.Future

	SizeMoved         int64
	DatanodesInvolved int
}

// Selection mirrors spec's MoveSelection: (ContainerId, target). It is
// also used as the pendingMoves map key, so it must be comparable — both
// fields already are.
type Selection struct {
	Container container.ContainerId
	Target    cluster.NodeId
}

func newState() *State {
	return &State{
		SelectedContainers: make(map[container.ContainerId]struct{}),
		SourceToTarget:      make(map[cluster.NodeId]Selection),
		SelectedTargets:     make(map[cluster.NodeId]struct{}),
		BytesLeaving:        make(map[cluster.NodeId]int64),
		BytesEntering:       make(map[cluster.NodeId]int64),
		PendingMoves:        make(map[Selection]*move.Future),
	}
}

// ratioToBytes implements spec §4.6.4: floor(capacity * ratio).
func ratioToBytes(capacity int64, ratio float64) int64 {
	return int64(float64(capacity) * ratio)
}

// bytesOverUpperLimit implements spec §4.6.4's "bytes over upper limit"
// calculation, clamped to zero: ratioToBytes(capacity, util) -
// ratioToBytes(capacity, upperLimit), which may go negative in corner
// cases and must be floored at zero before being summed into totals.
func bytesOverUpperLimit(u cluster.NodeUsage, upperLimit float64) int64 {
	over := ratioToBytes(u.Capacity, u.Utilization()) - ratioToBytes(u.Capacity, upperLimit)
	if over < 0 {
		return 0
	}
	return over
}

// bytesUnderLowerLimit mirrors bytesOverUpperLimit for the under-utilized
// side: ratioToBytes(capacity, lowerLimit) - ratioToBytes(capacity, util),
// clamped to zero.
func bytesUnderLowerLimit(u cluster.NodeUsage, lowerLimit float64) int64 {
	under := ratioToBytes(u.Capacity, lowerLimit) - ratioToBytes(u.Capacity, u.Utilization())
	if under < 0 {
		return 0
	}
	return under
}
