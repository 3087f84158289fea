// Package testutil provides small in-memory fakes of the balancer's
// external collaborators (spec §6.1), used across this repo's tests
// instead of a mocking framework — mirroring how
// weed/admin/topology/storage_slot_test.go builds plain struct fixtures
// rather than generated mocks.
package testutil

import (
	"context"
	"sync"

	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/container"
)

// NodeManager is an in-memory cluster.NodeManager.
type NodeManager struct {
	Usages         []cluster.NodeUsage
	RefreshedCount int
	Unavailable    bool
}

func (n *NodeManager) MostUsedFirst() []cluster.NodeUsage {
	if n.Unavailable {
		return nil
	}
	out := make([]cluster.NodeUsage, len(n.Usages))
	copy(out, n.Usages)
	return out
}

func (n *NodeManager) RefreshAllHealthyNodeUsage() {
	n.RefreshedCount++
}

func (n *NodeManager) Exists(id cluster.NodeId) bool {
	for _, u := range n.Usages {
		if u.Node.Equal(id) {
			return true
		}
	}
	return false
}

// ContainerManager is an in-memory container.Manager.
type ContainerManager struct {
	mu         sync.Mutex
	Containers map[string]container.Info
}

func NewContainerManager() *ContainerManager {
	return &ContainerManager{Containers: make(map[string]container.Info)}
}

func (c *ContainerManager) Put(info container.Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Containers[info.Id.String()] = info
}

func (c *ContainerManager) Get(id container.ContainerId) (container.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.Containers[id.String()]
	if !ok {
		return container.Info{}, container.ErrNotFound
	}
	return info, nil
}

func (c *ContainerManager) ContainersOn(node cluster.NodeId) []container.ContainerId {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []container.ContainerId
	for _, info := range c.Containers {
		for _, r := range info.ReplicaSet {
			if r.Equal(node) {
				out = append(out, info.Id)
				break
			}
		}
	}
	return out
}

// ReplicationManager is an in-memory, configurable container.ReplicationManager.
type ReplicationManager struct {
	mu        sync.Mutex
	Inflight  map[string]bool
	Reject    map[string]string // containerId -> rejection reason
	Delay     map[string]bool   // moves that never resolve until explicitly resolved
	Resolved  map[string]container.MoveResult
	pending   map[string]chan container.MoveResult
	Cancelled []string
}

func NewReplicationManager() *ReplicationManager {
	return &ReplicationManager{
		Inflight: make(map[string]bool),
		Reject:   make(map[string]string),
		Delay:    make(map[string]bool),
		Resolved: make(map[string]container.MoveResult),
		pending:  make(map[string]chan container.MoveResult),
	}
}

func (r *ReplicationManager) HasInflightOperation(id container.ContainerId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Inflight[id.String()]
}

func (r *ReplicationManager) Move(ctx context.Context, id container.ContainerId, source, target cluster.NodeId) (<-chan container.MoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reason, rejected := r.Reject[id.String()]; rejected {
		return nil, &rejectError{reason}
	}

	ch := make(chan container.MoveResult, 1)
	key := id.String() + "/" + source.UUID + "/" + target.UUID
	r.pending[key] = ch

	if r.Delay[id.String()] {
		return ch, nil
	}

	result, ok := r.Resolved[id.String()]
	if !ok {
		result = container.MoveResult{Outcome: container.OutcomeCompleted}
	}
	ch <- result
	return ch, nil
}

// Resolve manually resolves a move that was registered with Delay set,
// simulating the replication engine completing work asynchronously.
func (r *ReplicationManager) Resolve(id container.ContainerId, source, target cluster.NodeId, result container.MoveResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := id.String() + "/" + source.UUID + "/" + target.UUID
	if ch, ok := r.pending[key]; ok {
		ch <- result
	}
}

func (r *ReplicationManager) Cancel(ctx context.Context, id container.ContainerId, source, target cluster.NodeId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cancelled = append(r.Cancelled, id.String())
	return nil
}

type rejectError struct{ reason string }

func (e *rejectError) Error() string { return e.reason }

// PlacementPolicy always accepts unless a specific replica set is denied.
type PlacementPolicy struct {
	DenyIfContains cluster.NodeId
	denyEnabled    bool
}

func (p *PlacementPolicy) Deny(node cluster.NodeId) {
	p.DenyIfContains = node
	p.denyEnabled = true
}

func (p *PlacementPolicy) Validate(replicaSet []cluster.NodeId) bool {
	if !p.denyEnabled {
		return true
	}
	for _, n := range replicaSet {
		if n.Equal(p.DenyIfContains) {
			return false
		}
	}
	return true
}

// NetworkTopology is a simple rack map: node UUID -> rack name.
type NetworkTopology struct {
	Rack map[string]string
}

func NewNetworkTopology() *NetworkTopology {
	return &NetworkTopology{Rack: make(map[string]string)}
}

func (t *NetworkTopology) SameRack(a, b cluster.NodeId) bool {
	return t.Rack[a.UUID] != "" && t.Rack[a.UUID] == t.Rack[b.UUID]
}

func (t *NetworkTopology) RackDistance(a, b cluster.NodeId) int {
	if t.SameRack(a, b) {
		return 0
	}
	return 1
}
