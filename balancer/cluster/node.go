// Package cluster defines the node-side data model the balancer consumes
// from the node manager collaborator (spec §3, §6.1). This package does
// not itself collect usage data; it defines the shapes and the interface
// the balancer pulls them through.
package cluster

import "fmt"

// NodeId is an opaque, stable identifier for a data node. It additionally
// carries the hostname and IP used for include/exclude filtering.
type NodeId struct {
	UUID     string
	Hostname string
	IP       string
}

func (n NodeId) String() string {
	return fmt.Sprintf("%s(%s/%s)", n.UUID, n.Hostname, n.IP)
}

// Equal reports whether two NodeIds refer to the same node.
func (n NodeId) Equal(other NodeId) bool {
	return n.UUID == other.UUID
}

// NodeUsage is an immutable per-iteration view of a node's capacity/used/
// remaining bytes. capacity >= used >= 0, capacity >= remaining >= 0, and
// capacity >= used+remaining is allowed (the excess is reserved or
// unaccounted space, not an invariant violation).
type NodeUsage struct {
	Node      NodeId
	Capacity  int64
	Used      int64
	Remaining int64
}

// Utilization returns (capacity - remaining) / capacity, in [0, 1]. Callers
// must not call this on a NodeUsage with zero capacity.
func (u NodeUsage) Utilization() float64 {
	return float64(u.Capacity-u.Remaining) / float64(u.Capacity)
}

// NodeManager is the external collaborator that tracks cluster membership
// and per-node usage. The balancer core never mutates cluster membership;
// it only reads from this interface (spec §6.1).
type NodeManager interface {
	// MostUsedFirst returns all in-service, healthy nodes ranked by
	// descending utilization.
	MostUsedFirst() []NodeUsage

	// RefreshAllHealthyNodeUsage asks every healthy node to recompute its
	// disk usage. It does not wait for the recomputation to land; the
	// caller is responsible for waiting an appropriate interval before
	// re-snapshotting (spec §4.1).
	RefreshAllHealthyNodeUsage()

	// Exists reports whether a node is currently known to the cluster.
	Exists(id NodeId) bool
}
