// Package target implements C4: given a source node and its candidate
// containers, picks a (container, target) pair respecting placement
// policy, topology, and bytes-entering caps (spec §4.4).
package target

import (
	"sort"

	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/container"
)

// Selection is the (container, target) pair FindTarget produces for a
// MoveSelection (spec §3).
type Selection struct {
	Container container.ContainerId
	Target    cluster.NodeId
}

// Strategy is the shared interface both FindTarget variants implement, so
// the iteration engine (C6) can be wired to either without branching on
// which one is configured.
type Strategy interface {
	// FindTargetForContainerMove returns a (container, target) pair for
	// source given its ordered candidate containers, or false if none of
	// them admit a valid target this iteration (spec §4.6.2: the engine
	// then retires the source).
	FindTargetForContainerMove(source cluster.NodeId, candidates []container.ContainerId) (Selection, bool)
}

// shared holds the state and constraint checks common to both variants
// (spec §4.4 constraints 1-5).
type shared struct {
	underUtilized       []cluster.NodeUsage
	upperLimit          float64
	maxSizeEnteringTarget int64
	bytesEntering        map[cluster.NodeId]int64
	containers           container.Manager
	placement             container.PlacementPolicy
}

func (s *shared) admits(targetUsage cluster.NodeUsage, info container.Info, source cluster.NodeId) bool {
	if isReplica(info.ReplicaSet, targetUsage.Node) {
		return false
	}
	projectedRemaining := targetUsage.Remaining - info.UsedBytes
	if projectedRemaining < 0 {
		projectedRemaining = 0
	}
	projectedUtil := float64(targetUsage.Capacity-projectedRemaining) / float64(targetUsage.Capacity)
	if projectedUtil > s.upperLimit {
		return false
	}
	if s.bytesEntering[targetUsage.Node]+info.UsedBytes > s.maxSizeEnteringTarget {
		return false
	}
	candidateSet := replaceReplica(info.ReplicaSet, source, targetUsage.Node)
	return s.placement.Validate(candidateSet)
}

func (s *shared) commit(targetUsage cluster.NodeUsage, info container.Info) {
	s.bytesEntering[targetUsage.Node] += info.UsedBytes
}

func isReplica(replicas []cluster.NodeId, id cluster.NodeId) bool {
	for _, r := range replicas {
		if r.Equal(id) {
			return true
		}
	}
	return false
}

// replaceReplica returns (replicaSet - {source}) U {target}, the
// candidate set the placement policy is asked to validate (spec §4.4
// constraint 5).
func replaceReplica(replicas []cluster.NodeId, source, target cluster.NodeId) []cluster.NodeId {
	out := make([]cluster.NodeId, 0, len(replicas)+1)
	for _, r := range replicas {
		if !r.Equal(source) {
			out = append(out, r)
		}
	}
	out = append(out, target)
	return out
}

// ByUsage iterates candidate containers in order, and for each, targets in
// ascending utilization order, picking the first that satisfies all
// constraints (spec §4.4: "by usage" variant).
type ByUsage struct {
	shared
}

// NewByUsage builds the by-usage FindTarget strategy. underUtilized must
// already be ordered least-used first (spec §4.6.2 step 5).
func NewByUsage(underUtilized []cluster.NodeUsage, upperLimit float64, maxSizeEnteringTarget int64, bytesEntering map[cluster.NodeId]int64, containers container.Manager, placement container.PlacementPolicy) *ByUsage {
	sorted := make([]cluster.NodeUsage, len(underUtilized))
	copy(sorted, underUtilized)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Utilization() != sorted[j].Utilization() {
			return sorted[i].Utilization() < sorted[j].Utilization()
		}
		return sorted[i].Node.UUID < sorted[j].Node.UUID
	})
	return &ByUsage{shared{
		underUtilized:         sorted,
		upperLimit:            upperLimit,
		maxSizeEnteringTarget: maxSizeEnteringTarget,
		bytesEntering:         bytesEntering,
		containers:            containers,
		placement:             placement,
	}}
}

func (b *ByUsage) FindTargetForContainerMove(source cluster.NodeId, candidates []container.ContainerId) (Selection, bool) {
	for _, cid := range candidates {
		info, err := b.containers.Get(cid)
		if err != nil {
			continue
		}
		for _, targetUsage := range b.underUtilized {
			if !b.admits(targetUsage, info, source) {
				continue
			}
			b.commit(targetUsage, info)
			return Selection{Container: cid, Target: targetUsage.Node}, true
		}
	}
	return Selection{}, false
}

// ByNetworkTopology prefers targets that are (a) on the same rack as an
// existing replica if any existing replica shares a rack with the source,
// else (b) the closest rack overall, keeping locality invariants the
// placement policy expects (spec §4.4: "by network topology" variant).
type ByNetworkTopology struct {
	shared
	topology container.NetworkTopology
}

func NewByNetworkTopology(underUtilized []cluster.NodeUsage, upperLimit float64, maxSizeEnteringTarget int64, bytesEntering map[cluster.NodeId]int64, containers container.Manager, placement container.PlacementPolicy, topology container.NetworkTopology) *ByNetworkTopology {
	return &ByNetworkTopology{
		shared: shared{
			underUtilized:         underUtilized,
			upperLimit:            upperLimit,
			maxSizeEnteringTarget: maxSizeEnteringTarget,
			bytesEntering:         bytesEntering,
			containers:            containers,
			placement:             placement,
		},
		topology: topology,
	}
}

func (b *ByNetworkTopology) FindTargetForContainerMove(source cluster.NodeId, candidates []container.ContainerId) (Selection, bool) {
	for _, cid := range candidates {
		info, err := b.containers.Get(cid)
		if err != nil {
			continue
		}

		ranked := b.rankByLocality(source, info)
		for _, targetUsage := range ranked {
			if !b.admits(targetUsage, info, source) {
				continue
			}
			b.commit(targetUsage, info)
			return Selection{Container: cid, Target: targetUsage.Node}, true
		}
	}
	return Selection{}, false
}

// rankByLocality orders underUtilized by: same-rack-as-an-existing-replica
// first (only when that replica also shares a rack with source), then by
// ascending rack distance to source, tie-broken by NodeId.
func (b *ByNetworkTopology) rankByLocality(source cluster.NodeId, info container.Info) []cluster.NodeUsage {
	sourceHasRackmate := false
	for _, r := range info.ReplicaSet {
		if b.topology.SameRack(source, r) {
			sourceHasRackmate = true
			break
		}
	}

	ranked := make([]cluster.NodeUsage, len(b.underUtilized))
	copy(ranked, b.underUtilized)

	sort.SliceStable(ranked, func(i, j int) bool {
		pi := b.localityScore(sourceHasRackmate, source, info, ranked[i].Node)
		pj := b.localityScore(sourceHasRackmate, source, info, ranked[j].Node)
		if pi != pj {
			return pi < pj
		}
		return ranked[i].Node.UUID < ranked[j].Node.UUID
	})
	return ranked
}

// localityScore: 0 is best. When the source has a same-rack replica, a
// target also on that replica's rack scores 0, everything else scores by
// rack distance shifted up by 1 so it never beats the same-rack match.
func (b *ByNetworkTopology) localityScore(sourceHasRackmate bool, source cluster.NodeId, info container.Info, target cluster.NodeId) int {
	if sourceHasRackmate {
		for _, r := range info.ReplicaSet {
			if b.topology.SameRack(source, r) && b.topology.SameRack(target, r) {
				return 0
			}
		}
		return b.topology.RackDistance(source, target) + 1
	}
	return b.topology.RackDistance(source, target)
}
