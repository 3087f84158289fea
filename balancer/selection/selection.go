// Package selection implements C2: given a source node, yields the
// ordered set of containers eligible to be moved off it (spec §4.2).
package selection

import (
	"sort"

	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/container"
)

// Criteria decides, per source node, which containers are eligible to
// move this iteration.
type Criteria struct {
	Containers   container.Manager
	Replication  container.ReplicationManager
	Selected     map[container.ContainerId]struct{}
}

// New builds a Criteria sharing the iteration's selectedContainers set, so
// a container chosen for one source in this iteration is never offered
// again for another source in the same iteration.
func New(containers container.Manager, repl container.ReplicationManager, selected map[container.ContainerId]struct{}) *Criteria {
	return &Criteria{Containers: containers, Replication: repl, Selected: selected}
}

// CandidateContainers returns containers on source eligible for a move,
// ordered by descending UsedBytes and tie-broken by ContainerId (spec
// §4.2: larger moves make faster progress against per-iteration caps).
func (c *Criteria) CandidateContainers(source cluster.NodeId) []container.ContainerId {
	ids := c.Containers.ContainersOn(source)
	var infos []container.Info

	for _, id := range ids {
		if _, already := c.Selected[id]; already {
			continue
		}
		info, err := c.Containers.Get(id)
		if err != nil {
			continue
		}
		if !c.eligible(info) {
			continue
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].UsedBytes != infos[j].UsedBytes {
			return infos[i].UsedBytes > infos[j].UsedBytes
		}
		return infos[i].Id.Less(infos[j].Id)
	})

	out := make([]container.ContainerId, len(infos))
	for i, info := range infos {
		out[i] = info.Id
	}
	return out
}

func (c *Criteria) eligible(info container.Info) bool {
	if !info.State.Movable() {
		return false
	}
	if c.Replication.HasInflightOperation(info.Id) {
		return false
	}
	if len(info.ReplicaSet) != info.ReplicationFactor {
		return false
	}
	return true
}
