package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/container"
	"github.com/containerfleet/balancer/balancer/testutil"
)

func node(id string) cluster.NodeId {
	return cluster.NodeId{UUID: id, Hostname: id, IP: "10.0.0." + id}
}

func TestCandidateContainersOrdersByDescendingSizeThenId(t *testing.T) {
	containers := testutil.NewContainerManager()
	repl := testutil.NewReplicationManager()
	src := node("1")

	containers.Put(container.Info{Id: container.NewContainerId("b"), UsedBytes: 100, ReplicaSet: []cluster.NodeId{src}, State: container.StateClosed, ReplicationFactor: 1})
	containers.Put(container.Info{Id: container.NewContainerId("a"), UsedBytes: 100, ReplicaSet: []cluster.NodeId{src}, State: container.StateClosed, ReplicationFactor: 1})
	containers.Put(container.Info{Id: container.NewContainerId("c"), UsedBytes: 50, ReplicaSet: []cluster.NodeId{src}, State: container.StateClosed, ReplicationFactor: 1})

	crit := New(containers, repl, make(map[container.ContainerId]struct{}))
	got := crit.CandidateContainers(src)

	assert.Equal(t, []container.ContainerId{
		container.NewContainerId("a"),
		container.NewContainerId("b"),
		container.NewContainerId("c"),
	}, got, "largest first, ties broken by id")
}

func TestCandidateContainersExcludesNonMovableState(t *testing.T) {
	containers := testutil.NewContainerManager()
	repl := testutil.NewReplicationManager()
	src := node("1")

	containers.Put(container.Info{Id: container.NewContainerId("open"), UsedBytes: 100, ReplicaSet: []cluster.NodeId{src}, State: container.StateOpen, ReplicationFactor: 1})
	containers.Put(container.Info{Id: container.NewContainerId("closed"), UsedBytes: 100, ReplicaSet: []cluster.NodeId{src}, State: container.StateClosed, ReplicationFactor: 1})

	crit := New(containers, repl, make(map[container.ContainerId]struct{}))
	got := crit.CandidateContainers(src)

	assert.Equal(t, []container.ContainerId{container.NewContainerId("closed")}, got)
}

func TestCandidateContainersExcludesAlreadySelected(t *testing.T) {
	containers := testutil.NewContainerManager()
	repl := testutil.NewReplicationManager()
	src := node("1")

	id := container.NewContainerId("x")
	containers.Put(container.Info{Id: id, UsedBytes: 100, ReplicaSet: []cluster.NodeId{src}, State: container.StateClosed, ReplicationFactor: 1})

	selected := map[container.ContainerId]struct{}{id: {}}
	crit := New(containers, repl, selected)
	got := crit.CandidateContainers(src)

	assert.Empty(t, got, "already-selected containers must not be offered again this iteration")
}

func TestCandidateContainersExcludesInflightOperations(t *testing.T) {
	containers := testutil.NewContainerManager()
	repl := testutil.NewReplicationManager()
	src := node("1")

	id := container.NewContainerId("x")
	containers.Put(container.Info{Id: id, UsedBytes: 100, ReplicaSet: []cluster.NodeId{src}, State: container.StateClosed, ReplicationFactor: 1})
	repl.Inflight[id.String()] = true

	crit := New(containers, repl, make(map[container.ContainerId]struct{}))
	got := crit.CandidateContainers(src)

	assert.Empty(t, got)
}

func TestCandidateContainersExcludesWrongReplicaCount(t *testing.T) {
	containers := testutil.NewContainerManager()
	repl := testutil.NewReplicationManager()
	src := node("1")

	id := container.NewContainerId("x")
	containers.Put(container.Info{Id: id, UsedBytes: 100, ReplicaSet: []cluster.NodeId{src}, State: container.StateClosed, ReplicationFactor: 3})

	crit := New(containers, repl, make(map[container.ContainerId]struct{}))
	got := crit.CandidateContainers(src)

	assert.Empty(t, got, "under-replicated containers are not balanced")
}

func TestCandidateContainersReturnsEmptyWhenNoneQualify(t *testing.T) {
	containers := testutil.NewContainerManager()
	repl := testutil.NewReplicationManager()

	crit := New(containers, repl, make(map[container.ContainerId]struct{}))
	got := crit.CandidateContainers(node("1"))

	assert.Empty(t, got)
}
