package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/containerfleet/balancer/balancer/cluster"
)

func usage(id string, capacity, remaining int64) cluster.NodeUsage {
	return cluster.NodeUsage{
		Node:      cluster.NodeId{UUID: id, Hostname: id},
		Capacity:  capacity,
		Used:      capacity - remaining,
		Remaining: remaining,
	}
}

func TestNextCandidateReturnsMostUsedFirst(t *testing.T) {
	a := usage("a", 100, 10) // 90% used
	b := usage("b", 100, 20) // 80% used
	bytesLeaving := make(map[cluster.NodeId]int64)

	s := New([]cluster.NodeUsage{a, b}, 0.5, 1000, bytesLeaving)

	got, ok := s.NextCandidate()
	assert.True(t, ok)
	assert.Equal(t, a.Node, got)
}

func TestRemoveCandidateDropsSource(t *testing.T) {
	a := usage("a", 100, 10)
	b := usage("b", 100, 20)
	bytesLeaving := make(map[cluster.NodeId]int64)

	s := New([]cluster.NodeUsage{a, b}, 0.5, 1000, bytesLeaving)
	s.RemoveCandidate(a.Node)

	got, ok := s.NextCandidate()
	assert.True(t, ok)
	assert.Equal(t, b.Node, got)
}

func TestIncreaseLeavingExhaustsSourceAtCap(t *testing.T) {
	a := usage("a", 1000, 100) // 90% used
	bytesLeaving := make(map[cluster.NodeId]int64)

	s := New([]cluster.NodeUsage{a}, 0.0, 50, bytesLeaving)
	s.IncreaseLeaving(a.Node, 60)

	assert.Equal(t, int64(60), bytesLeaving[a.Node])
	_, ok := s.NextCandidate()
	assert.False(t, ok, "source should be exhausted once bytesLeaving exceeds maxSizeLeavingSource")
}

func TestIncreaseLeavingExhaustsSourceBelowUpperLimit(t *testing.T) {
	// capacity 1000, remaining 100 -> 90% used. Moving 500 bytes out
	// brings remaining to 600, utilization to 40%, below upperLimit 0.5.
	a := usage("a", 1000, 100)
	bytesLeaving := make(map[cluster.NodeId]int64)

	s := New([]cluster.NodeUsage{a}, 0.5, 100000, bytesLeaving)
	s.IncreaseLeaving(a.Node, 500)

	_, ok := s.NextCandidate()
	assert.False(t, ok, "source should be exhausted once it would no longer be over-utilized")
}

func TestIncreaseLeavingKeepsSourceWhenStillOverUtilized(t *testing.T) {
	a := usage("a", 1000, 100)
	bytesLeaving := make(map[cluster.NodeId]int64)

	s := New([]cluster.NodeUsage{a}, 0.5, 100000, bytesLeaving)
	s.IncreaseLeaving(a.Node, 50)

	_, ok := s.NextCandidate()
	assert.True(t, ok)
}
