package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/testutil"
)

func node(id, host, ip string) cluster.NodeId {
	return cluster.NodeId{UUID: id, Hostname: host, IP: ip}
}

func TestTakeOrdersMostUsedFirst(t *testing.T) {
	nm := &testutil.NodeManager{Usages: []cluster.NodeUsage{
		{Node: node("a", "a", "10.0.0.1"), Capacity: 100, Remaining: 50},
		{Node: node("b", "b", "10.0.0.2"), Capacity: 100, Remaining: 10},
	}}

	got := Take(context.Background(), nm, Options{})

	assert.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Node.UUID)
	assert.Equal(t, "a", got[1].Node.UUID)
}

func TestTakeReturnsNilWhenNodeManagerUnavailable(t *testing.T) {
	nm := &testutil.NodeManager{Unavailable: true}
	got := Take(context.Background(), nm, Options{})
	assert.Nil(t, got)
}

func TestTakeReturnsNilWhenNodeManagerIsNil(t *testing.T) {
	got := Take(context.Background(), nil, Options{})
	assert.Nil(t, got)
}

func TestTakeAppliesExcludeFilter(t *testing.T) {
	nm := &testutil.NodeManager{Usages: []cluster.NodeUsage{
		{Node: node("a", "host-a", "10.0.0.1"), Capacity: 100, Remaining: 50},
		{Node: node("b", "host-b", "10.0.0.2"), Capacity: 100, Remaining: 50},
	}}

	got := Take(context.Background(), nm, Options{ExcludeNodes: []string{"host-a"}})

	assert.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Node.UUID)
}

func TestTakeAppliesIncludeFilter(t *testing.T) {
	nm := &testutil.NodeManager{Usages: []cluster.NodeUsage{
		{Node: node("a", "host-a", "10.0.0.1"), Capacity: 100, Remaining: 50},
		{Node: node("b", "host-b", "10.0.0.2"), Capacity: 100, Remaining: 50},
	}}

	got := Take(context.Background(), nm, Options{IncludeNodes: []string{"10.0.0.2"}})

	assert.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Node.UUID)
}

func TestTakeTriggersRefreshAndWaits(t *testing.T) {
	nm := &testutil.NodeManager{Usages: []cluster.NodeUsage{
		{Node: node("a", "a", "10.0.0.1"), Capacity: 100, Remaining: 50},
	}}

	got := Take(context.Background(), nm, Options{TriggerRefresh: true, NodeReportInterval: time.Millisecond})

	assert.Equal(t, 1, nm.RefreshedCount)
	assert.Len(t, got, 1)
}

func TestTakeAbortsRefreshWaitOnCancellation(t *testing.T) {
	nm := &testutil.NodeManager{Usages: []cluster.NodeUsage{
		{Node: node("a", "a", "10.0.0.1"), Capacity: 100, Remaining: 50},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := Take(ctx, nm, Options{TriggerRefresh: true, NodeReportInterval: time.Hour})
	assert.Nil(t, got)
}
