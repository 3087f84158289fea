package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/config"
	"github.com/containerfleet/balancer/balancer/container"
	"github.com/containerfleet/balancer/balancer/iteration"
	"github.com/containerfleet/balancer/balancer/testutil"
)

type fakeContext struct {
	leaderReady bool
	safeMode    bool
}

func (f *fakeContext) IsLeader() bool      { return f.leaderReady }
func (f *fakeContext) IsLeaderReady() bool { return f.leaderReady }
func (f *fakeContext) IsInSafeMode() bool  { return f.safeMode }

func node(id string) cluster.NodeId {
	return cluster.NodeId{UUID: id, Hostname: id}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Iterations = 1
	cfg.BalancingInterval = time.Millisecond
	cfg.MoveTimeout = 50 * time.Millisecond
	cfg.MaxSizeEnteringTarget = 1000
	cfg.MaxSizeLeavingSource = 1000
	cfg.MaxSizeToMovePerIteration = 1000
	cfg.ContainerSize = 10
	cfg.MaxDatanodesRatioToInvolvePerIteration = 1.0
	return cfg
}

func emptyDeps() iteration.Deps {
	return iteration.Deps{
		NodeManager: &testutil.NodeManager{},
		Containers:  testutil.NewContainerManager(),
		Replication: testutil.NewReplicationManager(),
		Placement:   &testutil.PlacementPolicy{},
	}
}

func TestStartBalancerRejectsWhenNotLeaderReady(t *testing.T) {
	svc := New(emptyDeps(), testConfig(), &fakeContext{leaderReady: false})
	err := svc.StartBalancer(context.Background())
	assert.Error(t, err)
}

func TestStartBalancerRejectsWhenInSafeMode(t *testing.T) {
	svc := New(emptyDeps(), testConfig(), &fakeContext{leaderReady: true, safeMode: true})
	err := svc.StartBalancer(context.Background())
	assert.Error(t, err)
}

func TestStartBalancerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Threshold = -1
	svc := New(emptyDeps(), cfg, &fakeContext{leaderReady: true})
	err := svc.StartBalancer(context.Background())
	assert.Error(t, err)
}

func TestStartBalancerRejectsDoubleStart(t *testing.T) {
	cfg := testConfig()
	cfg.Iterations = -1
	cfg.BalancingInterval = time.Hour
	svc := New(emptyDeps(), cfg, &fakeContext{leaderReady: true})

	err := svc.StartBalancer(context.Background())
	assert.NoError(t, err)
	defer svc.StopBalancer()

	err = svc.StartBalancer(context.Background())
	assert.Error(t, err)
}

func TestStopBalancerIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Iterations = -1
	cfg.BalancingInterval = time.Hour
	svc := New(emptyDeps(), cfg, &fakeContext{leaderReady: true})

	assert.NoError(t, svc.StartBalancer(context.Background()))
	svc.StopBalancer()
	svc.StopBalancer()

	assert.False(t, svc.IsRunning())
}

func TestStopBalancerOnNeverStartedServiceIsNoop(t *testing.T) {
	svc := New(emptyDeps(), testConfig(), &fakeContext{leaderReady: true})
	assert.NotPanics(t, svc.StopBalancer)
}

func TestWorkerStopsItselfAfterConfiguredIterations(t *testing.T) {
	cfg := testConfig()
	cfg.Iterations = 2
	cfg.BalancingInterval = time.Millisecond

	// One over- and one under-utilized node with a movable container, so
	// every iteration completes and the worker can only stop by reaching
	// the configured iteration count (empty deps would stop it on the
	// first CannotBalance instead).
	containers := testutil.NewContainerManager()
	containers.Put(container.Info{
		Id:                container.NewContainerId("c1"),
		UsedBytes:         20,
		ReplicaSet:        []cluster.NodeId{node("over")},
		State:             container.StateClosed,
		ReplicationFactor: 1,
	})
	deps := iteration.Deps{
		NodeManager: &testutil.NodeManager{Usages: []cluster.NodeUsage{
			{Node: node("over"), Capacity: 100, Used: 95, Remaining: 5},
			{Node: node("under"), Capacity: 100, Used: 10, Remaining: 90},
		}},
		Containers:  containers,
		Replication: testutil.NewReplicationManager(),
		Placement:   &testutil.PlacementPolicy{},
	}

	svc := New(deps, cfg, &fakeContext{leaderReady: true})
	assert.NoError(t, svc.StartBalancer(context.Background()))

	assert.Eventually(t, func() bool { return !svc.IsRunning() }, time.Second, time.Millisecond)
}

func TestShouldRunDefaultsFalseAndGatesStart(t *testing.T) {
	svc := New(emptyDeps(), testConfig(), &fakeContext{leaderReady: true})
	assert.False(t, svc.ShouldRun())

	err := svc.Start(context.Background())
	assert.NoError(t, err)
	assert.False(t, svc.IsRunning(), "Start must not run the worker while ShouldRun() is false")
}

func TestStartBalancerBypassesShouldRun(t *testing.T) {
	cfg := testConfig()
	cfg.Iterations = -1
	cfg.BalancingInterval = time.Hour
	svc := New(emptyDeps(), cfg, &fakeContext{leaderReady: true})
	assert.False(t, svc.ShouldRun())

	err := svc.StartBalancer(context.Background())
	defer svc.StopBalancer()

	assert.NoError(t, err)
	assert.True(t, svc.IsRunning(), "StartBalancer must not be gated by ShouldRun")
}

func TestWorkerStopsOnCannotBalance(t *testing.T) {
	cfg := testConfig()
	cfg.Iterations = -1
	cfg.BalancingInterval = time.Hour // if the worker failed to stop, it would never loop again within the test timeout

	// No node usages at all: every iteration's snapshot is empty, so
	// iteration.Engine.Run always returns ResultCannotBalance.
	svc := New(emptyDeps(), cfg, &fakeContext{leaderReady: true})

	assert.NoError(t, svc.StartBalancer(context.Background()))
	assert.Eventually(t, func() bool { return !svc.IsRunning() }, time.Second, time.Millisecond,
		"worker must stop itself on ResultCannotBalance rather than sleep and retry forever")
}

func TestNotifyStatusChangedStopsOnLossOfLeadership(t *testing.T) {
	cfg := testConfig()
	cfg.Iterations = -1
	cfg.BalancingInterval = time.Hour
	fc := &fakeContext{leaderReady: true}
	svc := New(emptyDeps(), cfg, fc)

	assert.NoError(t, svc.StartBalancer(context.Background()))
	fc.leaderReady = false
	svc.NotifyStatusChanged()

	assert.False(t, svc.IsRunning())
}

func TestNotifyStatusChangedIsNoopWhenStatusIsFavorable(t *testing.T) {
	cfg := testConfig()
	cfg.Iterations = -1
	cfg.BalancingInterval = time.Hour
	fc := &fakeContext{leaderReady: true}
	svc := New(emptyDeps(), cfg, fc)

	assert.NoError(t, svc.StartBalancer(context.Background()))
	defer svc.StopBalancer()

	svc.NotifyStatusChanged()
	assert.True(t, svc.IsRunning())
}

func TestWorkerRunsAnIterationAgainstRealDeps(t *testing.T) {
	containers := testutil.NewContainerManager()
	containers.Put(container.Info{
		Id:                container.NewContainerId("c1"),
		UsedBytes:         20,
		ReplicaSet:        []cluster.NodeId{node("over")},
		State:             container.StateClosed,
		ReplicationFactor: 1,
	})
	deps := iteration.Deps{
		NodeManager: &testutil.NodeManager{Usages: []cluster.NodeUsage{
			{Node: node("over"), Capacity: 100, Used: 95, Remaining: 5},
			{Node: node("under"), Capacity: 100, Used: 10, Remaining: 90},
		}},
		Containers:  containers,
		Replication: testutil.NewReplicationManager(),
		Placement:   &testutil.PlacementPolicy{},
	}

	cfg := testConfig()
	cfg.Iterations = 1

	svc := New(deps, cfg, &fakeContext{leaderReady: true})
	assert.NoError(t, svc.StartBalancer(context.Background()))

	assert.Eventually(t, func() bool { return !svc.IsRunning() }, time.Second, time.Millisecond)
}
