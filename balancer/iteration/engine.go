package iteration

import (
	"context"

	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/config"
	"github.com/containerfleet/balancer/balancer/container"
	"github.com/containerfleet/balancer/balancer/glog"
	"github.com/containerfleet/balancer/balancer/move"
	"github.com/containerfleet/balancer/balancer/selection"
	"github.com/containerfleet/balancer/balancer/snapshot"
	"github.com/containerfleet/balancer/balancer/source"
	"github.com/containerfleet/balancer/balancer/stats"
	"github.com/containerfleet/balancer/balancer/target"
)

// Deps bundles the external collaborators the Engine reads from and
// writes to (spec §6.1). None of them is owned by the Engine; all must
// outlive a single Run call, but the Engine never retains state across
// calls beyond what Deps itself holds (spec §3 "Ownership").
type Deps struct {
	NodeManager    cluster.NodeManager
	Containers     container.Manager
	Replication    container.ReplicationManager
	Placement      container.PlacementPolicy
	NetworkTopology container.NetworkTopology
}

// Engine runs one iteration at a time. It holds no state between calls to
// Run other than Deps and cfg; IterationState is constructed fresh inside
// Run and discarded at return (spec §3 "Lifecycle").
type Engine struct {
	deps Deps
	cfg  config.Config

	// isRunning is polled by the matching loop so a mid-iteration stop
	// request can break out before more moves are submitted (spec
	// §4.6.2 step 8 "If the service is no longer running").
	isRunning func() bool
}

// New builds an Engine. isRunning is polled once per matching-loop
// iteration; pass a closure over whatever flag Service (C7) uses.
func New(deps Deps, cfg config.Config, isRunning func() bool) *Engine {
	return &Engine{deps: deps, cfg: cfg, isRunning: isRunning}
}

// Run executes exactly one iteration (spec §4.6.2).
func (e *Engine) Run(ctx context.Context) Result {
	stats.ResetLatest()
	stats.NumIterations.Inc()

	usages := e.snapshotWithRefresh(ctx)
	if len(usages) == 0 {
		glog.V(1).Infof("iteration: empty snapshot, cannot balance")
		return ResultCannotBalance
	}

	st := newState()
	e.classify(usages, st)

	stats.NumDatanodesUnbalanced.Set(float64(len(st.OverUtilized) + len(st.UnderUtilized)))
	overBytes := totalBytesOverLimit(st.OverUtilized, st.UpperLimit)
	underBytes := totalBytesUnderLimit(st.UnderUtilized, st.LowerLimit)
	stats.DataSizeUnbalancedGB.Set(bytesToGB(maxInt64(overBytes, underBytes)))

	if len(st.OverUtilized) == 0 || len(st.UnderUtilized) == 0 {
		glog.V(1).Infof("iteration: over=%d under=%d, cannot balance", len(st.OverUtilized), len(st.UnderUtilized))
		return ResultCannotBalance
	}

	totalNodes := len(usages)
	tracker := move.New(e.deps.Replication)
	result := e.matchLoop(ctx, st, totalNodes, tracker)
	if result == ResultInterrupted {
		return result
	}

	if len(st.PendingMoves) == 0 {
		return ResultCannotBalance
	}

	futures := make([]*move.Future, 0, len(st.PendingMoves))
	for _, f := range st.PendingMoves {
		futures = append(futures, f)
	}

	stats.NumDatanodesInvolvedLatest.Set(float64(st.DatanodesInvolved))
	stats.DataSizeMovedGB.Add(bytesToGB(st.SizeMoved))
	stats.DataSizeMovedGBLatest.Set(bytesToGB(st.SizeMoved))

	e.awaitAndRecord(ctx, tracker, futures)

	return ResultCompleted
}

func (e *Engine) snapshotWithRefresh(ctx context.Context) []cluster.NodeUsage {
	return snapshot.Take(ctx, e.deps.NodeManager, snapshot.Options{
		TriggerRefresh:     e.cfg.TriggerDuEnable,
		NodeReportInterval: e.cfg.NodeReportInterval,
		IncludeNodes:       e.cfg.IncludeNodes,
		ExcludeNodes:       e.cfg.ExcludeNodes,
	})
}

// classify computes clusterAvg, upperLimit/lowerLimit, and buckets every
// NodeUsage into over/under/within (spec §4.6.2 steps 3-5). underUtilized
// is reversed so it ends up ordered least-used first.
func (e *Engine) classify(usages []cluster.NodeUsage, st *State) {
	var totalCapacity, totalRemaining int64
	for _, u := range usages {
		totalCapacity += u.Capacity
		totalRemaining += u.Remaining
	}

	var clusterAvg float64
	if totalCapacity > 0 {
		clusterAvg = float64(totalCapacity-totalRemaining) / float64(totalCapacity)
	}

	st.UpperLimit = clusterAvg + e.cfg.Threshold
	st.LowerLimit = clusterAvg - e.cfg.Threshold

	for _, u := range usages {
		util := u.Utilization()
		switch {
		case util > st.UpperLimit:
			st.OverUtilized = append(st.OverUtilized, u)
		case util < st.LowerLimit:
			st.UnderUtilized = append(st.UnderUtilized, u)
		default:
			st.WithinThreshold = append(st.WithinThreshold, u)
		}
	}

	reverse(st.UnderUtilized)
}

func reverse(s []cluster.NodeUsage) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// matchLoop is step 8 of spec §4.6.2: the main matching loop, repeating
// until the service stops, a cap trips, or sources run out.
func (e *Engine) matchLoop(ctx context.Context, st *State, totalNodes int, tracker *move.Tracker) Result {
	src := source.New(st.OverUtilized, st.UpperLimit, e.cfg.MaxSizeLeavingSource, st.BytesLeaving)

	var tgt target.Strategy
	if e.cfg.NetworkTopologyEnable {
		tgt = target.NewByNetworkTopology(st.UnderUtilized, st.UpperLimit, e.cfg.MaxSizeEnteringTarget, st.BytesEntering, e.deps.Containers, e.deps.Placement, e.deps.NetworkTopology)
	} else {
		tgt = target.NewByUsage(st.UnderUtilized, st.UpperLimit, e.cfg.MaxSizeEnteringTarget, st.BytesEntering, e.deps.Containers, e.deps.Placement)
	}

	crit := selection.New(e.deps.Containers, e.deps.Replication, st.SelectedContainers)

	for {
		if e.isRunning != nil && !e.isRunning() {
			glog.V(1).Infof("iteration: service stopped mid-loop, breaking matching loop")
			return ResultInterrupted
		}

		if e.capsTripped(st, totalNodes) {
			glog.V(1).Infof("iteration: iteration caps tripped, breaking matching loop")
			break
		}

		sourceNode, ok := src.NextCandidate()
		if !ok {
			break
		}

		candidates := crit.CandidateContainers(sourceNode)
		if len(candidates) == 0 {
			src.RemoveCandidate(sourceNode)
			continue
		}

		sel, found := tgt.FindTargetForContainerMove(sourceNode, candidates)
		if !found {
			src.RemoveCandidate(sourceNode)
			continue
		}

		info, err := e.deps.Containers.Get(sel.Container)
		if err != nil {
			glog.Warningf("iteration: container %s vanished between selection and commit: %v", sel.Container, err)
			src.RemoveCandidate(sourceNode)
			continue
		}

		// Count a source/target toward DatanodesInvolved only the first time
		// it appears this iteration — a source or target can legitimately
		// receive multiple moves in one iteration (spec §8 invariant 4:
		// "distinct nodes touched").
		_, sourceAlreadyCounted := st.SourceToTarget[sourceNode]
		_, targetAlreadyCounted := st.SelectedTargets[sel.Target]
		if !sourceAlreadyCounted {
			st.DatanodesInvolved++
		}
		if !targetAlreadyCounted {
			st.DatanodesInvolved++
		}

		st.SelectedContainers[sel.Container] = struct{}{}
		moveSel := Selection{Container: sel.Container, Target: sel.Target}
		st.SourceToTarget[sourceNode] = moveSel
		st.SelectedTargets[sel.Target] = struct{}{}
		st.BytesLeaving[sourceNode] += info.UsedBytes
		st.BytesEntering[sel.Target] += info.UsedBytes
		st.SizeMoved += info.UsedBytes

		src.IncreaseLeaving(sourceNode, info.UsedBytes)

		future := tracker.Submit(ctx, sel.Container, sourceNode, sel.Target)
		st.PendingMoves[moveSel] = future

		glog.V(1).Infof("iteration: scheduled move %s %s -> %s (%d bytes)", sel.Container, sourceNode, sel.Target, info.UsedBytes)
	}

	return ResultCompleted
}

// capsTripped implements the two iteration caps from spec §4.6.2 step 8.
func (e *Engine) capsTripped(st *State, totalNodes int) bool {
	maxDatanodes := int(e.cfg.MaxDatanodesRatioToInvolvePerIteration * float64(totalNodes))
	if st.DatanodesInvolved+2 > maxDatanodes {
		return true
	}
	if st.SizeMoved+e.cfg.ContainerSize > e.cfg.MaxSizeToMovePerIteration {
		return true
	}
	return false
}

func (e *Engine) awaitAndRecord(ctx context.Context, tracker *move.Tracker, futures []*move.Future) {
	tracker.AwaitAll(ctx, futures, e.cfg.MoveTimeout)

	var completed, timedOut int
	for _, f := range futures {
		switch f.Result().Outcome {
		case container.OutcomeCompleted:
			completed++
		case container.OutcomeTimedOut:
			timedOut++
		}
	}

	stats.NumContainerMovesCompleted.Add(float64(completed))
	stats.NumContainerMovesTimeout.Add(float64(timedOut))
	stats.NumContainerMovesCompletedLatest.Set(float64(completed))
	stats.NumContainerMovesTimeoutLatest.Set(float64(timedOut))

	glog.V(1).Infof("iteration: awaited %d moves: %d completed, %d timed out", len(futures), completed, timedOut)
}

func totalBytesOverLimit(overUtilized []cluster.NodeUsage, upperLimit float64) int64 {
	var total int64
	for _, u := range overUtilized {
		total += bytesOverUpperLimit(u, upperLimit)
	}
	return total
}

// totalBytesUnderLimit sums bytesUnderLowerLimit across every under-utilized
// node, the other half of spec §4.6.4's two-sided "bytes unbalanced"
// calculation.
func totalBytesUnderLimit(underUtilized []cluster.NodeUsage, lowerLimit float64) int64 {
	var total int64
	for _, u := range underUtilized {
		total += bytesUnderLowerLimit(u, lowerLimit)
	}
	return total
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func bytesToGB(bytes int64) float64 {
	return float64(bytes) / float64(1<<30)
}
