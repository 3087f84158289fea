// Package snapshot implements C1: an immutable per-iteration view of node
// usage, ranked most-to-least used (spec §4.1).
package snapshot

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/containerfleet/balancer/balancer/cluster"
	"github.com/containerfleet/balancer/balancer/glog"
)

// waitMultiplier is how many NodeReportIntervals TriggerRefresh waits
// before re-snapshotting (spec §4.1: one interval to dispatch, one to run, one
// to report).
const waitMultiplier = 3

// Options configures a single Snapshot call.
type Options struct {
	// TriggerRefresh, if set, asks every node to recompute its disk usage
	// before the snapshot is taken, then waits 3x NodeReportInterval.
	TriggerRefresh bool

	NodeReportInterval time.Duration

	// IncludeNodes, if non-empty, restricts the snapshot to nodes whose
	// hostname or IP matches one of these entries.
	IncludeNodes []string

	// ExcludeNodes removes nodes whose hostname or IP matches one of
	// these entries.
	ExcludeNodes []string
}

// Take pulls a ranked snapshot of node usage from the node manager. It
// returns an empty slice if the node manager is unavailable or ctx is
// cancelled during the refresh wait; the caller treats an empty snapshot
// as "cannot balance now" (spec §4.1, §4.6.2 step 2).
func Take(ctx context.Context, nm cluster.NodeManager, opt Options) []cluster.NodeUsage {
	if nm == nil {
		return nil
	}

	if opt.TriggerRefresh {
		nm.RefreshAllHealthyNodeUsage()
		wait := waitMultiplier * opt.NodeReportInterval
		glog.V(1).Infof("snapshot: triggered disk-usage refresh, waiting %s before snapshotting", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			glog.V(1).Infof("snapshot: refresh wait cancelled: %v", ctx.Err())
			return nil
		}
	}

	usages := nm.MostUsedFirst()
	if usages == nil {
		return nil
	}

	usages = filter(usages, opt.IncludeNodes, opt.ExcludeNodes)

	sort.SliceStable(usages, func(i, j int) bool {
		return usages[i].Utilization() > usages[j].Utilization()
	})

	return usages
}

func filter(usages []cluster.NodeUsage, include, exclude []string) []cluster.NodeUsage {
	if len(exclude) > 0 {
		usages = removeMatching(usages, exclude)
	}
	if len(include) > 0 {
		usages = keepMatching(usages, include)
	}
	return usages
}

func removeMatching(usages []cluster.NodeUsage, patterns []string) []cluster.NodeUsage {
	out := usages[:0:0]
	for _, u := range usages {
		if !matchesAny(u.Node, patterns) {
			out = append(out, u)
		}
	}
	return out
}

func keepMatching(usages []cluster.NodeUsage, patterns []string) []cluster.NodeUsage {
	out := usages[:0:0]
	for _, u := range usages {
		if matchesAny(u.Node, patterns) {
			out = append(out, u)
		}
	}
	return out
}

func matchesAny(id cluster.NodeId, patterns []string) bool {
	for _, p := range patterns {
		if id.Hostname == p || id.IP == p {
			return true
		}
		if parsed := net.ParseIP(p); parsed != nil && parsed.String() == id.IP {
			return true
		}
	}
	return false
}
