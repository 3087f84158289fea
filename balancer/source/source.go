// Package source implements C3: a greedy iterator over over-utilized
// source nodes, tracking how many bytes have been scheduled to leave each
// one (spec §4.3).
package source

import (
	"github.com/containerfleet/balancer/balancer/cluster"
)

// Strategy is the greedy FindSource iterator. It is initialized once per
// iteration with the over-utilized node list (most-used first) and is
// mutated in place as sources are exhausted or removed.
type Strategy struct {
	remaining             []cluster.NodeUsage
	upperLimit            float64
	maxSizeLeavingSource  int64
	bytesLeaving          map[cluster.NodeId]int64
}

// New builds a Strategy over overUtilized, which must already be ordered
// most-used first (spec §4.6.2 step 5 classification feeds this in).
func New(overUtilized []cluster.NodeUsage, upperLimit float64, maxSizeLeavingSource int64, bytesLeaving map[cluster.NodeId]int64) *Strategy {
	remaining := make([]cluster.NodeUsage, len(overUtilized))
	copy(remaining, overUtilized)
	return &Strategy{
		remaining:            remaining,
		upperLimit:           upperLimit,
		maxSizeLeavingSource: maxSizeLeavingSource,
		bytesLeaving:         bytesLeaving,
	}
}

// NextCandidate returns the next source not yet exhausted, or false if
// none remain.
func (s *Strategy) NextCandidate() (cluster.NodeId, bool) {
	if len(s.remaining) == 0 {
		return cluster.NodeId{}, false
	}
	return s.remaining[0].Node, true
}

// RemoveCandidate drops a source from further consideration this
// iteration, e.g. because FindTarget found no match for it.
func (s *Strategy) RemoveCandidate(id cluster.NodeId) {
	for i, u := range s.remaining {
		if u.Node.Equal(id) {
			s.remaining = append(s.remaining[:i], s.remaining[i+1:]...)
			return
		}
	}
}

// IncreaseLeaving records that bytes are scheduled to leave id, and
// exhausts the source (removes it from the candidate pool) once its
// cumulative departures exceed maxSizeLeavingSource, or once removing
// bytes would bring it below the upperLimit utilization band (spec §4.3:
// we stop pulling from a source once it would no longer be
// over-utilized).
func (s *Strategy) IncreaseLeaving(id cluster.NodeId, bytes int64) {
	s.bytesLeaving[id] += bytes

	idx := -1
	var usage cluster.NodeUsage
	for i, u := range s.remaining {
		if u.Node.Equal(id) {
			idx = i
			usage = u
			break
		}
	}
	if idx == -1 {
		return
	}

	leaving := s.bytesLeaving[id]
	if leaving > s.maxSizeLeavingSource {
		s.remaining = append(s.remaining[:idx], s.remaining[idx+1:]...)
		return
	}

	projectedRemaining := usage.Remaining + leaving
	projectedUtil := float64(usage.Capacity-projectedRemaining) / float64(usage.Capacity)
	if projectedUtil < s.upperLimit {
		s.remaining = append(s.remaining[:idx], s.remaining[idx+1:]...)
	}
}

// Remaining returns a copy of the sources still in the candidate pool.
func (s *Strategy) Remaining() []cluster.NodeUsage {
	out := make([]cluster.NodeUsage, len(s.remaining))
	copy(out, s.remaining)
	return out
}
