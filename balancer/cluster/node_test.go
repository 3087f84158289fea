package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeIdEqualComparesOnlyUUID(t *testing.T) {
	a := NodeId{UUID: "1", Hostname: "host-a"}
	b := NodeId{UUID: "1", Hostname: "host-b"}
	assert.True(t, a.Equal(b))
}

func TestNodeIdNotEqualOnDifferentUUID(t *testing.T) {
	a := NodeId{UUID: "1"}
	b := NodeId{UUID: "2"}
	assert.False(t, a.Equal(b))
}

func TestUtilization(t *testing.T) {
	u := NodeUsage{Capacity: 100, Remaining: 25}
	assert.Equal(t, 0.75, u.Utilization())
}
