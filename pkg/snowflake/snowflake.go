// Package snowflake generates 64-bit message ids that grow with creation
// time. The millisecond timestamp is recoverable from an id, so ordering by
// id and ordering by creation time agree.
package snowflake

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	nodeBits  = 10
	stepBits  = 12
	nodeMax   = -1 ^ (-1 << nodeBits)
	stepMask  = -1 ^ (-1 << stepBits)
	timeShift = nodeBits + stepBits
	nodeShift = stepBits

	// Epoch is 2024-01-01 00:00:00 UTC in unix milliseconds.
	Epoch int64 = 1704067200000
)

type Node struct {
	mu   sync.Mutex
	last int64
	node int64
	step int64
	now  func() time.Time
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.Errorf("node number must be between 0 and %d", nodeMax)
	}
	return &Node{node: node, now: time.Now}, nil
}

// Generate returns the next id. Ids from one node are strictly increasing
// even if the wall clock steps backwards.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now().UnixMilli()
	if now < n.last {
		now = n.last
	}

	if now == n.last {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			// Sequence exhausted for this millisecond; borrow the next one.
			now = n.last + 1
		}
	} else {
		n.step = 0
	}
	n.last = now

	return ((now - Epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// Time returns the creation time embedded in id.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + Epoch).UTC()
}

// NodeOf returns the node number embedded in id.
func NodeOf(id int64) int64 {
	return (id >> nodeShift) & nodeMax
}
