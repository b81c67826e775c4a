// Package idgen hands out unique 64-bit IDs that are roughly time-sortable
// (a simplified Snowflake, https://en.wikipedia.org/wiki/Snowflake_ID).
// IDs feed short code generation, so the database never has to allocate them.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	customEpoch int64 = 1704067200000 // Jan 1, 2024
	nodeIDBits  uint  = 10
	seqBits     uint  = 12
	MaxNodeID   int64 = -1 ^ (-1 << nodeIDBits)
	maxSeq      int64 = -1 ^ (-1 << seqBits)
)

var ErrInvalidNodeID = errors.New("node id out of range")

// Source is anything that can produce a fresh ID.
type Source interface {
	NextID(ctx context.Context) (uint64, error)
}

type Generator struct {
	mu        sync.Mutex
	lastStamp int64
	nodeID    int64
	seq       int64
	now       func() int64
}

func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidNodeID, nodeID, MaxNodeID)
	}

	return &Generator{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID never fails; the error is there to satisfy Source.
func (g *Generator) NextID(_ context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.lastStamp {
		// Clock went backwards, wait
		ts = g.wait()
	}
	if ts == g.lastStamp {
		g.seq = (g.seq + 1) & maxSeq
		if g.seq == 0 {
			ts = g.wait()
		}
	} else {
		g.seq = 0
	}
	g.lastStamp = ts

	id := (uint64(ts-customEpoch) << (nodeIDBits + seqBits)) |
		(uint64(g.nodeID) << seqBits) |
		uint64(g.seq)

	return id, nil
}

// wait spins until the clock moves past the last issued millisecond.
func (g *Generator) wait() int64 {
	ts := g.now()
	for ts <= g.lastStamp {
		time.Sleep(time.Millisecond)
		ts = g.now()
	}
	return ts
}

// Decompose splits an ID back into its timestamp, node and sequence parts.
func Decompose(id uint64) (ts time.Time, nodeID int64, seq int64) {
	seq = int64(id & uint64(maxSeq))
	nodeID = int64((id >> seqBits) & uint64(MaxNodeID))
	ms := int64(id>>(nodeIDBits+seqBits)) + customEpoch
	return time.UnixMilli(ms), nodeID, seq
}
