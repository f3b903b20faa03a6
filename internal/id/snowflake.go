package id

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// Snowflake layout: 41 bits of milliseconds since snowflakeEpoch,
// 10 bits of node id, 12 bits of per-millisecond sequence.
//
// Reading sessions use snowflakes as their primary key both locally and
// remotely: the key must be assignable offline, unique across devices, and
// roughly time-ordered so the remote service can de-duplicate cheaply.
const (
	nodeBits = 10
	seqBits  = 12

	nodeMax = (1 << nodeBits) - 1
	seqMask = (1 << seqBits) - 1
)

// snowflakeEpoch is 2024-01-01T00:00:00Z in Unix milliseconds.
const snowflakeEpoch int64 = 1704067200000

// SnowflakeGenerator produces time-derived unique int64 identifiers.
type SnowflakeGenerator struct {
	mu     sync.Mutex
	node   int64
	lastMs int64
	seq    int64
	now    func() time.Time
}

// NewSnowflakeGenerator creates a generator with a random node id.
// The node id only needs to distinguish concurrently-writing devices,
// so random assignment at startup is sufficient.
func NewSnowflakeGenerator() *SnowflakeGenerator {
	var b [2]byte
	_, _ = rand.Read(b[:])
	node := int64(binary.BigEndian.Uint16(b[:])) & nodeMax
	return &SnowflakeGenerator{
		node: node,
		now:  time.Now,
	}
}

// NewSnowflakeGeneratorAt creates a generator with a fixed node id and clock.
// Used in tests for deterministic output.
func NewSnowflakeGeneratorAt(node int64, now func() time.Time) *SnowflakeGenerator {
	return &SnowflakeGenerator{
		node: node & nodeMax,
		now:  now,
	}
}

// Next returns the next snowflake. Safe for concurrent use.
func (g *SnowflakeGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli() - snowflakeEpoch
	if ms < g.lastMs {
		// Clock went backwards; hold at the last timestamp so ids stay monotonic.
		ms = g.lastMs
	}

	if ms == g.lastMs {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			// Sequence exhausted within this millisecond; advance.
			ms++
		}
	} else {
		g.seq = 0
	}
	g.lastMs = ms

	return ms<<(nodeBits+seqBits) | g.node<<seqBits | g.seq
}

// SnowflakeTime extracts the creation time embedded in a snowflake.
func SnowflakeTime(sf int64) time.Time {
	ms := sf>>(nodeBits+seqBits) + snowflakeEpoch
	return time.UnixMilli(ms)
}
