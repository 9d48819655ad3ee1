// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package etl

import "sync"

// Generator produces surrogate keys for fact rows: synthetic identifiers
// with no business meaning, unique within a run. Global ordering of the
// generated ids is neither guaranteed nor required, and ids are not
// stable or reused between runs.
type Generator interface {
	Next() int64
}

// shardBits is the width of the per-shard counter. A 64-bit id splits
// into a 31-bit shard index and a 33-bit counter, so ids from different
// shards can never collide and each shard yields monotonically increasing
// values.
const shardBits = 33

// ShardedCounter generates ids of the form shard<<33 | counter. Ids are
// collision-free across shards and non-decreasing within one, but not
// contiguous across the whole run.
type ShardedCounter struct {
	mu    sync.Mutex
	shard int64
	next  int64
}

// NewShardedCounter creates a generator for the given shard index.
func NewShardedCounter(shard int64) *ShardedCounter {
	return &ShardedCounter{shard: shard}
}

// Next returns the next id for this shard.
func (g *ShardedCounter) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.shard<<shardBits | g.next
	g.next++
	return id
}
