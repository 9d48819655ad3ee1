// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package etl

import (
	"sync"
	"testing"
)

func TestShardedCounterMonotonic(t *testing.T) {
	gen := NewShardedCounter(0)
	prev := int64(-1)
	for i := 0; i < 100; i++ {
		id := gen.Next()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
	if prev != 99 {
		t.Errorf("shard 0 final id = %d, want 99", prev)
	}
}

func TestShardedCounterShardLayout(t *testing.T) {
	gen := NewShardedCounter(2)
	want := int64(2) << shardBits
	if got := gen.Next(); got != want {
		t.Errorf("first id of shard 2 = %d, want %d", got, want)
	}
	if got := gen.Next(); got != want+1 {
		t.Errorf("second id of shard 2 = %d, want %d", got, want+1)
	}
}

func TestShardedCounterCrossShardUnique(t *testing.T) {
	seen := make(map[int64]bool)
	for shard := int64(0); shard < 4; shard++ {
		gen := NewShardedCounter(shard)
		for i := 0; i < 1000; i++ {
			id := gen.Next()
			if seen[id] {
				t.Fatalf("duplicate id %d across shards", id)
			}
			seen[id] = true
		}
	}
}

func TestShardedCounterConcurrent(t *testing.T) {
	const (
		workers = 8
		perW    = 500
	)
	gen := NewShardedCounter(1)

	ids := make(chan int64, workers*perW)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perW; i++ {
				ids <- gen.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, workers*perW)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d under concurrency", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perW {
		t.Errorf("got %d distinct ids, want %d", len(seen), workers*perW)
	}
}
