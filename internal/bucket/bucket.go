// Package bucket provides a concurrent multi-map from a key (file size or
// content fingerprint) to the set of files sharing it.
//
// The same type backs both indices of a run:
//
//	SizeIndex:  size        → files of that size     (promotion point to hashing)
//	HashIndex:  fingerprint → files with that digest (source of duplicate groups)
//
// Buckets are spread over independently locked shards. Within a shard every
// Add is a single critical section, so a bucket's creation and its first two
// insertions are linearizable: exactly one caller observes the 1 → 2
// transition and receives both members.
package bucket

import (
	"hash/maphash"
	"sync"

	"github.com/ivoronin/dupesniff/internal/types"
)

// DefaultShards is the shard count used when New is given a non-positive value.
const DefaultShards = 64

// set holds the members of one bucket. Most buckets stay singletons, so the
// path lookup table is only allocated once a second member arrives.
type set struct {
	members []*types.FileEntry
	paths   map[string]struct{}
}

func (s *set) contains(path string) bool {
	if s.paths == nil {
		return len(s.members) == 1 && s.members[0].Path == path
	}
	_, ok := s.paths[path]
	return ok
}

func (s *set) add(e *types.FileEntry) {
	s.members = append(s.members, e)
	if len(s.members) == 2 {
		s.paths = map[string]struct{}{s.members[0].Path: {}}
	}
	if s.paths != nil {
		s.paths[e.Path] = struct{}{}
	}
}

type shard[K comparable] struct {
	mu      sync.Mutex
	buckets map[K]*set
}

// Index is a sharded concurrent multi-map from K to a set of file entries.
// Set identity is the entry's path.
type Index[K comparable] struct {
	seed   maphash.Seed
	shards []shard[K]
}

// New creates an Index with n shards.
func New[K comparable](n int) *Index[K] {
	if n <= 0 {
		n = DefaultShards
	}
	idx := &Index[K]{seed: maphash.MakeSeed(), shards: make([]shard[K], n)}
	for i := range idx.shards {
		idx.shards[i].buckets = make(map[K]*set)
	}
	return idx
}

func (idx *Index[K]) shardFor(key K) *shard[K] {
	h := maphash.Comparable(idx.seed, key)
	return &idx.shards[h%uint64(len(idx.shards))]
}

// Add inserts e into key's bucket and returns the entries that became
// eligible for hashing as a result:
//
//	bucket size after Add │ returned
//	──────────────────────┼──────────────────────────
//	1                     │ nil   (retained, not scheduled)
//	2                     │ both members (first promotion)
//	> 2                   │ only e (already promoted)
//
// Re-adding a path already in the bucket is a no-op and returns nil.
func (idx *Index[K]) Add(key K, e *types.FileEntry) []*types.FileEntry {
	sh := idx.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[key]
	if !ok {
		sh.buckets[key] = &set{members: []*types.FileEntry{e}}
		return nil
	}
	if b.contains(e.Path) {
		return nil
	}
	b.add(e)

	if len(b.members) == 2 {
		return []*types.FileEntry{b.members[0], e}
	}
	return []*types.FileEntry{e}
}

// Drain calls fn for every bucket and removes it, so memory is released as
// buckets are consumed. fn runs without any shard lock held.
// Adds racing with Drain land in the fresh shard map and are not visited.
func (idx *Index[K]) Drain(fn func(key K, members []*types.FileEntry)) {
	for i := range idx.shards {
		sh := &idx.shards[i]
		sh.mu.Lock()
		buckets := sh.buckets
		sh.buckets = make(map[K]*set)
		sh.mu.Unlock()

		for k, b := range buckets {
			delete(buckets, k)
			fn(k, b.members)
		}
	}
}

// Clear removes every bucket.
func (idx *Index[K]) Clear() {
	for i := range idx.shards {
		sh := &idx.shards[i]
		sh.mu.Lock()
		sh.buckets = make(map[K]*set)
		sh.mu.Unlock()
	}
}

// Len returns the number of buckets.
func (idx *Index[K]) Len() int {
	total := 0
	for i := range idx.shards {
		sh := &idx.shards[i]
		sh.mu.Lock()
		total += len(sh.buckets)
		sh.mu.Unlock()
	}
	return total
}
