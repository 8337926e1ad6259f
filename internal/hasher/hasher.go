// Package hasher fingerprints candidate files on a bounded worker pool and
// files them into the hash index.
//
// # Task Lifecycle
//
//	Submit(entry)
//	    │
//	    ├──► cache hit?  ──yes──► index.Add(fp, entry)
//	    │        │no
//	    │        ▼
//	    ├──► fingerprint.File(entry.Path, buf)
//	    │        │
//	    │        ├── error ──► errCh, task Failed, entry dropped
//	    │        ▼
//	    └──► cache.Store + index.Add(fp, entry)
//
// A failed read is never retried and never leaves a partial fingerprint in
// the index or the cache.
package hasher

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/dupesniff/internal/bucket"
	"github.com/ivoronin/dupesniff/internal/cache"
	"github.com/ivoronin/dupesniff/internal/fingerprint"
	"github.com/ivoronin/dupesniff/internal/types"
	"github.com/ivoronin/dupesniff/internal/workers"
)

// Stats counts hashing progress using atomic counters for lock-free updates.
type Stats struct {
	Files  atomic.Int64 // Files fingerprinted (including cache hits)
	Cached atomic.Int64 // Files answered from the cache
	Bytes  atomic.Int64 // Bytes actually read from disk
	Failed atomic.Int64 // Files dropped after a read error
}

func (s *Stats) String() string {
	return fmt.Sprintf("Hashed %d files (%d cached), read %s",
		s.Files.Load(), s.Cached.Load(), humanize.IBytes(uint64(s.Bytes.Load())))
}

// Hasher fingerprints files on a worker pool.
type Hasher struct {
	pool  *workers.Pool
	index *bucket.Index[fingerprint.Fingerprint]
	cache *cache.Cache // nil = no cache
	bufs  sync.Pool    // Reusable block buffers, one per in-flight task
	errCh chan error   // Non-fatal errors (vanished files, read faults)
	stats Stats
}

// New creates a Hasher that reads blockSize bytes at a time.
// c may be nil or disabled.
func New(pool *workers.Pool, index *bucket.Index[fingerprint.Fingerprint], c *cache.Cache, blockSize int, errCh chan error) *Hasher {
	if blockSize <= 0 {
		blockSize = fingerprint.DefaultBlockSize
	}
	if c != nil && !c.Enabled() {
		c = nil
	}
	h := &Hasher{pool: pool, index: index, cache: c, errCh: errCh}
	h.bufs.New = func() any {
		buf := make([]byte, blockSize)
		return &buf
	}
	return h
}

// Stats returns the live counters.
func (h *Hasher) Stats() *Stats { return &h.stats }

// Submit schedules entry for fingerprinting.
// Returns workers.ErrStopped once the run is cancelled.
func (h *Hasher) Submit(e *types.FileEntry) error {
	return h.pool.Go(func() error { return h.hash(e) })
}

// Wait blocks until every submitted file has been fingerprinted or dropped.
func (h *Hasher) Wait() error { return h.pool.Wait() }

func (h *Hasher) hash(e *types.FileEntry) error {
	if h.cache != nil {
		fp, ok, err := h.cache.Lookup(e)
		if err != nil {
			h.sendError(err)
		}
		if ok {
			h.stats.Cached.Add(1)
			h.stats.Files.Add(1)
			h.index.Add(fp, e)
			return nil
		}
	}

	bufp := h.bufs.Get().(*[]byte)
	fp, n, err := fingerprint.File(e.Path, *bufp)
	h.bufs.Put(bufp)
	if err != nil {
		h.stats.Failed.Add(1)
		err = fmt.Errorf("hash %s: %w", e.Path, err)
		h.sendError(err)
		return err
	}

	if h.cache != nil {
		if err := h.cache.Store(e, fp); err != nil {
			h.sendError(err)
		}
	}
	h.stats.Files.Add(1)
	h.stats.Bytes.Add(n)
	h.index.Add(fp, e)
	return nil
}

// sendError sends an error to the errors channel if it's not nil.
func (h *Hasher) sendError(err error) {
	if h.errCh != nil {
		h.errCh <- err
	}
}
