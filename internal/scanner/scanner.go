// Package scanner walks scan roots in parallel, buckets files by size and
// forwards size collisions to the hasher as soon as they appear.
//
// # Concurrency Model
//
// Every directory is one task on a workers.Pool. A directory task lists its
// entries and, for each subdirectory, submits a NEW task instead of recursing
// inline, so fan-out parallelizes across the pool. All tasks are tracked by
// the pool's quiescence barrier; Run returns once the barrier drains, which
// includes directories discovered after Run started waiting.
//
// # Promotion
//
//	┌──────────────────────────┬────────────────────────────────────────┐
//	│ Size bucket after insert │ Scheduled for hashing                  │
//	├──────────────────────────┼────────────────────────────────────────┤
//	│ 1 member                 │ nothing (retained for a later match)   │
//	│ 2 members (first time)   │ both members                           │
//	│ 3+ members               │ only the new arrival                   │
//	└──────────────────────────┴────────────────────────────────────────┘
//
// Hashing therefore starts while the walk is still running, and a late file
// of an already-promoted size is never missed.
//
// # Synchronization Primitives
//
//	┌─────────────────┬────────────────────────────────────────────────┐
//	│ Primitive       │ Purpose                                        │
//	├─────────────────┼────────────────────────────────────────────────┤
//	│ pool            │ Bounds concurrent directory reads              │
//	│ pool barrier    │ Tracks every directory task, however nested    │
//	│ sizes           │ Sharded size index, atomic insert-and-promote  │
//	│ atomic counters │ Lock-free stats updates from any goroutine     │
//	└─────────────────┴────────────────────────────────────────────────┘
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/dupesniff/internal/bucket"
	"github.com/ivoronin/dupesniff/internal/classify"
	"github.com/ivoronin/dupesniff/internal/types"
	"github.com/ivoronin/dupesniff/internal/workers"
)

// Submitter receives files whose size bucket has been promoted.
type Submitter interface {
	Submit(e *types.FileEntry) error
}

// Scanner discovers candidate files using parallel directory traversal.
//
// The scanner is designed for single-use: create with New(), call Run() once.
type Scanner struct {
	// Config (immutable, set by New)
	roots      []string             // Root paths to scan
	classifier *classify.Classifier // Size bounds and mount boundary policy
	pool       *workers.Pool        // Directory tasks
	sizes      *bucket.Index[int64] // Size -> candidates
	hasher     Submitter            // Receives promoted candidates
	errCh      chan error           // Non-fatal errors (permission denied, etc.)

	// Runtime (initialized in Run)
	ctx   context.Context
	stats Stats
}

// New creates a Scanner.
func New(roots []string, classifier *classify.Classifier, pool *workers.Pool,
	sizes *bucket.Index[int64], hasher Submitter, errCh chan error) *Scanner {
	return &Scanner{
		roots:      roots,
		classifier: classifier,
		pool:       pool,
		sizes:      sizes,
		hasher:     hasher,
		errCh:      errCh,
	}
}

// Stats tracks scanning progress using atomic counters for lock-free updates.
//
// Individual reads may not see a perfectly consistent view across all
// counters, which is acceptable for progress display.
type Stats struct {
	Roots       atomic.Int64 // Roots accepted for scanning
	Directories atomic.Int64 // Directories listed
	Files       atomic.Int64 // Files passing classification
	Bytes       atomic.Int64 // Bytes across those files
	Promoted    atomic.Int64 // Files forwarded to the hasher
	startTime   time.Time
}

func (s *Stats) String() string {
	return fmt.Sprintf("Scanned %d dirs, found %d files (%s), %d candidates in %.1fs",
		s.Directories.Load(), s.Files.Load(), humanize.IBytes(uint64(s.Bytes.Load())),
		s.Promoted.Load(), time.Since(s.startTime).Seconds())
}

// Stats returns the live counters.
func (s *Scanner) Stats() *Stats { return &s.stats }

// Run walks every root and returns once all directory tasks have finished.
// Invalid roots are reported on errCh and skipped.
// After ctx is cancelled no new directories are listed.
func (s *Scanner) Run(ctx context.Context) error {
	s.ctx = ctx
	s.stats.startTime = time.Now()

	for _, p := range s.roots {
		root, err := s.classifier.Root(p)
		if err != nil {
			s.sendError(fmt.Errorf("skipping root: %w", err))
			continue
		}
		s.stats.Roots.Add(1)
		s.walkDirectory(root, root.Path)
	}

	return s.pool.Wait()
}

// walkDirectory submits a task listing one directory.
func (s *Scanner) walkDirectory(root classify.Root, dir string) {
	err := s.pool.Go(func() error {
		s.stats.Directories.Add(1)
		subdirs, err := s.listDirectory(root, dir)
		if err != nil {
			// Unreadable listing counts as an empty directory
			s.sendError(err)
		}
		for _, sub := range subdirs {
			s.walkDirectory(root, sub)
		}
		return nil
	})
	if err != nil && !errors.Is(err, workers.ErrStopped) {
		s.sendError(err)
	}
}

// listDirectory reads a single directory, inserting candidates into the size
// index and returning subdirectories to recurse into.
//
// Uses batched ReadDir (1000 entries per batch) to handle large directories efficiently.
func (s *Scanner) listDirectory(root classify.Root, dirPath string) (subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dir.Close() }()

	// Batch reading: ReadDir(n) returns up to n entries at a time.
	// This bounds memory usage when listing directories with millions of files.
	const batchSize = 1000
	for s.ctx.Err() == nil {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return subdirs, err
			}
			break
		}

		for _, entry := range entries {
			fullPath := filepath.Join(dirPath, entry.Name())
			switch verdict, fe := s.classifier.Classify(root, fullPath, entry); verdict {
			case classify.Recurse:
				subdirs = append(subdirs, fullPath)
			case classify.Hash:
				s.addCandidate(fe)
			case classify.Skip:
			}
		}
	}

	return subdirs, nil
}

// addCandidate files e by size and forwards whatever the insert promoted.
func (s *Scanner) addCandidate(e *types.FileEntry) {
	s.stats.Files.Add(1)
	s.stats.Bytes.Add(e.Size)

	for _, p := range s.sizes.Add(e.Size, e) {
		if err := s.hasher.Submit(p); err != nil {
			if !errors.Is(err, workers.ErrStopped) {
				s.sendError(err)
			}
			return
		}
		s.stats.Promoted.Add(1)
	}
}

// sendError sends an error to the errors channel if it's not nil.
func (s *Scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}
