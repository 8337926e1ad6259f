// Package finder runs one duplicate search end to end.
//
// # Phases
//
//	┌───────┬──────────────────────────────────────┬───────────────────────────┐
//	│ Phase │ Work                                 │ Ends when                 │
//	├───────┼──────────────────────────────────────┼───────────────────────────┤
//	│ scan  │ walk roots, bucket by size, promote  │ scan barrier drained      │
//	│ hash  │ fingerprint promoted candidates      │ hash barrier drained      │
//	│ build │ drain hash index into groups         │ groups returned           │
//	└───────┴──────────────────────────────────────┴───────────────────────────┘
//
// Hashing overlaps the scan: a candidate is fingerprinted as soon as its size
// bucket is promoted. The hash barrier is only awaited after the scan barrier
// has drained, because late same-size files may still be promoted until then.
//
// All run state lives in one Finder value; nothing is package-global.
package finder

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/dupesniff/internal/bucket"
	"github.com/ivoronin/dupesniff/internal/cache"
	"github.com/ivoronin/dupesniff/internal/classify"
	"github.com/ivoronin/dupesniff/internal/fingerprint"
	"github.com/ivoronin/dupesniff/internal/hasher"
	"github.com/ivoronin/dupesniff/internal/progress"
	"github.com/ivoronin/dupesniff/internal/report"
	"github.com/ivoronin/dupesniff/internal/scanner"
	"github.com/ivoronin/dupesniff/internal/types"
	"github.com/ivoronin/dupesniff/internal/workers"
)

// DefaultWorkers caps the pool size when Options.Workers is zero.
const DefaultWorkers = 8

// Options configures a run.
type Options struct {
	Roots        []string
	Workers      int              // Pool cap; actual size is min(NumCPU, Workers)
	MinSize      int64            // Smallest hashable file
	MaxSize      int64            // Largest hashable file, <= 0 for no limit
	Boundary     classify.Boundary
	BlockSize    int64            // Fingerprint block size, 0 for default
	CacheFile    string           // Fingerprint cache, "" to disable
	ShowProgress bool
	ErrCh        chan error // Non-fatal errors; nil to discard
}

// Finder holds the state of one run. Create with New, call Run once.
type Finder struct {
	opts       Options
	classifier *classify.Classifier
	sizes      *bucket.Index[int64]
	hashes     *bucket.Index[fingerprint.Fingerprint]
}

// New validates opts and creates a Finder.
func New(opts Options) (*Finder, error) {
	if len(opts.Roots) == 0 {
		return nil, errors.New("no roots to scan")
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("invalid worker count %d", opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.BlockSize < 0 || opts.BlockSize > fingerprint.MaxBlockSize {
		return nil, fmt.Errorf("invalid block size %d (max %d)", opts.BlockSize, fingerprint.MaxBlockSize)
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = fingerprint.DefaultBlockSize
	}
	if opts.MinSize < 0 {
		return nil, fmt.Errorf("invalid minimum size %d", opts.MinSize)
	}
	if opts.MaxSize > 0 && opts.MaxSize < opts.MinSize {
		return nil, fmt.Errorf("maximum size %d below minimum size %d", opts.MaxSize, opts.MinSize)
	}

	return &Finder{
		opts:       opts,
		classifier: classify.New(opts.MinSize, opts.MaxSize, opts.Boundary),
		sizes:      bucket.New[int64](bucket.DefaultShards),
		hashes:     bucket.New[fingerprint.Fingerprint](bucket.DefaultShards),
	}, nil
}

// Stats summarizes a finished run.
type Stats struct {
	Roots      int64         // Roots actually scanned
	Files      int64         // Files passing classification
	Candidates int64         // Files sent to hashing
	Hashed     int64         // Files fingerprinted (including cache hits)
	Cached     int64         // Fingerprints answered by the cache
	Failed     int64         // Hash tasks that failed (read error or panic)
	BytesRead  int64         // Bytes read from disk while hashing
	Duplicates int           // Paths across all groups
	Groups     int           // Duplicate groups
	Elapsed    time.Duration // Wall time of Run
}

// Throughput returns bytes read per second. Runs shorter than one second
// report the total bytes read.
func (s *Stats) Throughput() uint64 {
	secs := s.Elapsed.Seconds()
	if secs < 1 {
		secs = 1
	}
	return uint64(float64(s.BytesRead) / secs)
}

func (s *Stats) String() string {
	return fmt.Sprintf("Found %d files, hashed %d (%d cached), totalling %s, and identified %d duplicates in %d groups in %dms at %s/s",
		s.Files, s.Hashed, s.Cached, humanize.Bytes(uint64(s.BytesRead)),
		s.Duplicates, s.Groups, s.Elapsed.Milliseconds(), humanize.Bytes(s.Throughput()))
}

// liveStatus renders the progress line while phases run.
type liveStatus struct {
	scan *scanner.Stats
	hash *hasher.Stats
}

func (l liveStatus) String() string {
	return l.scan.String() + "; " + l.hash.String()
}

// Run executes the scan and hash phases and returns the duplicate groups.
// If ctx is cancelled, in-flight work finishes, no groups are built and the
// context error is returned together with the partial Stats.
func (f *Finder) Run(ctx context.Context) (types.DuplicateGroups, *Stats, error) {
	start := time.Now()
	size := min(runtime.NumCPU(), f.opts.Workers)

	fpCache, err := cache.Open(f.opts.CacheFile, int(f.opts.BlockSize))
	if err != nil {
		return types.DuplicateGroups{}, nil, fmt.Errorf("open cache: %w", err)
	}
	defer func() {
		if err := fpCache.Close(); err != nil {
			f.sendError(fmt.Errorf("close cache: %w", err))
		}
	}()

	scanPool, err := workers.New(ctx, size)
	if err != nil {
		return types.DuplicateGroups{}, nil, err
	}
	defer scanPool.Release()
	hashPool, err := workers.New(ctx, size)
	if err != nil {
		return types.DuplicateGroups{}, nil, err
	}
	defer hashPool.Release()

	h := hasher.New(hashPool, f.hashes, fpCache, int(f.opts.BlockSize), f.opts.ErrCh)
	s := scanner.New(f.opts.Roots, f.classifier, scanPool, f.sizes, h, f.opts.ErrCh)

	bar := progress.New(f.opts.ShowProgress)
	live := liveStatus{scan: s.Stats(), hash: h.Stats()}
	bar.Watch(live)

	// Phase 1: scan (hashing already running for promoted sizes)
	if err := s.Run(ctx); err != nil {
		bar.Finish(live)
		return types.DuplicateGroups{}, nil, err
	}
	f.sizes.Clear()
	if n := scanPool.Failed(); n > 0 {
		f.sendError(fmt.Errorf("%d directory tasks failed", n))
	}

	// Phase 2: drain hashing
	if err := h.Wait(); err != nil {
		bar.Finish(live)
		return types.DuplicateGroups{}, nil, err
	}
	bar.Finish(live)

	stats := &Stats{
		Roots:      s.Stats().Roots.Load(),
		Files:      s.Stats().Files.Load(),
		Candidates: s.Stats().Promoted.Load(),
		Hashed:     h.Stats().Files.Load(),
		Cached:     h.Stats().Cached.Load(),
		Failed:     hashPool.Failed(),
		BytesRead:  h.Stats().Bytes.Load(),
	}
	if err := ctx.Err(); err != nil {
		f.hashes.Clear()
		stats.Elapsed = time.Since(start)
		return types.DuplicateGroups{}, stats, err
	}

	// Phase 3: build groups
	groups := report.Build(f.hashes)
	stats.Groups = groups.Len()
	stats.Duplicates = types.CountPaths(groups)
	stats.Elapsed = time.Since(start)
	return groups, stats, nil
}

// sendError sends an error to the errors channel if it's not nil.
func (f *Finder) sendError(err error) {
	if f.opts.ErrCh != nil {
		f.opts.ErrCh <- err
	}
}
