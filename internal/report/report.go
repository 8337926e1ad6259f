// Package report turns the drained hash index into duplicate groups and
// persists them in fdupes format.
//
// # Output Format
//
// One absolute path per line, exactly one blank line between groups:
//
//	/data/a.iso
//	/mnt/b.iso
//
//	/data/x.bin
//	/data/y.bin
//	/data/z.bin
//
// Groups are ordered by their first path and paths within a group are sorted,
// so identical trees always produce byte-identical reports.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/moby/sys/atomicwriter"

	"github.com/ivoronin/dupesniff/internal/bucket"
	"github.com/ivoronin/dupesniff/internal/fingerprint"
	"github.com/ivoronin/dupesniff/internal/types"
)

// BackupSuffix is appended to an existing report before it is replaced.
const BackupSuffix = ".bak"

// Build drains index and returns every bucket with at least two members as a
// DuplicateGroup. Singleton buckets are discarded. The index is empty afterwards.
func Build(index *bucket.Index[fingerprint.Fingerprint]) types.DuplicateGroups {
	var groups []types.DuplicateGroup
	index.Drain(func(_ fingerprint.Fingerprint, members []*types.FileEntry) {
		if len(members) < 2 {
			return
		}
		paths := make([]string, len(members))
		for i, m := range members {
			paths[i] = m.Path
		}
		groups = append(groups, types.NewDuplicateGroup(paths))
	})
	return types.NewDuplicateGroups(groups)
}

// Write persists groups to path. With zero groups the destination is left
// untouched and Write returns false.
//
// An existing destination is first renamed to path+BackupSuffix; a failed
// rename is logged and the write proceeds. The new report appears atomically.
func Write(path string, groups types.DuplicateGroups) (bool, error) {
	if groups.Len() == 0 {
		return false, nil
	}

	if err := os.Rename(path, path+BackupSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not back up previous report", "path", path, "error", err)
	}

	f, err := atomicwriter.New(path, 0o644)
	if err != nil {
		return false, fmt.Errorf("create report: %w", err)
	}

	w := bufio.NewWriter(f)
	for i, g := range groups.Items() {
		if i > 0 {
			_ = w.WriteByte('\n')
		}
		for _, p := range g.Items() {
			_, _ = w.WriteString(p)
			_ = w.WriteByte('\n')
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("write report: %w", err)
	}
	return true, nil
}
