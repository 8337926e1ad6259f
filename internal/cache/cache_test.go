package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ivoronin/dupesniff/internal/fingerprint"
	"github.com/ivoronin/dupesniff/internal/types"
)

const testFP fingerprint.Fingerprint = 0x0123456789abcdef

func TestCacheDisabled(t *testing.T) {
	c, err := Open("", fingerprint.DefaultBlockSize)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	if c.Enabled() {
		t.Error("Enabled() = true for empty path")
	}

	fe := &types.FileEntry{Path: "/test/file", Size: 100, Ino: 1234, ModTime: time.Now()}

	// Store should be no-op when disabled
	if err := c.Store(fe, testFP); err != nil {
		t.Errorf("Store() on disabled cache: %v", err)
	}

	if _, ok, _ := c.Lookup(fe); ok {
		t.Error("Lookup() on disabled cache hit")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")

	// First run: store entries
	c1, err := Open(cachePath, fingerprint.DefaultBlockSize)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	fe := &types.FileEntry{
		Path:    "/test/file.txt",
		Size:    1024,
		Ino:     12345,
		ModTime: time.Unix(1609459200, 0),
	}
	if err := c1.Store(fe, testFP); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Second run: lookup entries
	c2, err := Open(cachePath, fingerprint.DefaultBlockSize)
	if err != nil {
		t.Fatalf("Open() second time failed: %v", err)
	}
	defer func() { _ = c2.Close() }()

	fp, ok, err := c2.Lookup(fe)
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if !ok {
		t.Fatal("Lookup() missed, want hit")
	}
	if fp != testFP {
		t.Errorf("Lookup() = %v, want %v", fp, testFP)
	}
}

// TestCacheMiss tests that any change in the key fields misses.
func TestCacheMiss(t *testing.T) {
	base := types.FileEntry{Path: "/test/file.txt", Size: 1024, Ino: 12345, ModTime: time.Unix(1609459200, 0)}

	tests := []struct {
		name   string
		mutate func(*types.FileEntry)
	}{
		{"mtime", func(e *types.FileEntry) { e.ModTime = e.ModTime.Add(time.Second) }},
		{"size", func(e *types.FileEntry) { e.Size = 2048 }},
		// Simulates: file deleted, new file created with same path (different inode)
		{"inode", func(e *types.FileEntry) { e.Ino = 99999 }},
		{"path", func(e *types.FileEntry) { e.Path = "/test/renamed.txt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cachePath := filepath.Join(t.TempDir(), "cache.db")

			c1, _ := Open(cachePath, fingerprint.DefaultBlockSize)
			orig := base
			_ = c1.Store(&orig, testFP)
			_ = c1.Close()

			c2, _ := Open(cachePath, fingerprint.DefaultBlockSize)
			defer func() { _ = c2.Close() }()

			changed := base
			tt.mutate(&changed)
			if _, ok, _ := c2.Lookup(&changed); ok {
				t.Errorf("Lookup() with different %s hit, want miss", tt.name)
			}
		})
	}
}

// TestCacheMissOnBlockSizeChange tests that a different block size invalidates entries.
func TestCacheMissOnBlockSizeChange(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	fe := &types.FileEntry{Path: "/test/file.txt", Size: 1024, Ino: 1, ModTime: time.Now()}

	c1, _ := Open(cachePath, 4096)
	_ = c1.Store(fe, testFP)
	_ = c1.Close()

	c2, _ := Open(cachePath, 65536)
	defer func() { _ = c2.Close() }()

	if _, ok, _ := c2.Lookup(fe); ok {
		t.Error("Lookup() with different block size hit, want miss")
	}
}

func TestSelfCleaning(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")

	// First run: store two entries
	c1, _ := Open(cachePath, fingerprint.DefaultBlockSize)
	feA := &types.FileEntry{Path: "/a.txt", Size: 100, Ino: 1, ModTime: time.Now()}
	feB := &types.FileEntry{Path: "/b.txt", Size: 200, Ino: 2, ModTime: time.Now()}
	_ = c1.Store(feA, testFP)
	_ = c1.Store(feB, testFP)
	_ = c1.Close()

	// Second run: only lookup feA (feB becomes orphan)
	c2, _ := Open(cachePath, fingerprint.DefaultBlockSize)
	_, _, _ = c2.Lookup(feA) // Hit - will be copied to new DB
	_ = c2.Close()

	// Third run: feB should be gone (self-cleaned)
	c3, _ := Open(cachePath, fingerprint.DefaultBlockSize)
	defer func() { _ = c3.Close() }()

	if _, ok, _ := c3.Lookup(feA); !ok {
		t.Error("feA should exist after self-cleaning")
	}
	if _, ok, _ := c3.Lookup(feB); ok {
		t.Error("feB should have been cleaned")
	}
}

// TestConcurrentStore tests that parallel stores from many workers all persist.
func TestConcurrentStore(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	c1, err := Open(cachePath, fingerprint.DefaultBlockSize)
	if err != nil {
		t.Fatal(err)
	}

	const n = 64
	entries := make([]*types.FileEntry, n)
	for i := range entries {
		entries[i] = &types.FileEntry{Path: fmt.Sprintf("/f%02d", i), Size: int64(i + 1), Ino: uint64(i + 1)}
	}

	var wg sync.WaitGroup
	for i, fe := range entries {
		wg.Go(func() {
			if err := c1.Store(fe, fingerprint.Fingerprint(i)); err != nil {
				t.Errorf("Store(%s) failed: %v", fe.Path, err)
			}
		})
	}
	wg.Wait()
	_ = c1.Close()

	c2, _ := Open(cachePath, fingerprint.DefaultBlockSize)
	defer func() { _ = c2.Close() }()
	for i, fe := range entries {
		fp, ok, _ := c2.Lookup(fe)
		if !ok || fp != fingerprint.Fingerprint(i) {
			t.Errorf("Lookup(%s) = (%v, %v), want (%v, true)", fe.Path, fp, ok, fingerprint.Fingerprint(i))
		}
	}
}

func TestMakeKeyDeterministic(t *testing.T) {
	fe := &types.FileEntry{
		Path:    "/test/file.txt",
		Size:    1024,
		Ino:     12345,
		ModTime: time.Unix(1609459200, 123456789),
	}

	if !bytes.Equal(makeKey(fe, 4096), makeKey(fe, 4096)) {
		t.Error("makeKey() not deterministic")
	}
	if bytes.Equal(makeKey(fe, 4096), makeKey(fe, 8192)) {
		t.Error("makeKey() ignores block size")
	}
}

func TestCacheDirCreation(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "a", "b", "c", "cache.db")

	c, err := Open(nestedPath, fingerprint.DefaultBlockSize)
	if err != nil {
		t.Fatalf("Open() failed with nested path: %v", err)
	}
	_ = c.Close()

	if _, err := os.Stat(filepath.Dir(nestedPath)); os.IsNotExist(err) {
		t.Error("Cache directory was not created")
	}
}
