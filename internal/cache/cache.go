// Package cache persists content fingerprints between runs.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ivoronin/dupesniff/internal/fingerprint"
	"github.com/ivoronin/dupesniff/internal/types"
)

const (
	bucketName = "fingerprints"
	valueSize  = 8
)

// Cache provides persistent caching of file fingerprints using BoltDB.
// Implements self-cleaning: each run creates a new database, only used entries survive.
type Cache struct {
	readDB    *bolt.DB // Existing cache (read-only)
	writeDB   *bolt.DB // New cache (write) - BoltDB locks this file
	path      string   // Final path (for atomic swap)
	blockSize int64    // Part of every key: the chain depends on it
	enabled   bool
}

// Open opens existing cache for reading and creates new cache for writing.
// BoltDB's built-in file locking on .new file prevents concurrent instances.
// Returns disabled cache if path is empty.
func Open(path string, blockSize int) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{path: path, blockSize: int64(blockSize), enabled: true}
	var err error

	// Open existing cache for reading (if exists)
	if _, statErr := os.Stat(path); statErr == nil {
		c.readDB, err = bolt.Open(path, 0o600, &bolt.Options{
			ReadOnly: true,
			Timeout:  1 * time.Second,
		})
		if err != nil {
			// Can't open existing - continue without read cache
			c.readDB = nil
		}
	}

	// Create new cache for writing - BoltDB locks this file
	newPath := path + ".new"
	c.writeDB, err = bolt.Open(newPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Enabled reports whether the cache is backed by a database.
func (c *Cache) Enabled() bool { return c.enabled }

// Close closes both databases and atomically replaces old with new.
// Only replaces if write database closed successfully to avoid data loss.
func (c *Cache) Close() error {
	var errs []error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
		c.readDB = nil
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			errs = append(errs, err)
		} else if err := os.Rename(c.path+".new", c.path); err != nil {
			errs = append(errs, err)
		}
		c.writeDB = nil
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

const keyVersion byte = 1 // Increment when key format changes

// makeKey builds deterministic byte key for BoltDB lookup.
// Key = ver(1) + path + NUL + fileSize(8) + ino(8) + mtime(8) + blockSize(8)
func makeKey(e *types.FileEntry, blockSize int64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteString(e.Path)
	buf.WriteByte(0) // NUL separator
	_ = binary.Write(buf, binary.BigEndian, e.Size)
	_ = binary.Write(buf, binary.BigEndian, e.Ino)
	_ = binary.Write(buf, binary.BigEndian, e.ModTime.UnixNano())
	_ = binary.Write(buf, binary.BigEndian, blockSize)
	return buf.Bytes()
}

// Lookup retrieves a cached fingerprint.
// Key = (path, size, ino, mtime, blockSize) - any change = cache miss.
// On HIT: copies entry to writeDB (self-cleaning).
func (c *Cache) Lookup(e *types.FileEntry) (fingerprint.Fingerprint, bool, error) {
	if !c.enabled || c.readDB == nil {
		return 0, false, nil
	}

	key := makeKey(e, c.blockSize)
	var fp fingerprint.Fingerprint
	var found bool

	err := c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		if data := b.Get(key); len(data) == valueSize {
			fp = fingerprint.Fingerprint(binary.BigEndian.Uint64(data))
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("cache lookup: %w", err)
	}
	if !found {
		return 0, false, nil
	}

	// Self-cleaning: copy valid entry to new database
	if err := c.Store(e, fp); err != nil {
		return fp, true, err
	}
	return fp, true, nil
}

// Store saves a fingerprint to the new database.
// Safe for concurrent use; concurrent stores are coalesced into one transaction.
func (c *Cache) Store(e *types.FileEntry, fp fingerprint.Fingerprint) error {
	if !c.enabled || c.writeDB == nil {
		return nil
	}

	value := binary.BigEndian.AppendUint64(nil, uint64(fp))
	key := makeKey(e, c.blockSize)
	err := c.writeDB.Batch(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
