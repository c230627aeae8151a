package throttling

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

const (
	// DirName is the directory under the cache root owned by DiskCache.
	DirName = "throttling"
	// FileName is the single record inside DirName.
	FileName = "factor"
)

// Cache stores the single throttling factor shared by all estimations.
//
// Read never fails: a missing or malformed record is reported as absent.
// Clear forgets process-local state only; durable storage is untouched.
type Cache interface {
	Read() (Factor, bool)
	Write(f Factor) error
	Clear()
}

// DiskCache is a Cache persisted as <root>/throttling/factor with an
// in-memory mirror for repeated reads within one process.
type DiskCache struct {
	fs  afero.Fs
	dir string

	mu  sync.RWMutex
	mem Factor // 0 = not mirrored
}

// NewDiskCache returns a DiskCache rooted at root on fsys.
// A nil fsys means the real filesystem.
func NewDiskCache(fsys afero.Fs, root string) *DiskCache {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &DiskCache{fs: fsys, dir: filepath.Join(root, DirName)}
}

// Dir returns the directory holding the record.
func (c *DiskCache) Dir() string { return c.dir }

// Path returns the location of the durable record.
func (c *DiskCache) Path() string { return filepath.Join(c.dir, FileName) }

// Read returns the mirrored factor, or loads it from disk. Misses are not
// mirrored, so a record written by another process is picked up later.
func (c *DiskCache) Read() (Factor, bool) {
	c.mu.RLock()
	f := c.mem
	c.mu.RUnlock()
	if f.Valid() {
		return f, true
	}

	b, err := afero.ReadFile(c.fs, c.Path())
	if err != nil {
		return 0, false
	}
	f, err = ParseFactor(string(b))
	if err != nil {
		return 0, false
	}

	c.mu.Lock()
	c.mem = f
	c.mu.Unlock()
	return f, true
}

// Write persists f by writing a temporary file next to the record and
// renaming it into place, so readers see either the old or the new value.
// The mirror is only updated once the record is durable.
func (c *DiskCache) Write(f Factor) error {
	if !f.Valid() {
		return fmt.Errorf("write %v: %w", float64(f), ErrInvalidFactor)
	}
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ErrCacheWrite, c.dir, err)
	}

	tmp, err := afero.TempFile(c.fs, c.dir, "."+FileName+"-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	name := tmp.Name()
	_, werr := tmp.WriteString(f.String() + "\n")
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = c.fs.Remove(name)
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if err := c.fs.Rename(name, c.Path()); err != nil {
		_ = c.fs.Remove(name)
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}

	c.mu.Lock()
	c.mem = f
	c.mu.Unlock()
	return nil
}

// Clear drops the in-memory mirror.
func (c *DiskCache) Clear() {
	c.mu.Lock()
	c.mem = 0
	c.mu.Unlock()
}

// Purge removes the whole throttling directory and the mirror. A missing
// directory is not an error.
func (c *DiskCache) Purge() error {
	c.Clear()
	if err := c.fs.RemoveAll(c.dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("throttling: purge %s: %w", c.dir, err)
	}
	return nil
}

// MemoryCache is a process-local Cache with no durable storage.
type MemoryCache struct {
	mu sync.RWMutex
	f  Factor
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache { return &MemoryCache{} }

func (c *MemoryCache) Read() (Factor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.f, c.f.Valid()
}

func (c *MemoryCache) Write(f Factor) error {
	if !f.Valid() {
		return fmt.Errorf("write %v: %w", float64(f), ErrInvalidFactor)
	}
	c.mu.Lock()
	c.f = f
	c.mu.Unlock()
	return nil
}

// Clear forgets the value; there is nothing durable to fall back to.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.f = 0
	c.mu.Unlock()
}
