package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"borrowsim/internal/diag"
	"borrowsim/internal/script"
	"borrowsim/internal/source"
)

// Current schema version - increment when VerdictPayload format changes
const diskCacheSchemaVersion uint16 = 1

// CacheKey identifies one replay: the script digest plus the replay mode.
type CacheKey [32]byte

// NewCacheKey derives the key for replaying a script with the given digest.
func NewCacheKey(d script.Digest, lexical bool) CacheKey {
	h := sha256.New()
	var hdr [3]byte
	hdr[0] = byte(diskCacheSchemaVersion >> 8)
	hdr[1] = byte(diskCacheSchemaVersion)
	if lexical {
		hdr[2] = 1
	}
	h.Write(hdr[:])
	h.Write(d[:])
	var k CacheKey
	copy(k[:], h.Sum(nil))
	return k
}

// DiskCache stores replay verdicts on disk, keyed by CacheKey.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// VerdictPayload is the cached outcome of a replay.
type VerdictPayload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Name    string
	Summary Summary

	// Diagnostics produced by the replay. Spans are stored without a file;
	// the reader rebinds them to the script being replayed.
	Diagnostics []diag.Diagnostic
}

// OpenDiskCache initializes and returns a disk cache at the standard location.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDiskCacheAt(filepath.Join(base, app))
}

// OpenDiskCacheAt opens (creating if needed) a disk cache rooted at dir.
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) pathFor(key CacheKey) string {
	hexKey := hex.EncodeToString(key[:])
	return filepath.Join(c.dir, "verdicts", hexKey+".mp")
}

// Put serializes and writes a payload to the disk cache.
func (c *DiskCache) Put(key CacheKey, payload *VerdictPayload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	stored := *payload
	stored.Schema = diskCacheSchemaVersion
	stored.Diagnostics = detachSpans(payload.Diagnostics)
	if err = msgpack.NewEncoder(f).Encode(&stored); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads and deserializes a payload from the disk cache. Payloads written
// with another schema version are reported as misses.
func (c *DiskCache) Get(key CacheKey, out *VerdictPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	var payload VerdictPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode cache entry: %w", err)
	}
	if payload.Schema != diskCacheSchemaVersion {
		return false, nil
	}
	*out = payload
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

func detachSpans(in []diag.Diagnostic) []diag.Diagnostic {
	return rebindSpans(in, source.NoFileID)
}

// rebindSpans returns a copy of in whose spans all point at file.
func rebindSpans(in []diag.Diagnostic, file source.FileID) []diag.Diagnostic {
	if len(in) == 0 {
		return nil
	}
	out := make([]diag.Diagnostic, len(in))
	for i, d := range in {
		d.Primary.File = file
		if len(d.Notes) > 0 {
			notes := make([]diag.Note, len(d.Notes))
			for j, n := range d.Notes {
				n.Span.File = file
				notes[j] = n
			}
			d.Notes = notes
		}
		out[i] = d
	}
	return out
}
