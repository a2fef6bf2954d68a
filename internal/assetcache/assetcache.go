// Package assetcache is a TTL file cache for asset-search results. Search
// listings from public libraries change slowly, so repeat lookups are
// answered from disk instead of re-asking the host. Generation job state
// must never land here.
package assetcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgebridge/forgebridge/internal/paths"
)

type entry struct {
	Result  json.RawMessage `json:"result"`
	Created time.Time       `json:"created"`
	Expires time.Time       `json:"expires"`
}

// Cache stores command results keyed by command name + parameter hash.
type Cache struct {
	dir string
	ttl time.Duration
}

// New returns a cache rooted at dir. Empty dir selects the XDG cache
// location.
func New(dir string, ttl time.Duration) *Cache {
	if dir == "" {
		dir = filepath.Join(paths.CacheDir(), "assets")
	}
	return &Cache{dir: dir, ttl: ttl}
}

// Get looks up a cached result. Returns false if absent or expired;
// expired and corrupt entries are removed on the way.
func (c *Cache) Get(command string, params json.RawMessage) (json.RawMessage, bool) {
	path := c.entryPath(command, params)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		_ = os.Remove(path)
		return nil, false
	}
	if time.Now().After(e.Expires) {
		_ = os.Remove(path)
		return nil, false
	}
	return e.Result, true
}

// Put stores a result under the cache TTL.
func (c *Cache) Put(command string, params json.RawMessage, result json.RawMessage) error {
	if err := paths.EnsureDir(c.dir); err != nil {
		return err
	}

	now := time.Now()
	e := entry{
		Result:  result,
		Created: now,
		Expires: now.Add(c.ttl),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return os.WriteFile(c.entryPath(command, params), data, 0600)
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Probe checks that the cache directory exists and is writable,
// creating it if needed.
func (c *Cache) Probe() error {
	if err := paths.EnsureDir(c.dir); err != nil {
		return err
	}
	f, err := os.CreateTemp(c.dir, ".probe-*")
	if err != nil {
		return err
	}
	f.Close() //nolint:errcheck
	return os.Remove(f.Name())
}

func (c *Cache) entryPath(command string, params json.RawMessage) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s", command, string(params))
	key := hex.EncodeToString(h.Sum(nil))[:32]
	return filepath.Join(c.dir, key+".json")
}
