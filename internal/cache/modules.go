package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edulock/license-gateway/internal/clock"
)

// ErrModuleNotFound covers both unknown names and names off the allow-list,
// so a caller probing for module names learns nothing from the response.
var ErrModuleNotFound = errors.New("module not found")

type ModuleEntry struct {
	Name     string
	Content  []byte
	Hash     string // sha256, hex
	LoadedAt time.Time
}

// ModuleCache serves the fixed set of deliverable plugin modules. Content is
// read once at startup and reloaded lazily on a miss; the hash travels with
// every response so installations can verify integrity.
type ModuleCache struct {
	dir     string
	allowed map[string]bool
	clock   clock.Clock
	logger  *zap.Logger

	mu      sync.Mutex
	entries map[string]*ModuleEntry
}

func NewModuleCache(dir string, allowList []string, clk clock.Clock, logger *zap.Logger) *ModuleCache {
	allowed := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		allowed[name] = true
	}
	return &ModuleCache{
		dir:     dir,
		allowed: allowed,
		clock:   clk,
		logger:  logger,
		entries: make(map[string]*ModuleEntry),
	}
}

// Preload loads every allow-listed module. A module that fails to load is
// logged and skipped; the lazy reload on first request will retry it.
func (c *ModuleCache) Preload() {
	for name := range c.allowed {
		if _, err := c.load(name); err != nil {
			c.logger.Warn("module preload failed",
				zap.String("module", name),
				zap.Error(err),
			)
		}
	}
}

// Get returns the cached entry, reloading from disk on a miss. Unknown names
// are ErrModuleNotFound regardless of what exists on disk.
func (c *ModuleCache) Get(name string) (*ModuleEntry, error) {
	if !c.allowed[name] {
		return nil, ErrModuleNotFound
	}

	c.mu.Lock()
	e, ok := c.entries[name]
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	e, err := c.load(name)
	if err != nil {
		return nil, ErrModuleNotFound
	}
	return e, nil
}

// Serve writes the module body with its content hash and headers that forbid
// intermediary caching. Module content is versioned by redeploy, not by HTTP
// cache semantics.
func (c *ModuleCache) Serve(w http.ResponseWriter, name string) error {
	e, err := c.Get(name)
	if err != nil {
		return err
	}

	h := w.Header()
	h.Set("Content-Type", "application/javascript; charset=utf-8")
	h.Set("X-Module-Hash", e.Hash)
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")

	_, err = w.Write(e.Content)
	return err
}

func (c *ModuleCache) load(name string) (*ModuleEntry, error) {
	content, err := os.ReadFile(filepath.Join(c.dir, name+".js"))
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(content)
	e := &ModuleEntry{
		Name:     name,
		Content:  content,
		Hash:     hex.EncodeToString(sum[:]),
		LoadedAt: c.clock.Now(),
	}

	c.mu.Lock()
	c.entries[name] = e
	c.mu.Unlock()

	return e, nil
}
