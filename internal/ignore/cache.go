package ignore

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheSize bounds the number of resolved roots kept in memory, preventing
// unbounded growth in long-running daemon processes that reconcile many
// registered codebases (spec §4.9).
const cacheSize = 256

// Cache memoizes Resolver construction per root so repeated reconciliation
// passes over the same codebase don't re-read and re-compile ignore files
// on every cycle.
type Cache struct {
	globalIgnoreFile string
	logger           *slog.Logger
	resolvers        *lru.Cache[string, *Resolver]
}

// NewCache creates a Cache backed by an LRU of cacheSize roots.
func NewCache(globalIgnoreFile string, logger *slog.Logger) (*Cache, error) {
	resolvers, err := lru.New[string, *Resolver](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Cache{globalIgnoreFile: globalIgnoreFile, logger: logger, resolvers: resolvers}, nil
}

// Get returns the cached Resolver for root, resolving and caching it on
// first use.
func (c *Cache) Get(root string) *Resolver {
	if r, ok := c.resolvers.Get(root); ok {
		return r
	}
	r := Resolve(root, c.globalIgnoreFile, c.logger)
	c.resolvers.Add(root, r)
	return r
}

// Invalidate drops the cached Resolver for root, forcing the next Get to
// re-read its ignore files. Called when a `.gitignore` change is detected
// (spec §4.9 differential reconciliation).
func (c *Cache) Invalidate(root string) {
	c.resolvers.Remove(root)
}
