package expr

import (
	"container/list"
	"sync"
)

// astCache is a thread-safe LRU cache of parsed expression ASTs keyed
// by source text, shaped after the teacher engine's compiled-program
// LRU for the same reason it exists there: edge conditions and IF
// conditions are re-evaluated on every node completion that reaches
// them, and re-lexing/re-parsing identical source on every call is
// wasted work now that parsing is hand-rolled instead of delegated to
// a library's own compile cache.
type astCache struct {
	capacity int
	mu       sync.RWMutex
	entries  map[string]*list.Element
	order    *list.List
}

type astCacheEntry struct {
	key string
	ast node
}

func newASTCache(capacity int) *astCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &astCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

var defaultCache = newASTCache(256)

// parse returns the cached AST for src, parsing and caching it on a
// miss.
func (c *astCache) parse(src string) (node, error) {
	if n, ok := c.get(src); ok {
		return n, nil
	}
	n, err := parse(src)
	if err != nil {
		return nil, err
	}
	c.put(src, n)
	return n, nil
}

func (c *astCache) get(key string) (node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*astCacheEntry).ast, true
}

func (c *astCache) put(key string, n node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*astCacheEntry).ast = n
		return
	}
	el := c.order.PushFront(&astCacheEntry{key: key, ast: n})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*astCacheEntry).key)
		}
	}
}

func (c *astCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
