package edge

import (
	"container/list"
	"context"
	"net/http"
	"sync"
)

// Response is a complete HTTP response held in memory.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Clone returns a deep copy so cached entries never alias a live response.
func (r *Response) Clone() *Response {
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{Status: r.Status, Header: r.Header.Clone(), Body: body}
}

// Cache stores asset responses keyed by origin request. Implementations must
// be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (*Response, bool, error)
	Put(ctx context.Context, key CacheKey, res *Response) error
}

// MemoryCache is a bounded in-process LRU.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[CacheKey]*list.Element
}

type memoryEntry struct {
	key CacheKey
	res *Response
}

// NewMemoryCache holds at most maxEntries responses; zero or less means unbounded.
func NewMemoryCache(maxEntries int) *MemoryCache {
	return &MemoryCache{
		max:     maxEntries,
		order:   list.New(),
		entries: make(map[CacheKey]*list.Element),
	}
}

// Get returns a copy of the entry under key and marks it recently used.
func (c *MemoryCache) Get(_ context.Context, key CacheKey) (*Response, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*memoryEntry).res.Clone(), true, nil
}

// Put stores a copy of res, evicting the least recently used entry when full.
func (c *MemoryCache) Put(_ context.Context, key CacheKey, res *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*memoryEntry).res = res.Clone()
		c.order.MoveToFront(el)
		return nil
	}
	c.entries[key] = c.order.PushFront(&memoryEntry{key: key, res: res.Clone()})
	for c.max > 0 && c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

// Len reports the number of cached responses.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
