package metadata

import (
	"container/list"
	"encoding/json"
	"sync"

	"github.com/example/annotation-sync/internal/operation"
	"github.com/example/annotation-sync/internal/types"
)

type cacheKey struct {
	Track     types.TrackID
	Feature   string
	Operation operation.Name
}

type cacheEntry struct {
	key  cacheKey
	body json.RawMessage
}

// queryCache keeps the most recently used query results.
type queryCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[cacheKey]*list.Element
}

func newQueryCache(capacity int) *queryCache {
	if capacity < 1 {
		capacity = 1
	}
	return &queryCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

func (c *queryCache) Get(key cacheKey) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(element)
	return cloneBody(element.Value.(cacheEntry).body), true
}

func (c *queryCache) Put(key cacheKey, body json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry{key: key, body: cloneBody(body)}
	if element, ok := c.items[key]; ok {
		element.Value = entry
		c.ll.MoveToFront(element)
		return
	}

	c.items[key] = c.ll.PushFront(entry)
	if c.ll.Len() > c.capacity {
		if last := c.ll.Back(); last != nil {
			c.ll.Remove(last)
			delete(c.items, last.Value.(cacheEntry).key)
		}
	}
}

// DropTrack evicts every entry of track and returns how many were removed.
func (c *queryCache) DropTrack(track types.TrackID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, element := range c.items {
		if key.Track != track {
			continue
		}
		c.ll.Remove(element)
		delete(c.items, key)
		removed++
	}
	return removed
}

func (c *queryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func cloneBody(body json.RawMessage) json.RawMessage {
	if body == nil {
		return nil
	}
	clone := make(json.RawMessage, len(body))
	copy(clone, body)
	return clone
}
