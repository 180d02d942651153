// Package readcache holds the most recent snapshot each successful mutation
// produced, so plain reads skip the authoritative store. It is best-effort:
// a read may observe a snapshot older than the latest mutation, and nothing
// here is ever consulted for mutation decisions.
package readcache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scbrf/comments/internal/thread"
)

const DefaultSize = 1024

// Cache is a fixed-size LRU of article snapshots keyed by article id.
type Cache struct {
	lru *lru.Cache[string, *thread.ArticleState]
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	l, err := lru.New[string, *thread.ArticleState](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Get returns the last cached snapshot for the article, or nil.
func (c *Cache) Get(articleID string) *thread.ArticleState {
	v, ok := c.lru.Get(articleID)
	if !ok {
		return nil
	}
	return v
}

// Put records the snapshot a successful Apply returned. Callers must treat
// cached states as read-only.
func (c *Cache) Put(articleID string, state *thread.ArticleState) {
	if state == nil {
		return
	}
	c.lru.Add(articleID, state)
}
