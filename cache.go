package pgtranslate

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of statements kept when WithCache is not given.
const DefaultCacheSize = 512

// statementCache keeps translated statements by query fingerprint. Two
// queries differing only in parameter values share an entry.
type statementCache struct {
	entries *lru.Cache[string, *Statement]
}

func newStatementCache(size int) *statementCache {
	if size <= 0 {
		return nil
	}
	entries, err := lru.New[string, *Statement](size)
	if err != nil {
		return nil
	}
	return &statementCache{entries: entries}
}

func (c *statementCache) get(key string) (*Statement, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *statementCache) put(key string, st *Statement) {
	if c == nil {
		return
	}
	c.entries.Add(key, st)
}

func (c *statementCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
