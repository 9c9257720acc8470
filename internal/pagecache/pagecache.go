// Package pagecache implements the read-only mapped-page cache: a
// bounded LRU of disk-mapped read regions keyed by page-aligned file
// offset, used by the log store for cold reads of records that have
// scrolled out of the circular write window (spec.md §4.3).
//
// Structurally this is the teacher's storage.BufferPool LRU — a map
// plus an intrusive doubly linked list ordered by recency — adapted
// from fixed single pages keyed by page id to variable-length mmap
// spans keyed by page-aligned offset.
package pagecache

import (
	"fmt"

	"github.com/kvslite-go/kvslite/internal/mmfile"
)

// DefaultCapacityPages is kNumSwapPage from spec.md §3.
const DefaultCapacityPages = 2048

type node struct {
	pageOffset int64
	mapping    *mmfile.Mapping
	nPages     int
	prev, next *node
}

// Cache is a bounded LRU of read-only mmap'd spans.
type Cache struct {
	f             *mmfile.File
	capacityPages int
	mappedPages   int
	nodes         map[int64]*node
	head, tail    *node // head.next = MRU, tail.prev = LRU
}

// New creates a read-only page cache over f with room for capacityPages
// pages. If capacityPages <= 0, DefaultCapacityPages is used.
func New(f *mmfile.File, capacityPages int) *Cache {
	if capacityPages <= 0 {
		capacityPages = DefaultCapacityPages
	}
	c := &Cache{
		f:             f,
		capacityPages: capacityPages,
		nodes:         make(map[int64]*node),
	}
	c.head = &node{}
	c.tail = &node{}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// GetPage returns the bytes covering [addr, addr+size) of the
// underlying file, mapping in (and evicting LRU victims as needed) if
// not already resident. The returned slice is only valid until the next
// call that might evict its backing mapping; callers must copy out what
// they need before that.
func (c *Cache) GetPage(addr int64, size int) ([]byte, error) {
	pageSize := int64(c.f.PageSize())
	pageOffset := addr / pageSize
	within := int(addr - pageOffset*pageSize)
	needPages := (within + size + int(pageSize) - 1) / int(pageSize)

	if n, ok := c.nodes[pageOffset]; ok {
		if n.nPages >= needPages {
			c.moveToFront(n)
			return n.mapping.Bytes()[within : within+size], nil
		}
		// Cached but too small: evict and fall through to a fresh load.
		c.evictNode(n)
	}

	for c.mappedPages+needPages > c.capacityPages && c.tail.prev != c.head {
		c.evictNode(c.tail.prev)
	}

	m, err := c.f.LoadReadOnly(pageOffset, needPages)
	if err != nil {
		return nil, fmt.Errorf("pagecache: load offset=%d pages=%d: %w", pageOffset, needPages, err)
	}

	n := &node{pageOffset: pageOffset, mapping: m, nPages: needPages}
	c.nodes[pageOffset] = n
	c.mappedPages += needPages
	c.addToFront(n)

	return m.Bytes()[within : within+size], nil
}

// Close releases every cached mapping.
func (c *Cache) Close() error {
	var firstErr error
	for _, n := range c.nodes {
		if err := n.mapping.Evict(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.nodes = make(map[int64]*node)
	c.mappedPages = 0
	c.head.next = c.tail
	c.tail.prev = c.head
	return firstErr
}

func (c *Cache) evictNode(n *node) {
	c.remove(n)
	delete(c.nodes, n.pageOffset)
	c.mappedPages -= n.nPages
	_ = n.mapping.Evict()
}

func (c *Cache) moveToFront(n *node) {
	c.remove(n)
	c.addToFront(n)
}

func (c *Cache) addToFront(n *node) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

func (c *Cache) remove(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}
