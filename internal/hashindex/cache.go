package hashindex

import (
	"fmt"
	"sync"

	"github.com/kvslite-go/kvslite/internal/mmfile"
)

// pageSlot is a mapped page (index cache slot) from spec.md §3:
// {dirty, slot_idx, dir_idx, lru_link, page_lock, page_ptr}. page_lock
// is re-entrant only in the sense that the same (single) foreground
// writer may re-enter it while already holding it; since the spec's
// concurrency model has exactly one active index writer (spec.md §4.1,
// §5), this collapses to a plain recursion-safe counter rather than a
// real blocking primitive shared across goroutines — see DESIGN.md.
type pageSlot struct {
	fileOffset uint64
	page       *HashPage
	mapping    *mmfile.Mapping
	dirty      bool
	lockDepth  int
	prev, next *pageSlot
}

func (s *pageSlot) Lock()   { s.lockDepth++ }
func (s *pageSlot) Unlock() { s.lockDepth-- }

// PageCache is the fixed-size LRU pool of mapped hash pages. The LRU
// tail is the sole contended resource under concurrent eviction per
// spec.md §4.1 ("Concurrency"); kvslite's single-foreground-writer
// discipline means tailMu is mechanical, not load-bearing, but it keeps
// the shape the spec describes.
type PageCache struct {
	f        *mmfile.File
	capacity int
	slots    map[uint64]*pageSlot
	head, tail *pageSlot
	tailMu   sync.Mutex
}

func NewPageCache(f *mmfile.File, capacity int) *PageCache {
	if capacity <= 0 {
		capacity = NIndexSlots
	}
	c := &PageCache{f: f, capacity: capacity, slots: make(map[uint64]*pageSlot)}
	c.head = &pageSlot{}
	c.tail = &pageSlot{}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Acquire loads (mapping in if necessary, evicting the LRU tail if the
// pool is full) the page at fileOffset and returns it locked. Callers
// must call Release when done.
func (c *PageCache) Acquire(fileOffset uint64) (*pageSlot, error) {
	if s, ok := c.slots[fileOffset]; ok {
		c.moveToFront(s)
		s.Lock()
		return s, nil
	}

	c.tailMu.Lock()
	for len(c.slots) >= c.capacity && c.tail.prev != c.head {
		victim := c.tail.prev
		if err := c.evict(victim); err != nil {
			c.tailMu.Unlock()
			return nil, err
		}
	}
	c.tailMu.Unlock()

	m, err := c.f.Load(int64(MetadataPages)+int64(fileOffset), 1)
	if err != nil {
		return nil, fmt.Errorf("hashindex: load page %d: %w", fileOffset, err)
	}

	s := &pageSlot{fileOffset: fileOffset, page: NewHashPage(m.Bytes()), mapping: m}
	c.slots[fileOffset] = s
	c.addToFront(s)
	s.Lock()
	return s, nil
}

// Release unlocks s; if markDirty is set the page is flagged for the
// next flush.
func (s *pageSlot) Release(markDirty bool) {
	if markDirty {
		s.dirty = true
	}
	s.Unlock()
}

func (c *PageCache) evict(s *pageSlot) error {
	c.remove(s)
	delete(c.slots, s.fileOffset)
	if s.dirty {
		if err := s.mapping.Flush(); err != nil {
			return err
		}
	}
	return s.mapping.Evict()
}

// FlushOne flushes and clears the dirty flag of a single dirty page
// (BackgroundFlush from spec.md §4.1; advisory, left unscheduled by
// default per the reference design).
func (c *PageCache) FlushOne() (bool, error) {
	for n := c.tail.prev; n != c.head; n = n.prev {
		if n.dirty {
			if err := n.mapping.Flush(); err != nil {
				return false, err
			}
			n.dirty = false
			return true, nil
		}
	}
	return false, nil
}

// Checkpoint flushes every dirty page.
func (c *PageCache) Checkpoint() error {
	for _, s := range c.slots {
		if s.dirty {
			if err := s.mapping.Flush(); err != nil {
				return err
			}
			s.dirty = false
		}
	}
	return nil
}

// Close evicts every resident page.
func (c *PageCache) Close() error {
	var firstErr error
	for _, s := range c.slots {
		if err := c.evict(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *PageCache) moveToFront(s *pageSlot) {
	c.remove(s)
	c.addToFront(s)
}

func (c *PageCache) addToFront(s *pageSlot) {
	s.next = c.head.next
	s.prev = c.head
	c.head.next.prev = s
	c.head.next = s
}

func (c *PageCache) remove(s *pageSlot) {
	s.prev.next = s.next
	s.next.prev = s.prev
}
