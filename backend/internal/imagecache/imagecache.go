package imagecache

import (
	"container/list"
	"image"
	"math"
	"sync"

	"vincit.fi/image-viewer/common/logger"
)

const (
	// DefaultBaseCapacity is the number of images kept on machines with less than 15GB of RAM
	DefaultBaseCapacity = 5

	bytesPerPixel = 4
)

type entry struct {
	key      string
	img      image.Image
	width    int
	height   int
	byteSize int64
}

// ImageCache is a bounded least-recently-used map from image path to the
// decoded bitmap. Pinned keys are never evicted, so the cache may hold more
// entries than its capacity while everything else is pinned.
type ImageCache struct {
	mux      sync.Mutex
	capacity int
	entries  map[string]*list.Element
	recency  *list.List
	pinned   map[string]struct{}
	byteSize int64
	metrics  Metrics
}

func NewImageCache(capacity int, metrics Metrics) *ImageCache {
	if capacity < 1 {
		capacity = 1
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	logger.Debug.Printf("Initialize image cache with capacity %d", capacity)
	return &ImageCache{
		capacity: capacity,
		entries:  map[string]*list.Element{},
		recency:  list.New(),
		pinned:   map[string]struct{}{},
		metrics:  metrics,
	}
}

// CapacityForMemory scales the base capacity with the amount of system memory
func CapacityForMemory(ramGB float64, baseCapacity int) int {
	if baseCapacity < 1 {
		baseCapacity = DefaultBaseCapacity
	}
	switch {
	case ramGB >= 31:
		return baseCapacity * 4
	case ramGB >= 23:
		return baseCapacity * 3
	case ramGB >= 15:
		return baseCapacity * 2
	default:
		return baseCapacity
	}
}

func (s *ImageCache) Get(key string) (image.Image, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if element, ok := s.entries[key]; ok {
		s.recency.MoveToFront(element)
		s.metrics.Hit()
		return element.Value.(*entry).img, true
	}
	s.metrics.Miss()
	return nil, false
}

func (s *ImageCache) Contains(key string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	_, ok := s.entries[key]
	return ok
}

func (s *ImageCache) Put(key string, img image.Image) {
	if img == nil {
		return
	}
	s.mux.Lock()
	defer s.mux.Unlock()

	bounds := img.Bounds()
	newEntry := &entry{
		key:      key,
		img:      img,
		width:    bounds.Dx(),
		height:   bounds.Dy(),
		byteSize: int64(bounds.Dx()) * int64(bounds.Dy()) * bytesPerPixel,
	}

	if element, ok := s.entries[key]; ok {
		s.byteSize -= element.Value.(*entry).byteSize
		element.Value = newEntry
		s.recency.MoveToFront(element)
	} else {
		s.entries[key] = s.recency.PushFront(newEntry)
	}
	s.byteSize += newEntry.byteSize

	if overflow := len(s.entries) - s.capacity; overflow > 0 {
		removed := s.evictLeastRecentlyUsed(overflow)
		if removed > 0 {
			s.metrics.Evict(EvictCapacity, removed)
		}
		if removed < overflow {
			logger.Debug.Printf("Image cache over capacity (%d/%d), remaining entries are pinned", len(s.entries), s.capacity)
		}
	}
	s.metrics.Size(len(s.entries), s.byteSize)
}

// Pin protects keys from eviction. Keys that are not cached yet are
// protected once they get added.
func (s *ImageCache) Pin(keys ...string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, key := range keys {
		s.pinned[key] = struct{}{}
	}
}

func (s *ImageCache) Unpin(keys ...string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, key := range keys {
		delete(s.pinned, key)
	}
	s.enforceCapacity()
}

// SetPinned replaces the whole pinned set
func (s *ImageCache) SetPinned(keys []string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.pinned = make(map[string]struct{}, len(keys))
	for _, key := range keys {
		s.pinned[key] = struct{}{}
	}
	s.enforceCapacity()
}

func (s *ImageCache) IsPinned(key string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	_, ok := s.pinned[key]
	return ok
}

// Shrink removes ceil(Len() * fraction) least recently used entries that
// are not pinned and returns how many were actually removed.
func (s *ImageCache) Shrink(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	if fraction > 1 {
		fraction = 1
	}
	s.mux.Lock()
	defer s.mux.Unlock()

	toRemove := int(math.Ceil(float64(len(s.entries)) * fraction))
	removed := s.evictLeastRecentlyUsed(toRemove)
	if removed > 0 {
		s.metrics.Evict(EvictShrink, removed)
		s.metrics.Size(len(s.entries), s.byteSize)
	}
	logger.Debug.Printf("Image cache shrunk by %d entries (requested %d)", removed, toRemove)
	return removed
}

// Clear removes all entries and pins
func (s *ImageCache) Clear() {
	s.mux.Lock()
	defer s.mux.Unlock()
	removed := len(s.entries)
	s.entries = map[string]*list.Element{}
	s.recency.Init()
	s.pinned = map[string]struct{}{}
	s.byteSize = 0
	if removed > 0 {
		s.metrics.Evict(EvictClear, removed)
	}
	s.metrics.Size(0, 0)
}

func (s *ImageCache) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.entries)
}

func (s *ImageCache) Capacity() int {
	return s.capacity
}

func (s *ImageCache) GetByteSize() int64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.byteSize
}

func (s *ImageCache) GetSizeInMB() float64 {
	return float64(s.GetByteSize()) / (1024 * 1024)
}

// Keys returns the cached keys from the most to the least recently used
func (s *ImageCache) Keys() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	keys := make([]string, 0, len(s.entries))
	for element := s.recency.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*entry).key)
	}
	return keys
}

func (s *ImageCache) enforceCapacity() {
	if overflow := len(s.entries) - s.capacity; overflow > 0 {
		if removed := s.evictLeastRecentlyUsed(overflow); removed > 0 {
			s.metrics.Evict(EvictCapacity, removed)
			s.metrics.Size(len(s.entries), s.byteSize)
		}
	}
}

// Must be called while holding the lock
func (s *ImageCache) evictLeastRecentlyUsed(count int) int {
	removed := 0
	element := s.recency.Back()
	for element != nil && removed < count {
		previous := element.Prev()
		evicted := element.Value.(*entry)
		if _, isPinned := s.pinned[evicted.key]; !isPinned {
			s.recency.Remove(element)
			delete(s.entries, evicted.key)
			s.byteSize -= evicted.byteSize
			logger.Trace.Printf("Evicted '%s' from image cache", evicted.key)
			removed++
		}
		element = previous
	}
	return removed
}
