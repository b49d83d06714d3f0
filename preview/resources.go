package preview

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Resource is a displayable blob: an encoded page or a pass-through
// document. It is immutable once stored.
type Resource struct {
	ID          string
	ContentType string
	Width       int
	Height      int
	Data        []byte
	CreatedAt   time.Time
}

// Size returns the payload length in bytes.
func (r *Resource) Size() int64 { return int64(len(r.Data)) }

type resourceItem struct {
	resource   *Resource
	lastAccess time.Time
	pinned     bool
}

// ResourceStore holds resources by ID until they are released. Release is
// idempotent. Pinned resources belong to a live preview and are only
// dropped by Release; the rest are reaped by Run once they go unread for
// maxAge.
type ResourceStore struct {
	mutex    sync.RWMutex
	items    map[string]*resourceItem
	maxAge   time.Duration
	observer Observer
	now      func() time.Time
}

// NewResourceStore creates an empty store. A zero maxAge disables reaping.
func NewResourceStore(maxAge time.Duration, observer Observer) *ResourceStore {
	if observer == nil {
		observer = NopObserver{}
	}
	return &ResourceStore{
		items:    make(map[string]*resourceItem),
		maxAge:   maxAge,
		observer: observer,
		now:      time.Now,
	}
}

// Put stores data under a fresh ID.
func (s *ResourceStore) Put(contentType string, width, height int, data []byte) *Resource {
	now := s.now()
	res := &Resource{
		ID:          uuid.NewString(),
		ContentType: contentType,
		Width:       width,
		Height:      height,
		Data:        data,
		CreatedAt:   now,
	}

	s.mutex.Lock()
	s.items[res.ID] = &resourceItem{resource: res, lastAccess: now}
	s.mutex.Unlock()

	s.observer.RecordResources(1)
	return res
}

// Get returns a live resource and marks it as recently read.
func (s *ResourceStore) Get(id string) (*Resource, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item, exists := s.items[id]
	if !exists {
		return nil, false
	}
	item.lastAccess = s.now()
	return item.resource, true
}

// Pin protects a live resource from reaping until it is released. It
// reports whether the resource was still live.
func (s *ResourceStore) Pin(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item, exists := s.items[id]
	if exists {
		item.pinned = true
	}
	return exists
}

// Release drops a resource. It reports whether the resource was still live;
// releasing an unknown or already released ID is a no-op.
func (s *ResourceStore) Release(id string) bool {
	s.mutex.Lock()
	_, exists := s.items[id]
	delete(s.items, id)
	s.mutex.Unlock()

	if exists {
		s.observer.RecordResources(-1)
	}
	return exists
}

// Stats returns the number of live resources and their total size.
func (s *ResourceStore) Stats() (count int, totalSize int64) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	count = len(s.items)
	for _, item := range s.items {
		totalSize += item.resource.Size()
	}
	return count, totalSize
}

// Run reaps stale resources every interval until ctx is done.
func (s *ResourceStore) Run(ctx context.Context, interval time.Duration) error {
	if s.maxAge <= 0 || interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes unpinned resources not read within maxAge and returns
// how many.
func (s *ResourceStore) cleanup() int {
	if s.maxAge <= 0 {
		return 0
	}

	s.mutex.Lock()
	now := s.now()
	removed := 0
	for id, item := range s.items {
		if !item.pinned && now.Sub(item.lastAccess) > s.maxAge {
			delete(s.items, id)
			removed++
		}
	}
	s.mutex.Unlock()

	if removed > 0 {
		s.observer.RecordResources(-removed)
	}
	return removed
}

// Clear releases every resource.
func (s *ResourceStore) Clear() {
	s.mutex.Lock()
	n := len(s.items)
	s.items = make(map[string]*resourceItem)
	s.mutex.Unlock()

	if n > 0 {
		s.observer.RecordResources(-n)
	}
}
