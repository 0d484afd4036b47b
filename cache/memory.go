package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/pkg/metrics"
	"github.com/rs/zerolog/log"
)

type memItem struct {
	key     string
	variant string
	entry   *message.Entry
	expires time.Time
}

// MemStore keeps entries in memory, evicting the least recently used
// variant when MaxEntries is exceeded.
type MemStore struct {
	opts Options

	mu sync.Mutex
	// lru holds *memItem, most recently used first
	lru  *list.List
	keys map[string][]*list.Element
}

func NewMemStore(opts Options) *MemStore {
	return &MemStore{
		opts: opts,
		lru:  list.New(),
		keys: make(map[string][]*list.Element),
	}
}

func (m *MemStore) Match(_ context.Context, key string) ([]*message.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []*message.Entry
	for _, el := range m.keys[key] {
		item := el.Value.(*memItem)
		if m.opts.expired(item.expires) {
			continue
		}
		m.lru.MoveToFront(el)
		entries = append(entries, item.entry)
	}
	m.dropExpired(key)
	sortByVariant(entries)
	return entries, nil
}

// Update holds the store lock while fn runs.
func (m *MemStore) Update(_ context.Context, key, variant string, fn UpdateFunc) (*message.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropExpired(key)
	el := m.find(key, variant)
	var current *message.Entry
	if el != nil {
		current = el.Value.(*memItem).entry
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	switch {
	case next == current:
		return current, nil
	case next == nil:
		m.remove(el)
		return nil, nil
	}

	item := &memItem{key: key, variant: variant, entry: next, expires: m.opts.expires(next)}
	if el != nil {
		el.Value = item
		m.lru.MoveToFront(el)
	} else {
		m.keys[key] = append(m.keys[key], m.lru.PushFront(item))
	}
	m.evict()
	return next, nil
}

func (m *MemStore) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, el := range m.keys[key] {
		m.lru.Remove(el)
	}
	delete(m.keys, key)
	return nil
}

func (m *MemStore) Keys(_ context.Context, prefix string, cb func(string)) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.keys))
	for key := range m.keys {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	for _, key := range keys {
		cb(key)
	}
	return nil
}

func (m *MemStore) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len(), nil
}

func (m *MemStore) Close() error {
	return nil
}

func (m *MemStore) find(key, variant string) *list.Element {
	for _, el := range m.keys[key] {
		if el.Value.(*memItem).variant == variant {
			return el
		}
	}
	return nil
}

func (m *MemStore) remove(el *list.Element) {
	if el == nil {
		return
	}
	item := m.lru.Remove(el).(*memItem)
	key := item.key
	elements := m.keys[key]
	for i, e := range elements {
		if e == el {
			elements = append(elements[:i:i], elements[i+1:]...)
			break
		}
	}
	if len(elements) == 0 {
		delete(m.keys, key)
	} else {
		m.keys[key] = elements
	}
}

func (m *MemStore) dropExpired(key string) {
	for _, el := range m.keys[key] {
		if m.opts.expired(el.Value.(*memItem).expires) {
			m.remove(el)
		}
	}
}

func (m *MemStore) evict() {
	if m.opts.MaxEntries <= 0 {
		return
	}
	for m.lru.Len() > m.opts.MaxEntries {
		el := m.lru.Back()
		log.Trace().Str("key", el.Value.(*memItem).key).Msg("Evicting entry")
		m.remove(el)
		metrics.Evictions.WithLabelValues("memory").Inc()
	}
}
