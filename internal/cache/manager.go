package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/ctxlog"
	"golang.org/x/sync/singleflight"
)

// Manager mediates all cache traffic between concurrent jobs and the blob
// store. Writers for a given key are serialized (last completed write
// persists); readers never block on a writer, they observe the prior
// snapshot. Fetch never fails: any storage problem is logged and reported
// as a miss.
type Manager struct {
	store BlobStore
	group singleflight.Group

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
	evict    func(context.Context) error
}

// New returns a Manager over the given blob store.
func New(store BlobStore) *Manager {
	return &Manager{
		store:    store,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// Handle is a read-only materialization of a cache entry.
type Handle struct {
	Key  string
	data []byte
}

// Restore unpacks the entry's directories under workdir.
func (h *Handle) Restore(workdir string) error {
	return unpack(h.data, workdir)
}

// RequestEviction registers an external storage-pressure callback. The
// manager honors it exactly once, before the next store.
func (m *Manager) RequestEviction(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evict = fn
}

// Fetch returns a handle on the cached entry for the job identified by
// axisID, or ok=false on a miss. Concurrent fetches of the same key are
// collapsed into a single store read.
func (m *Manager) Fetch(ctx context.Context, workdir, axisID string, c config.Cache) (*Handle, bool) {
	logger := ctxlog.FromContext(ctx)
	key := Key(workdir, axisID, c).String()

	v, err, _ := m.group.Do(key, func() (any, error) {
		data, ok, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return data, nil
	})
	if err != nil {
		logger.Warn("Cache fetch failed, continuing without cache.", "key", key, "error", err)
		return nil, false
	}
	if v == nil {
		logger.Debug("Cache miss.", "key", key)
		return nil, false
	}

	logger.Debug("Cache hit.", "key", key)
	return &Handle{Key: key, data: v.([]byte)}, true
}

// Store packs the declared directories from workdir and persists them
// under the job's key. It must only be called after a successful job; the
// executor enforces that.
func (m *Manager) Store(ctx context.Context, workdir, axisID string, c config.Cache) error {
	logger := ctxlog.FromContext(ctx)

	m.mu.Lock()
	evict := m.evict
	m.evict = nil
	m.mu.Unlock()
	if evict != nil {
		if err := evict(ctx); err != nil {
			logger.Warn("Cache eviction callback failed.", "error", err)
		}
	}

	key := Key(workdir, axisID, c).String()
	data, err := pack(workdir, c.Directories)
	if err != nil {
		logger.Warn("Cache store skipped: packing failed.", "key", key, "error", err)
		return fmt.Errorf("packing cache entry %s: %w", key, err)
	}

	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.Put(ctx, key, data); err != nil {
		logger.Warn("Cache store failed.", "key", key, "error", err)
		return fmt.Errorf("storing cache entry %s: %w", key, err)
	}
	logger.Debug("Cache entry stored.", "key", key, "bytes", len(data))
	return nil
}

// lockFor returns the per-key writer mutex, creating it on first use.
func (m *Manager) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.keyLocks[key] = lock
	}
	return lock
}
