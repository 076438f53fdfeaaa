package cache

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// BlobStore is the storage boundary of the cache manager: an opaque
// key-value blob store.
type BlobStore interface {
	// Get returns the blob stored under key, or ok=false on a miss.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	// Put persists the blob under key, replacing any previous content.
	Put(ctx context.Context, key string, data []byte) error
}

// FSStore is a BlobStore backed by a billy filesystem, one file per key.
type FSStore struct {
	fs billy.Filesystem
}

// NewFSStore returns a filesystem-backed blob store rooted at fs.
func NewFSStore(fs billy.Filesystem) *FSStore {
	return &FSStore{fs: fs}
}

// Get implements BlobStore.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := util.ReadFile(s.fs, fileName(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put implements BlobStore.
func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	return util.WriteFile(s.fs, fileName(key), data, 0o644)
}

// fileName flattens a digest-shaped key ("sha256:abcd...") into a plain
// file name.
func fileName(key string) string {
	return strings.ReplaceAll(key, ":", "-") + ".tar.gz"
}
