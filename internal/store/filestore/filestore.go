// Package filestore implements store.Store on a single JSON array file
// guarded by an advisory lock on a sidecar lock file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

// DefaultRetryDelay is how long lock acquisition waits between attempts.
const DefaultRetryDelay = 50 * time.Millisecond

// FileStore implements store.Store backed by a JSON file such as db.json,
// locked through a sidecar such as db.lock.
type FileStore struct {
	path       string
	lock       *flock.Flock
	retryDelay time.Duration

	// mu serializes goroutines of this process; the file lock only excludes
	// other processes because a Flock handle is reentrant.
	mu sync.Mutex
}

// Compile-time check that FileStore implements store.Store.
var _ store.Store = (*FileStore)(nil)

// New returns a FileStore for path. The lock file sits next to it with the
// extension replaced by ".lock". Missing files are treated as an empty store.
func New(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("filestore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{
		path:       path,
		lock:       flock.New(LockPath(path)),
		retryDelay: DefaultRetryDelay,
	}, nil
}

// LockPath returns the sidecar lock file used for path.
func LockPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".lock"
}

// Path returns the data file location.
func (s *FileStore) Path() string { return s.path }

// withLock runs fn while holding the store lock. The lock is released on
// every exit path, including a failure inside fn.
func (s *FileStore) withLock(ctx context.Context, fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, s.retryDelay)
	if err != nil {
		return store.Unavailable("acquire lock", err)
	}
	if !locked {
		return store.Unavailable("acquire lock", ctx.Err())
	}
	defer func() {
		if uerr := s.lock.Unlock(); uerr != nil {
			err = errors.Join(err, store.Unavailable("release lock", uerr))
		}
	}()

	return fn()
}

// view reads the current contents under the lock.
func (s *FileStore) view(ctx context.Context, fn func(chs []*model.Channel) error) error {
	return s.withLock(ctx, func() error {
		chs, err := s.read()
		if err != nil {
			return err
		}
		return fn(chs)
	})
}

// update performs one read-modify-write cycle under the lock. fn returns the
// full new contents; returning an error leaves the file untouched.
func (s *FileStore) update(ctx context.Context, fn func(chs []*model.Channel) ([]*model.Channel, error)) error {
	return s.withLock(ctx, func() error {
		chs, err := s.read()
		if err != nil {
			return err
		}
		next, err := fn(chs)
		if err != nil {
			return err
		}
		return s.write(next)
	})
}

func (s *FileStore) read() ([]*model.Channel, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable("read "+filepath.Base(s.path), err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var chs []*model.Channel
	if err := json.Unmarshal(data, &chs); err != nil {
		return nil, store.Unavailable("decode "+filepath.Base(s.path), err)
	}
	return chs, nil
}

// write replaces the data file through a rename so readers never observe a
// partially written array.
func (s *FileStore) write(chs []*model.Channel) error {
	if chs == nil {
		chs = []*model.Channel{}
	}
	data, err := json.MarshalIndent(chs, "", "  ")
	if err != nil {
		return store.Unavailable("encode "+filepath.Base(s.path), err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return store.Unavailable("write "+filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return store.Unavailable("replace "+filepath.Base(s.path), err)
	}
	return nil
}

func indexOf(chs []*model.Channel, id string) int {
	for i, c := range chs {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// InsertChannel appends ch unless its id is already present.
func (s *FileStore) InsertChannel(ctx context.Context, ch *model.Channel) (*model.Channel, error) {
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	rec := ch.Clone()
	err := s.update(ctx, func(chs []*model.Channel) ([]*model.Channel, error) {
		if indexOf(chs, rec.ID) >= 0 {
			return nil, store.ErrDuplicateKey
		}
		return append(chs, rec), nil
	})
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// GetChannel returns the record with id, or nil, nil.
func (s *FileStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	var found *model.Channel
	err := s.view(ctx, func(chs []*model.Channel) error {
		if i := indexOf(chs, id); i >= 0 {
			found = chs[i].Clone()
		}
		return nil
	})
	return found, err
}

// UpdateChannel applies patch to the record with id.
func (s *FileStore) UpdateChannel(ctx context.Context, id string, patch model.ChannelPatch) (*model.Channel, error) {
	var updated *model.Channel
	err := s.update(ctx, func(chs []*model.Channel) ([]*model.Channel, error) {
		i := indexOf(chs, id)
		if i < 0 {
			return nil, store.ErrNotFound
		}
		patch.Apply(chs[i])
		updated = chs[i].Clone()
		return chs, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteChannel removes the record with id. An absent id leaves the file
// untouched and is not an error.
func (s *FileStore) DeleteChannel(ctx context.Context, id string) error {
	errAbsent := errors.New("absent")
	err := s.update(ctx, func(chs []*model.Channel) ([]*model.Channel, error) {
		i := indexOf(chs, id)
		if i < 0 {
			return nil, errAbsent
		}
		return append(chs[:i], chs[i+1:]...), nil
	})
	if errors.Is(err, errAbsent) {
		return nil
	}
	return err
}

// ListChannels scans the file and returns the filtered page.
func (s *FileStore) ListChannels(ctx context.Context, filter model.ChannelFilter) ([]*model.Channel, int, error) {
	var (
		page  []*model.Channel
		total int
	)
	err := s.view(ctx, func(chs []*model.Channel) error {
		page, total = model.FilterChannels(chs, filter)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// Ping verifies the data file is readable.
func (s *FileStore) Ping(ctx context.Context) error {
	return s.view(ctx, func([]*model.Channel) error { return nil })
}

// Close is a no-op; the lock is only held for the duration of a call.
func (s *FileStore) Close() error { return nil }
