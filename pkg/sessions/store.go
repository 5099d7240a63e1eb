// Package sessions persists agent session records as a JSON map keyed by
// session key, one file per store path.
//
// All mutation goes through AtomicUpdate: the caller submits a transform and
// the store serializes load-transform-save per path, using an in-process
// mutex plus a cross-process flock sidecar. Two writers targeting sessions
// in different files never contend; two writers targeting the same file are
// fully ordered, which is what keeps concurrent inbox appends from losing
// events.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when the cross-process file lock cannot be
// acquired within the store's lock timeout.
var ErrLockTimeout = errors.New("timeout acquiring session file lock")

// Entry is one persisted session record. The A2AInbox field is owned by the
// a2a inbox layer and kept opaque here; this package only guarantees it is
// read and written atomically with the rest of the record.
type Entry struct {
	SessionKey  string          `json:"sessionKey"`
	DisplayName string          `json:"displayName,omitempty"`
	Label       string          `json:"label,omitempty"`
	OriginLabel string          `json:"originLabel,omitempty"`
	Channel     string          `json:"channel,omitempty"`
	To          string          `json:"to,omitempty"`
	AccountID   string          `json:"accountId,omitempty"`
	LastReply   string          `json:"lastReply,omitempty"`
	UpdatedAt   int64           `json:"updatedAt,omitempty"`
	A2AInbox    json.RawMessage `json:"a2aInbox,omitempty"`
}

// Store provides per-path serialized access to session record files.
type Store struct {
	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	lockTimeout time.Duration
}

func NewStore() *Store {
	return &Store{
		locks:       make(map[string]*sync.Mutex),
		lockTimeout: 5 * time.Second,
	}
}

// pathLock returns the in-process mutex guarding one store path.
func (s *Store) pathLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// Load reads all session entries from a store file. A missing file is an
// empty store, not an error.
func (s *Store) Load(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Entry{}, nil
		}
		return nil, err
	}

	entries := map[string]Entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing session store %s: %w", path, err)
	}
	return entries, nil
}

// Get returns one session entry and whether it exists.
func (s *Store) Get(path, key string) (Entry, bool, error) {
	entries, err := s.Load(path)
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := entries[key]
	return e, ok, nil
}

// AtomicUpdate applies transform to one session entry as a single
// load-mutate-save step, serialized per path. The entry passed to transform
// is the latest on-disk value (zero-valued with the key filled in when the
// session does not exist yet). If transform returns an error nothing is
// written.
func (s *Store) AtomicUpdate(ctx context.Context, path, key string, transform func(*Entry) error) error {
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating session store dir: %w", err)
	}

	fl := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring session file lock: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer func() { _ = fl.Unlock() }()

	entries, err := s.Load(path)
	if err != nil {
		return err
	}

	entry, ok := entries[key]
	if !ok {
		entry = Entry{SessionKey: key}
	}

	if err := transform(&entry); err != nil {
		return err
	}

	entry.UpdatedAt = time.Now().UnixMilli()
	entries[key] = entry

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session store: %w", err)
	}

	// Temp file + rename so readers never observe a half-written store.
	tmp := fmt.Sprintf("%s.%d.%d.tmp", path, os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing session store temp file: %w", err)
	}
	if f, err := os.OpenFile(tmp, os.O_RDWR, 0o644); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing session store: %w", err)
	}

	return nil
}

// Merge overlays the non-zero fields of patch onto existing. The inbox blob
// is taken from patch only when set; merging inbox contents is the inbox
// layer's job.
func Merge(existing, patch Entry) Entry {
	out := existing
	if patch.SessionKey != "" {
		out.SessionKey = patch.SessionKey
	}
	if patch.DisplayName != "" {
		out.DisplayName = patch.DisplayName
	}
	if patch.Label != "" {
		out.Label = patch.Label
	}
	if patch.OriginLabel != "" {
		out.OriginLabel = patch.OriginLabel
	}
	if patch.Channel != "" {
		out.Channel = patch.Channel
	}
	if patch.To != "" {
		out.To = patch.To
	}
	if patch.AccountID != "" {
		out.AccountID = patch.AccountID
	}
	if patch.LastReply != "" {
		out.LastReply = patch.LastReply
	}
	if patch.UpdatedAt != 0 {
		out.UpdatedAt = patch.UpdatedAt
	}
	if len(patch.A2AInbox) > 0 {
		out.A2AInbox = patch.A2AInbox
	}
	return out
}
