package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func testStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sessions.json")
}

func TestLoad_MissingFileIsEmptyStore(t *testing.T) {
	store := NewStore()
	entries, err := store.Load(testStorePath(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty store, got %d entries", len(entries))
	}
}

func TestAtomicUpdate_CreatesEntry(t *testing.T) {
	store := NewStore()
	path := testStorePath(t)

	err := store.AtomicUpdate(context.Background(), path, "agent:main:cli", func(e *Entry) error {
		if e.SessionKey != "agent:main:cli" {
			t.Errorf("fresh entry must carry its key, got %q", e.SessionKey)
		}
		e.DisplayName = "Main"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	entry, ok, err := store.Get(path, "agent:main:cli")
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if entry.DisplayName != "Main" {
		t.Errorf("expected DisplayName persisted, got %q", entry.DisplayName)
	}
	if entry.UpdatedAt == 0 {
		t.Error("UpdatedAt must be stamped on write")
	}
}

func TestAtomicUpdate_TransformErrorWritesNothing(t *testing.T) {
	store := NewStore()
	path := testStorePath(t)

	if err := store.AtomicUpdate(context.Background(), path, "k", func(e *Entry) error {
		e.DisplayName = "first"
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	wantErr := errors.New("no thanks")
	err := store.AtomicUpdate(context.Background(), path, "k", func(e *Entry) error {
		e.DisplayName = "second"
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected transform error back, got %v", err)
	}

	entry, _, _ := store.Get(path, "k")
	if entry.DisplayName != "first" {
		t.Errorf("failed transform must not write, got %q", entry.DisplayName)
	}
}

func TestAtomicUpdate_ConcurrentAppendsAllSurvive(t *testing.T) {
	store := NewStore()
	path := testStorePath(t)
	key := "agent:main:cli"

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := store.AtomicUpdate(context.Background(), path, key, func(e *Entry) error {
				var ids []string
				if len(e.A2AInbox) > 0 {
					if err := json.Unmarshal(e.A2AInbox, &ids); err != nil {
						return err
					}
				}
				ids = append(ids, fmt.Sprintf("run-%d", n))
				raw, err := json.Marshal(ids)
				if err != nil {
					return err
				}
				e.A2AInbox = raw
				return nil
			})
			if err != nil {
				t.Errorf("writer %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	entry, _, err := store.Get(path, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var ids []string
	if err := json.Unmarshal(entry.A2AInbox, &ids); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(ids) != writers {
		t.Errorf("lost writes: expected %d ids, got %d", writers, len(ids))
	}
}

func TestAtomicUpdate_LeavesNoTempFiles(t *testing.T) {
	store := NewStore()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	for i := 0; i < 3; i++ {
		if err := store.AtomicUpdate(context.Background(), path, "k", func(e *Entry) error {
			e.LastReply = fmt.Sprintf("reply %d", i)
			return nil
		}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, f := range files {
		if filepath.Ext(f.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", f.Name())
		}
	}
}

func TestMerge_NonZeroFieldsOverlay(t *testing.T) {
	existing := Entry{
		SessionKey:  "k",
		DisplayName: "Old Name",
		Channel:     "slack",
		To:          "C123",
	}
	patch := Entry{
		DisplayName: "New Name",
		LastReply:   "done",
	}

	out := Merge(existing, patch)
	if out.DisplayName != "New Name" {
		t.Errorf("patched field: got %q", out.DisplayName)
	}
	if out.Channel != "slack" || out.To != "C123" {
		t.Errorf("unpatched fields must survive: %+v", out)
	}
	if out.LastReply != "done" {
		t.Errorf("new field: got %q", out.LastReply)
	}
}
