package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func channel(id, name, org string) *model.Channel {
	return &model.Channel{
		ID: id, Name: name, Organization: org, OwnerUserID: "U1",
		CreatedAt: 1000, ExpiresAt: 1000 + 14*model.SecondsPerDay,
	}
}

func TestLockPath(t *testing.T) {
	if got := LockPath("/data/db.json"); got != "/data/db.lock" {
		t.Errorf("LockPath = %q, want /data/db.lock", got)
	}
}

func TestInsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if got, err := s.GetChannel(ctx, "G1"); err != nil || got != nil {
		t.Fatalf("GetChannel on empty store = %v, %v", got, err)
	}

	if _, err := s.InsertChannel(ctx, channel("G1", "alpha", "")); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}
	got, err := s.GetChannel(ctx, "G1")
	if err != nil || got == nil || got.Name != "alpha" {
		t.Fatalf("GetChannel = %+v, %v", got, err)
	}

	if err := s.DeleteChannel(ctx, "G1"); err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	if got, _ := s.GetChannel(ctx, "G1"); got != nil {
		t.Fatalf("record still present after delete: %+v", got)
	}
	if err := s.DeleteChannel(ctx, "G1"); err != nil {
		t.Fatalf("DeleteChannel on absent id: %v", err)
	}
}

func TestInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.InsertChannel(ctx, channel("G1", "alpha", "")); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}
	_, err := s.InsertChannel(ctx, channel("G1", "other", ""))
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	got, _ := s.GetChannel(ctx, "G1")
	if got.Name != "alpha" {
		t.Errorf("duplicate insert overwrote record: %+v", got)
	}
}

func TestInsertInvalid(t *testing.T) {
	s := newTestStore(t)
	bad := channel("G1", "alpha", "")
	bad.ExpiresAt = bad.CreatedAt
	_, err := s.InsertChannel(context.Background(), bad)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, statErr := os.Stat(s.Path()); !os.IsNotExist(statErr) {
		t.Errorf("invalid insert created the data file")
	}
}

func TestUpdateChannel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.InsertChannel(ctx, channel("G1", "alpha", "")); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}
	if _, err := s.UpdateChannel(ctx, "G1", model.RemindedPatch()); err != nil {
		t.Fatalf("UpdateChannel: %v", err)
	}

	got, err := s.UpdateChannel(ctx, "G1", model.ExtendPatch(7))
	if err != nil {
		t.Fatalf("UpdateChannel: %v", err)
	}
	want := int64(1000 + 21*model.SecondsPerDay)
	if got.ExpiresAt != want || got.Reminded {
		t.Errorf("after extend: expires_at=%d reminded=%v, want %d false", got.ExpiresAt, got.Reminded, want)
	}

	_, err = s.UpdateChannel(ctx, "missing", model.RemindedPatch())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListChannels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, c := range []*model.Channel{
		channel("G3", "gamma", ""),
		channel("G1", "alpha", "Acme"),
		channel("G2", "beta", "Widgets"),
		channel("G4", "delta", ""),
	} {
		if _, err := s.InsertChannel(ctx, c); err != nil {
			t.Fatalf("InsertChannel: %v", err)
		}
	}

	for _, tc := range []struct {
		filter    model.ChannelFilter
		wantIDs   string
		wantTotal int
	}{
		{model.ChannelFilter{}, "[G1 G2 G4 G3]", 4},
		{model.ChannelFilter{Limit: 2, Offset: 1}, "[G2 G4]", 4},
		{model.ChannelFilter{Search: "acme|widgets"}, "[G1 G2]", 2},
		{model.ChannelFilter{Search: "ALPHA"}, "[G1]", 1},
		{model.ChannelFilter{Offset: 10, Limit: 5}, "[]", 4},
	} {
		got, total, err := s.ListChannels(ctx, tc.filter)
		if err != nil {
			t.Fatalf("ListChannels(%+v): %v", tc.filter, err)
		}
		var ids []string
		for _, c := range got {
			ids = append(ids, c.ID)
		}
		if fmt.Sprint(ids) != tc.wantIDs || total != tc.wantTotal {
			t.Errorf("ListChannels(%+v) = %v total %d, want %s total %d", tc.filter, ids, total, tc.wantIDs, tc.wantTotal)
		}
	}
}

func TestConcurrentExtendsAllApply(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.InsertChannel(ctx, channel("G1", "alpha", "")); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpdateChannel(ctx, "G1", model.ExtendPatch(1)); err != nil {
				t.Errorf("UpdateChannel: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetChannel(ctx, "G1")
	want := int64(1000 + (14+n)*model.SecondsPerDay)
	if got.ExpiresAt != want {
		t.Errorf("expires_at = %d, want %d", got.ExpiresAt, want)
	}
}

func TestSeparateHandlesShareFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db.json")
	a, _ := New(path)
	b, _ := New(path)

	if _, err := a.InsertChannel(ctx, channel("G1", "alpha", "")); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}
	if _, err := b.InsertChannel(ctx, channel("G2", "beta", "")); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}
	_, total, err := a.ListChannels(ctx, model.ChannelFilter{})
	if err != nil || total != 2 {
		t.Fatalf("ListChannels total=%d err=%v, want 2", total, err)
	}
}

func TestLockHeldElsewhereTimesOut(t *testing.T) {
	s := newTestStore(t)

	other := flock.New(LockPath(s.Path()))
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer other.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := s.GetChannel(ctx, "G1")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLockReleasedAfterFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.UpdateChannel(ctx, "missing", model.RemindedPatch()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	probe := flock.New(LockPath(s.Path()))
	ok, err := probe.TryLock()
	if err != nil || !ok {
		t.Fatalf("lock still held after failed update: %v %v", ok, err)
	}
	probe.Unlock()
}

func TestCorruptFileIsUnavailable(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := s.ListChannels(context.Background(), model.ChannelFilter{})
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
