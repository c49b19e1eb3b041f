package store

import (
	"context"
	"os"
	"testing"
	"time"

	"notifsync/internal/model"
)

// rewriteExternally replaces the file contents and pushes its mtime forward
// so the change is visible even on coarse-grained filesystems.
func rewriteExternally(t *testing.T, path string, events []model.Event) {
	t.Helper()
	writeFile(t, path, events)
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcherReloadsExternalRewrite(t *testing.T) {
	s, path := openWith(t, newEvent(1, "a"), newEvent(2, "b"), newEvent(3, "c"))
	w := NewWatcher(s, time.Second)

	w.Check()
	if w.Reloads() != 0 {
		t.Fatalf("unchanged file triggered a reload")
	}

	edited := newEvent(3, "c-edited")
	edited.Reminded = false
	rewriteExternally(t, path, []model.Event{newEvent(1, "a"), edited})

	w.Check()
	if w.Reloads() != 1 {
		t.Fatalf("reloads = %d, want 1", w.Reloads())
	}
	if got := ids(s.List()); !equalInts(got, []int{1, 3}) {
		t.Errorf("ids after reload = %v, want [1 3]", got)
	}
	got, err := s.Get(3)
	if err != nil {
		t.Fatalf("Get(3): %v", err)
	}
	if got.Title != "c-edited" {
		t.Errorf("title = %q, external edit should win", got.Title)
	}
	if !got.Reminded {
		t.Errorf("reminded should be forced on watcher reload too")
	}

	w.Check()
	if w.Reloads() != 1 {
		t.Errorf("second check reloaded again")
	}
}

func TestWatcherIgnoresMissingFile(t *testing.T) {
	s, path := openWith(t, newEvent(1, "a"))
	w := NewWatcher(s, time.Second)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	w.Check()

	if w.Reloads() != 0 {
		t.Errorf("missing file triggered a reload")
	}
	if len(s.List()) != 1 {
		t.Errorf("store changed while file was missing")
	}
}

func TestWatcherPollsOnSchedule(t *testing.T) {
	s, path := openWith(t, newEvent(1, "a"))
	w := NewWatcher(s, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	rewriteExternally(t, path, []model.Event{newEvent(1, "a"), newEvent(2, "b")})

	deadline := time.Now().Add(5 * time.Second)
	for !equalInts(ids(s.List()), []int{1, 2}) {
		if time.Now().After(deadline) {
			t.Fatalf("watcher did not reload within 5s, ids = %v", ids(s.List()))
		}
		time.Sleep(50 * time.Millisecond)
	}
	if w.Reloads() == 0 {
		t.Errorf("reload counter not incremented")
	}
}
