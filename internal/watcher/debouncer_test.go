package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalescesCreateThenModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	d.Add(FileEvent{Path: "a.py", Operation: OpCreate})
	d.Add(FileEvent{Path: "a.py", Operation: OpModify})

	select {
	case batch := <-d.Output():
		require.Len(t, batch, 1)
		require.Equal(t, OpCreate, batch[0].Operation)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced batch")
	}
}

func TestDebouncerCancelsCreateThenDelete(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	d.Add(FileEvent{Path: "a.py", Operation: OpCreate})
	d.Add(FileEvent{Path: "a.py", Operation: OpDelete})

	select {
	case batch := <-d.Output():
		t.Fatalf("expected no batch, got %v", batch)
	case <-time.After(100 * time.Millisecond):
		// CREATE+DELETE cancels out; nothing should ever flush.
	}
}

func TestDebouncerTreatsDeleteThenCreateAsModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	d.Add(FileEvent{Path: "a.py", Operation: OpDelete})
	d.Add(FileEvent{Path: "a.py", Operation: OpCreate})

	select {
	case batch := <-d.Output():
		require.Len(t, batch, 1)
		require.Equal(t, OpModify, batch[0].Operation)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced batch")
	}
}
