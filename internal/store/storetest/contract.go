// Package storetest holds a behavioural test suite shared by store.Log
// implementations.
package storetest

import (
	"context"
	"reflect"
	"testing"

	"github.com/alfredjeanlab/hotstore/internal/store"
)

// RunLogContract exercises the list semantics every store.Log must provide.
// newLog must return an empty log; it is called once per subtest.
func RunLogContract(t *testing.T, newLog func(t *testing.T) store.Log) {
	t.Helper()
	ctx := context.Background()
	const key = "events:test"

	all := func(t *testing.T, l store.Log) []string {
		t.Helper()
		got, err := l.Range(ctx, key, 0, -1)
		if err != nil {
			t.Fatalf("Range: %v", err)
		}
		return got
	}
	want := func(t *testing.T, got []string, expected ...string) {
		t.Helper()
		if len(got) == 0 && len(expected) == 0 {
			return
		}
		if !reflect.DeepEqual(got, expected) {
			t.Fatalf("list = %q, want %q", got, expected)
		}
	}

	t.Run("PushHeadOrder", func(t *testing.T) {
		l := newLog(t)
		if err := l.PushHead(ctx, key, "a"); err != nil {
			t.Fatalf("PushHead: %v", err)
		}
		if err := l.PushHead(ctx, key, "b", "c"); err != nil {
			t.Fatalf("PushHead: %v", err)
		}
		want(t, all(t, l), "c", "b", "a")
	})

	t.Run("RangeEmpty", func(t *testing.T) {
		l := newLog(t)
		want(t, all(t, l))
	})

	t.Run("RangeWindow", func(t *testing.T) {
		l := newLog(t)
		_ = l.PushHead(ctx, key, "e", "d", "c", "b", "a")
		got, err := l.Range(ctx, key, 1, 2)
		if err != nil {
			t.Fatalf("Range: %v", err)
		}
		want(t, got, "b", "c")
	})

	t.Run("TrimKeepsHead", func(t *testing.T) {
		l := newLog(t)
		_ = l.PushHead(ctx, key, "e", "d", "c", "b", "a")
		if err := l.Trim(ctx, key, 0, 2); err != nil {
			t.Fatalf("Trim: %v", err)
		}
		want(t, all(t, l), "a", "b", "c")
	})

	t.Run("TrimBeyondLength", func(t *testing.T) {
		l := newLog(t)
		_ = l.PushHead(ctx, key, "b", "a")
		if err := l.Trim(ctx, key, 0, 10); err != nil {
			t.Fatalf("Trim: %v", err)
		}
		want(t, all(t, l), "a", "b")
	})

	t.Run("RemoveFirstOnlyOne", func(t *testing.T) {
		l := newLog(t)
		_ = l.PushHead(ctx, key, "x", "y", "x")
		removed, err := l.RemoveFirst(ctx, key, "x")
		if err != nil {
			t.Fatalf("RemoveFirst: %v", err)
		}
		if !removed {
			t.Fatal("RemoveFirst reported nothing removed")
		}
		want(t, all(t, l), "y", "x")
	})

	t.Run("RemoveFirstMissing", func(t *testing.T) {
		l := newLog(t)
		_ = l.PushHead(ctx, key, "a")
		removed, err := l.RemoveFirst(ctx, key, "zzz")
		if err != nil {
			t.Fatalf("RemoveFirst: %v", err)
		}
		if removed {
			t.Fatal("RemoveFirst removed a missing value")
		}
		want(t, all(t, l), "a")
	})

	t.Run("SetAtKeepsPosition", func(t *testing.T) {
		l := newLog(t)
		_ = l.PushHead(ctx, key, "c", "b", "a")
		if err := l.SetAt(ctx, key, 1, "B"); err != nil {
			t.Fatalf("SetAt: %v", err)
		}
		want(t, all(t, l), "a", "B", "c")
	})

	t.Run("SetAtOutOfRange", func(t *testing.T) {
		l := newLog(t)
		_ = l.PushHead(ctx, key, "a")
		if err := l.SetAt(ctx, key, 5, "x"); err == nil {
			t.Fatal("SetAt out of range should fail")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		l := newLog(t)
		if err := l.Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}
