package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alfredjeanlab/hotstore/internal/client"
	"github.com/alfredjeanlab/hotstore/internal/model"
	eventsync "github.com/alfredjeanlab/hotstore/internal/sync"
)

func TestBatches(t *testing.T) {
	mk := func(n int) []*model.Event {
		out := make([]*model.Event, n)
		for i := range out {
			out[i] = &model.Event{ID: "ev"}
		}
		return out
	}
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 3, nil},
		{2, 3, []int{2}},
		{3, 3, []int{3}},
		{7, 3, []int{3, 3, 1}},
	}
	for _, tt := range tests {
		got := batches(mk(tt.n), tt.size)
		var sizes []int
		for _, b := range got {
			sizes = append(sizes, len(b))
		}
		if len(sizes) != len(tt.want) {
			t.Errorf("batches(%d, %d) sizes = %v, want %v", tt.n, tt.size, sizes, tt.want)
			continue
		}
		for i := range sizes {
			if sizes[i] != tt.want[i] {
				t.Errorf("batches(%d, %d) sizes = %v, want %v", tt.n, tt.size, sizes, tt.want)
				break
			}
		}
	}
}

const feedFixture = `{"type":"header","version":"1","key":"events:recent"}
{"type":"event","data":{"id":"ev-1","type":"chat_message","data":{},"severity":1,"timestamp":1700000000000}}
{"id":"ev-2","type":"goal_failed","data":{"goal":"mine"},"severity":7,"timestamp":1700000001000}
not json
`

func TestReadFeedFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "events.jsonl")
	if err := os.WriteFile(plain, []byte(feedFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	compressed := filepath.Join(dir, "events.jsonl.zst")
	if err := os.WriteFile(compressed, eventsync.Compress([]byte(feedFixture)), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name  string
		path  string
		stdin string
	}{
		{"Plain", plain, ""},
		{"Compressed", compressed, ""},
		{"Stdin", "-", feedFixture},
	} {
		t.Run(tc.name, func(t *testing.T) {
			events, malformed, err := readFeedFile(tc.path, strings.NewReader(tc.stdin))
			if err != nil {
				t.Fatalf("readFeedFile: %v", err)
			}
			if malformed != 1 {
				t.Errorf("malformed = %d, want 1", malformed)
			}
			if len(events) != 2 || events[0].ID != "ev-1" || events[1].ID != "ev-2" {
				t.Fatalf("events = %+v", events)
			}
		})
	}
}

func TestReadFeedFile_Missing(t *testing.T) {
	_, _, err := readFeedFile(filepath.Join(t.TempDir(), "nope.jsonl"), bytes.NewReader(nil))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFeedBatchLimit(t *testing.T) {
	stats := func(maxRetrievals int) *client.Stats {
		st := &client.Stats{}
		st.Limits.MaxRetrievals = maxRetrievals
		return st
	}
	tests := []struct {
		name string
		st   *client.Stats
		want int
	}{
		{"Unknown", nil, feedBatchSize},
		{"Default", stats(500), 500},
		{"Smaller", stats(2), 2},
		{"Larger", stats(5000), feedBatchSize},
		{"Zero", stats(0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := feedBatchLimit(tt.st); got != tt.want {
				t.Errorf("feedBatchLimit = %d, want %d", got, tt.want)
			}
		})
	}
}
