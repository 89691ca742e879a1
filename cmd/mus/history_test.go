package main

import (
	"testing"

	"github.com/jamesainslie/mus/pkg/mus/history"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"/a/long/manifest/path.mu5", 12, "/a/long/m..."},
		{"abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		if got := truncateString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("4f1c2a9e-0000-4000-8000-000000000000"); got != "4f1c2a9e" {
		t.Errorf("shortID() = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID() = %q", got)
	}
}

func TestFailedLabel(t *testing.T) {
	ok := &history.Entry{Status: types.Status{DoneKO: 3}}
	if got := failedLabel(ok); got != "3" {
		t.Errorf("failedLabel() = %q, want 3", got)
	}

	failed := &history.Entry{Error: "walking /x: permission denied"}
	if got := failedLabel(failed); got != "error" {
		t.Errorf("failedLabel() = %q, want error", got)
	}
}
