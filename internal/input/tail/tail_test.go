package tail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func appendString(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFollowerReadsCompleteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cowrie.json")
	appendString(t, path, "{\"a\":1}\n\n{\"b\":2}\n{\"c\":")

	f, err := NewFollower(Config{Path: path, PollInterval: 10 * time.Millisecond, FromStart: true})
	if err != nil {
		t.Fatalf("new follower: %v", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, want := range []string{`{"a":1}`, `{"b":2}`} {
		got, err := f.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		appendString(t, path, "3}\n")
	}()
	got, err := f.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(got) != `{"c":3}` {
		t.Fatalf("partial line must be joined, got %q", got)
	}
}

func TestFollowerStartsAtEndAndWaitsForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.json")

	f, err := NewFollower(Config{Path: path, PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new follower: %v", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Next(ctx); err == nil {
		t.Fatalf("expected context error while file is missing")
	}

	appendString(t, path, "{\"old\":true}\n")
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	go func() {
		time.Sleep(100 * time.Millisecond)
		appendString(t, path, "{\"new\":true}\n")
	}()
	got, err := f.Next(ctx2)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(got) != `{"new":true}` {
		t.Fatalf("expected only new lines, got %q", got)
	}
}

func TestNewFollowerRequiresPath(t *testing.T) {
	if _, err := NewFollower(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
