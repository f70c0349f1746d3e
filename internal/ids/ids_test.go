package ids

import (
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestNewAtTimestamp(t *testing.T) {
	at := time.Date(2025, time.April, 2, 10, 30, 0, 0, time.UTC)
	got, err := timestamp(NewAt(at))
	if err != nil {
		t.Fatalf("timestamp: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("unexpected time %s, want %s", got, at)
	}
	if _, err := timestamp("not-a-ulid"); err == nil {
		t.Fatal("expected parse error")
	}
}
