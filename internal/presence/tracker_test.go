package presence

import (
	"context"
	"testing"
	"time"
)

func TestMemoryTrackerMarkAndExpire(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker(time.Minute)

	base := time.Now()
	current := base
	tracker.WithNowFunc(func() time.Time { return current })

	if err := tracker.MarkOnline(ctx, "user-1"); err != nil {
		t.Fatalf("mark online: %v", err)
	}

	online, err := tracker.IsOnline(ctx, "user-1")
	if err != nil {
		t.Fatalf("is online: %v", err)
	}
	if !online {
		t.Fatal("expected user to be online")
	}

	// A heartbeat refreshes the TTL.
	current = base.Add(45 * time.Second)
	if err := tracker.MarkOnline(ctx, "user-1"); err != nil {
		t.Fatalf("refresh online: %v", err)
	}
	current = base.Add(90 * time.Second)
	if online, _ = tracker.IsOnline(ctx, "user-1"); !online {
		t.Fatal("expected refreshed entry to still be online")
	}

	// Without further heartbeats the entry expires.
	current = base.Add(3 * time.Minute)
	if online, _ = tracker.IsOnline(ctx, "user-1"); online {
		t.Fatal("expected entry to expire after the TTL")
	}
}

func TestMemoryTrackerMarkOffline(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker(time.Minute)

	if err := tracker.MarkOnline(ctx, "user-1"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	if err := tracker.MarkOffline(ctx, "user-1"); err != nil {
		t.Fatalf("mark offline: %v", err)
	}

	online, err := tracker.IsOnline(ctx, "user-1")
	if err != nil {
		t.Fatalf("is online: %v", err)
	}
	if online {
		t.Fatal("expected user to be offline after explicit mark")
	}
}

func TestMemoryTrackerBulkIsOnline(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker(time.Minute)

	if err := tracker.MarkOnline(ctx, "user-1"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	if err := tracker.MarkOnline(ctx, "user-3"); err != nil {
		t.Fatalf("mark online: %v", err)
	}

	statuses, err := tracker.BulkIsOnline(ctx, []string{"user-1", "user-2", "user-3"})
	if err != nil {
		t.Fatalf("bulk is online: %v", err)
	}

	want := map[string]bool{"user-1": true, "user-2": false, "user-3": true}
	for id, expected := range want {
		if statuses[id] != expected {
			t.Fatalf("user %s: expected online=%v, got %v", id, expected, statuses[id])
		}
	}
}
