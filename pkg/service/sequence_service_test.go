package service

import (
	"context"
	"sync"
	"testing"
)

func TestSequenceNextStartsAtOne(t *testing.T) {
	svc := NewSequenceService(newTestDB(t))
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		got, err := svc.Next(ctx, "group-a")
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Fatalf("Next = %d, want %d", got, want)
		}
	}
}

func TestSequenceScopesAreIndependent(t *testing.T) {
	svc := NewSequenceService(newTestDB(t))
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	if _, err := svc.Next(ctx, "group-a"); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := svc.Next(ctx, "group-a"); err != nil {
		t.Fatalf("Next: %v", err)
	}

	got, err := svc.Next(ctx, "group-b")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != 1 {
		t.Fatalf("fresh scope Next = %d, want 1", got)
	}
}

func TestSequenceNextConcurrent(t *testing.T) {
	svc := NewSequenceService(newTestDB(t))
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	const workers = 20
	results := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := svc.Next(context.Background(), "group-a")
			if err != nil {
				t.Errorf("Next: %v", err)
				return
			}
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for v := range results {
		if seen[v] {
			t.Fatalf("duplicate sequence number %d", v)
		}
		seen[v] = true
		if v < 1 || v > workers {
			t.Fatalf("sequence number %d out of range [1,%d]", v, workers)
		}
	}
	if len(seen) != workers {
		t.Fatalf("allocated %d distinct values, want %d", len(seen), workers)
	}

	current, err := svc.Current(context.Background(), "group-a")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current != workers {
		t.Fatalf("Current = %d, want %d", current, workers)
	}
}

func TestSequenceCurrentEmpty(t *testing.T) {
	svc := NewSequenceService(newTestDB(t))
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	got, err := svc.Current(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got != 0 {
		t.Fatalf("Current = %d, want 0", got)
	}
}

func TestSequenceNextEmptyScope(t *testing.T) {
	svc := NewSequenceService(newTestDB(t))
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := svc.Next(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty scope id")
	}
}
