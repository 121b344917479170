package storage

import (
	"sync"
	"testing"
)

func TestRingBufferWrapping(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 4; i++ {
		if seq := rb.Add(i); seq != uint64(i) {
			t.Fatalf("Add(%d) seq = %d", i, seq)
		}
	}

	all := rb.GetAll()
	expected := []int{2, 3, 4}
	if len(all) != len(expected) {
		t.Fatalf("expected %d items, got %d", len(expected), len(all))
	}
	for i, val := range all {
		if val != expected[i] {
			t.Errorf("at index %d: expected %d, got %d", i, expected[i], val)
		}
	}
	if rb.Size() != 3 || rb.Added() != 4 {
		t.Fatalf("size=%d added=%d", rb.Size(), rb.Added())
	}
}

func TestRingBufferGetBySequence(t *testing.T) {
	rb := NewRingBuffer[string](3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		rb.Add(s)
	}

	tests := []struct {
		seq  uint64
		want string
		ok   bool
	}{
		{0, "", false},
		{1, "", false}, // overwritten
		{2, "", false},
		{3, "c", true},
		{4, "d", true},
		{5, "e", true},
		{6, "", false},
	}
	for _, tt := range tests {
		got, ok := rb.Get(tt.seq)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Get(%d) = %q, %v; want %q, %v", tt.seq, got, ok, tt.want, tt.ok)
		}
	}

	latest, ok := rb.Latest()
	if !ok || latest != "e" {
		t.Errorf("Latest() = %q, %v", latest, ok)
	}
}

func TestRingBufferEmpty(t *testing.T) {
	rb := NewRingBuffer[int](5)
	if all := rb.GetAll(); all != nil {
		t.Errorf("expected nil from GetAll() on empty buffer, got %v", all)
	}
	if _, ok := rb.Latest(); ok {
		t.Error("Latest() on empty buffer reported a value")
	}
	if _, ok := rb.Get(1); ok {
		t.Error("Get(1) on empty buffer reported a value")
	}
}

func TestRingBufferConcurrent(t *testing.T) {
	rb := NewRingBuffer[int](100)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rb.Add(start*50 + j)
			}
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = rb.GetAll()
				_, _ = rb.Latest()
				_, _ = rb.Get(uint64(j))
			}
		}()
	}
	wg.Wait()

	if rb.Size() != 100 {
		t.Fatalf("expected 100 items, got %d", rb.Size())
	}
	if rb.Added() != 500 {
		t.Fatalf("expected 500 adds, got %d", rb.Added())
	}
}

func TestNewRingBufferPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewRingBuffer[int](0)
}
