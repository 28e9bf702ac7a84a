package limiter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/local/flipbook/internal/limiter"
)

func TestSlots_Allow(t *testing.T) {
	s := limiter.New(limiter.Options{MaxInflight: 2})

	r1, ok1 := s.Allow()
	r2, ok2 := s.Allow()
	_, ok3 := s.Allow()
	if !ok1 || !ok2 || ok3 {
		t.Fatalf("Allow() = %v %v %v, want true true false", ok1, ok2, ok3)
	}
	if s.InUse() != 2 {
		t.Errorf("InUse() = %d, want 2", s.InUse())
	}

	r1()
	r1()
	if s.InUse() != 1 {
		t.Errorf("InUse() after double release = %d, want 1", s.InUse())
	}
	r2()
}

func TestSlots_DefaultCapacity(t *testing.T) {
	if got := limiter.New(limiter.Options{}).Capacity(); got != 2 {
		t.Errorf("Capacity() = %d, want 2", got)
	}
}

func TestSlots_AcquireWaits(t *testing.T) {
	s := limiter.New(limiter.Options{MaxInflight: 1})
	release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	got := make(chan error, 1)
	go func() {
		r, err := s.Acquire(context.Background())
		if r != nil {
			r()
		}
		got <- err
	}()

	select {
	case <-got:
		t.Fatal("second Acquire() returned while slot was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case err := <-got:
		if err != nil {
			t.Errorf("second Acquire() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second Acquire() never returned")
	}
}

func TestSlots_AcquireCancelled(t *testing.T) {
	s := limiter.New(limiter.Options{MaxInflight: 1})
	release, _ := s.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want DeadlineExceeded", err)
	}
	if s.Waiting() != 0 {
		t.Errorf("Waiting() = %d, want 0", s.Waiting())
	}
}
