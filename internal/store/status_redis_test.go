package store

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"
)

func TestStatusKey(t *testing.T) {
	if got := statusKey("flipbook", "abc"); got != "flipbook:abc:status" {
		t.Errorf("statusKey() = %q, want flipbook:abc:status", got)
	}
}

func TestDecodeStatus(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC)
	in := Status{
		Status:     "ready",
		Progress:   100,
		Message:    "6 pages",
		Generation: 7,
		Start:      &start,
		Metadata:   map[string]any{"pages": float64(6)},
	}

	// HSet stores every value as a string; mimic that.
	raw := map[string]string{}
	for k, v := range encodeStatus(in) {
		switch v := v.(type) {
		case string:
			raw[k] = v
		case int:
			raw[k] = strconv.Itoa(v)
		}
	}

	got := decodeStatus(raw)
	if got.Status != "ready" || got.Progress != 100 || got.Generation != 7 || got.Message != "6 pages" {
		t.Errorf("decodeStatus() = %+v", got)
	}
	if got.Start == nil || !got.Start.Equal(start) {
		t.Errorf("Start = %v, want %v", got.Start, start)
	}
	if got.End != nil {
		t.Errorf("End = %v, want nil", got.End)
	}
	if got.Metadata["pages"] != float64(6) {
		t.Errorf("Metadata[pages] = %v, want 6", got.Metadata["pages"])
	}
}

func TestDecodeStatus_BadFields(t *testing.T) {
	got := decodeStatus(map[string]string{
		"status":     "loading",
		"progress":   "lots",
		"generation": "-1",
		"start":      "yesterday",
		"metadata":   "{",
	})
	if got.Status != "loading" || got.Progress != 0 || got.Generation != 0 || got.Start != nil {
		t.Errorf("decodeStatus() = %+v, want zero values for unparsable fields", got)
	}
}

func TestRedisStatus_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	s, err := NewRedisStatus(url, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStatus() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	id := "test-" + time.Now().Format("150405.000000000")
	defer s.Delete(ctx, id)

	if err := s.Set(ctx, id, Status{Status: "loading", Progress: 40, Generation: 2}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, id, Status{Status: "ready", Progress: 100, Generation: 2}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got.Status != "ready" || got.Progress != 100 {
		t.Errorf("Get() = %+v", got)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := s.Get(ctx, id); ok {
		t.Error("Get() after Delete() found record")
	}
}
