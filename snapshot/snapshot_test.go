package snapshot

import "testing"

func Test_Shared_SetAndGet(t *testing.T) {
	s := New()
	if _, ok := s.Get(FieldBlocks); ok {
		t.Fatalf("fresh Shared should not have blocks set")
	}
	s.Set(FieldBlocks, `[{"height":1}]`)
	v, ok := s.Get(FieldBlocks)
	if !ok || v != `[{"height":1}]` {
		t.Fatalf("Get(blocks) = %q, %v, want the set value", v, ok)
	}
}

func Test_Shared_InitBlob_BlocksReadyGate(t *testing.T) {
	s := New()
	if _, ready := s.InitBlob(); ready {
		t.Fatalf("InitBlob should not be ready before blocks is populated")
	}
	s.Set(FieldBlocks, `[]`)
	if _, ready := s.InitBlob(); ready {
		t.Fatalf("InitBlob should not be ready when blocks is an empty array")
	}
	s.Set(FieldBlocks, `[{"height":1}]`)
	blob, ready := s.InitBlob()
	if !ready {
		t.Fatalf("InitBlob should be ready once blocks is non-empty")
	}
	if blob == "" {
		t.Fatalf("InitBlob blob should not be empty once ready")
	}
}

func Test_Shared_InitBlob_KeyOrderStable(t *testing.T) {
	s := New()
	s.SetAll(map[string]string{
		FieldBlocks:        `[{"height":1}]`,
		FieldMempoolInfo:   `{}`,
		FieldBackendInfo:   `{}`,
		FieldConversions:   `{}`,
		FieldDifficultyAdj: `{}`,
	})
	blob1, _ := s.InitBlob()
	s.Set(FieldFees, `{}`)
	blob2, _ := s.InitBlob()
	// Both blobs must start with mempoolInfo followed by blocks, matching
	// initBlobKeyOrder, regardless of Go's randomized map iteration order.
	wantPrefix := `{"mempoolInfo":{},"blocks"`
	for _, blob := range []string{blob1, blob2} {
		if len(blob) < len(wantPrefix) {
			t.Fatalf("InitBlob() = %q, want prefix %q", blob, wantPrefix)
		}
		if blob[:len(wantPrefix)] != wantPrefix {
			t.Fatalf("InitBlob() = %q, want prefix %q", blob, wantPrefix)
		}
	}
}

func Test_Shared_NeedsInitRefresh(t *testing.T) {
	s := New()
	if !s.NeedsInitRefresh() {
		t.Fatalf("fresh Shared should need an init refresh")
	}
	s.SetAll(map[string]string{
		FieldBlocks:        `[]`,
		FieldDifficultyAdj: `{}`,
		FieldBackendInfo:   `{}`,
	})
	if !s.NeedsInitRefresh() {
		t.Fatalf("Shared missing conversions should still need a refresh")
	}
	s.Set(FieldConversions, `{}`)
	if s.NeedsInitRefresh() {
		t.Fatalf("Shared with all four readiness fields set should not need a refresh")
	}
}

func Test_Cache_SeededFromShared(t *testing.T) {
	s := New()
	s.Set(FieldBlocks, `[]`)
	c := NewCache(s)
	v, ok := c.Get(FieldBlocks)
	if !ok || v != `[]` {
		t.Fatalf("Cache seeded from Shared should already contain blocks, got %q, %v", v, ok)
	}
	// Mutating Shared after NewCache must not affect the already-seeded
	// cache (it is a snapshot, not a live view).
	s.Set(FieldBlocks, `[{"height":1}]`)
	v, _ = c.Get(FieldBlocks)
	if v != `[]` {
		t.Fatalf("Cache should hold its value at seed time, got %q after Shared mutated", v)
	}
}

func Test_Cache_GetCached_ComputesOnceOnMiss(t *testing.T) {
	c := NewCache(New())
	calls := 0
	compute := func() (string, error) {
		calls++
		return `"computed"`, nil
	}

	v1, err := c.GetCached("k", compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v2, err := c.GetCached("k", compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v1 != v2 || v1 != `"computed"` {
		t.Fatalf("GetCached() = %q, %q, want both %q", v1, v2, `"computed"`)
	}
	if calls != 1 {
		t.Fatalf("compute was called %d times, want 1 (second call should hit cache)", calls)
	}
}

func Test_Cache_Put(t *testing.T) {
	c := NewCache(New())
	c.Put("k", `"v"`)
	v, ok := c.Get("k")
	if !ok || v != `"v"` {
		t.Fatalf("Get(k) after Put = %q, %v, want %q, true", v, ok, `"v"`)
	}
}
