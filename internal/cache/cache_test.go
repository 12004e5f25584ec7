package cache

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestKeyIsDeterministic(t *testing.T) {
	type args struct {
		DesignFile  string `json:"designFile"`
		ProductType string `json:"productType"`
	}

	a, err := Key("designUpload", args{DesignFile: "d.png", ProductType: "tshirt"})
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if a != `designUpload:{"designFile":"d.png","productType":"tshirt"}` {
		t.Fatalf("key = %s", a)
	}

	m1, _ := Key("op", map[string]string{"b": "2", "a": "1"})
	m2, _ := Key("op", map[string]string{"a": "1", "b": "2"})
	if m1 != m2 {
		t.Fatalf("map keys not stable: %s vs %s", m1, m2)
	}

	other, _ := Key("modelProcessing", args{DesignFile: "d.png", ProductType: "tshirt"})
	if other == a {
		t.Fatal("operation must be part of the key")
	}

	if _, err := Key("bad", make(chan int)); err == nil {
		t.Fatal("expected error for unencodable args")
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	if err := store.Set(ctx, "k", json.RawMessage(`{"success":true}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	now = now.Add(time.Hour)
	entry, ok, _ := store.Get(ctx, "k")
	if !ok {
		t.Fatal("entry exactly at expiry should still be valid")
	}
	if string(entry.Data) != `{"success":true}` {
		t.Fatalf("data = %s", entry.Data)
	}

	now = now.Add(time.Millisecond)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("expired entry returned")
	}
	if store.Len() != 0 {
		t.Fatalf("expired entry not removed on read, len = %d", store.Len())
	}
}

func TestMemoryDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(0)
	_ = store.Set(ctx, "a", json.RawMessage(`1`))
	_ = store.Set(ctx, "b", json.RawMessage(`2`))

	_ = store.Delete(ctx, "a")
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatal("deleted entry returned")
	}
	_ = store.Clear(ctx)
	if store.Len() != 0 {
		t.Fatalf("len after Clear = %d", store.Len())
	}
}

func TestMemoryCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(0)
	data := json.RawMessage(`"abc"`)
	_ = store.Set(ctx, "k", data)
	data[1] = 'x'

	entry, _, _ := store.Get(ctx, "k")
	if string(entry.Data) != `"abc"` {
		t.Fatalf("stored data aliased caller buffer: %s", entry.Data)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				_ = store.Set(ctx, key, json.RawMessage(`true`))
				_, _, _ = store.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	if store.Len() != 16 {
		t.Fatalf("len = %d, want 16", store.Len())
	}
}

// Runs against a real server when REDIS_TEST_URL is set.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()

	store, err := DialRedis(ctx, url, "test:"+uuid.NewString()+":", time.Minute)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer store.Close()
	defer store.Clear(ctx)

	if err := store.Set(ctx, "designUpload:x", json.RawMessage(`{"success":true}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	entry, ok, err := store.Get(ctx, "designUpload:x")
	if err != nil || !ok || string(entry.Data) != `{"success":true}` {
		t.Fatalf("Get = %s, %v, %v", entry.Data, ok, err)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, ok, _ := store.Get(ctx, "designUpload:x"); ok {
		t.Fatal("stale entry returned")
	}
	store.now = time.Now

	_ = store.Set(ctx, "a", json.RawMessage(`1`))
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatal("entry survived Clear")
	}
}
