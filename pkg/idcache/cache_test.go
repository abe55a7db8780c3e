package idcache

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNextPlaceholder_StrictlyDecreasing(t *testing.T) {
	c := New()
	prev := int64(0)
	for i := 0; i < 5; i++ {
		id, err := strconv.ParseInt(c.NextPlaceholder(), 10, 64)
		if err != nil {
			t.Fatalf("expected numeric id, got %v", err)
		}
		if id >= prev {
			t.Fatalf("expected %d to be smaller than %d", id, prev)
		}
		prev = id
	}
	if got := c.LastPlaceholder(); got != "-5" {
		t.Fatalf("expected last placeholder -5, got %q", got)
	}
}

func TestNextPlaceholder_ConcurrentUnique(t *testing.T) {
	c := New()
	const workers = 64

	var wg sync.WaitGroup
	ids := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- c.NextPlaceholder()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, workers)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("placeholder %s allocated twice", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != workers {
		t.Fatalf("expected %d ids, got %d", workers, len(seen))
	}
}

func TestLastPlaceholder_Empty(t *testing.T) {
	if got := New().LastPlaceholder(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestSubstituteNames(t *testing.T) {
	c := New()
	c.Put("387517004", "paracetamol")
	c.Put("-1", "paracetamol 500 mg tablet")
	c.Put("", "ignored")
	c.Put("123", "")

	in := `SubClassOf(:-2 ObjectIntersectionOf(:-1 :774167006 DataHasValue(:1142135004 "500"^^xsd:decimal) :387517004))`
	want := `SubClassOf(:-2 ObjectIntersectionOf(:|paracetamol 500 mg tablet| :774167006 DataHasValue(:1142135004 "500"^^xsd:decimal) :|paracetamol|))`
	if got := c.SubstituteNames(in); got != want {
		t.Fatalf("unexpected substitution:\n got  %s\n want %s", got, want)
	}
	if _, ok := c.Name("123"); ok {
		t.Fatal("expected empty name not to be cached")
	}
}

func TestSubstituteNames_DoesNotMatchPrefixes(t *testing.T) {
	c := New()
	c.Put("1", "one")
	if got := c.SubstituteNames(":12 :1"); got != ":12 :|one|" {
		t.Fatalf("unexpected substitution %q", got)
	}
}

func TestRemember_RunsOncePerKey(t *testing.T) {
	c := New()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Remember("k", func() (any, error) {
				calls.Add(1)
				return "value", nil
			})
			if err != nil || v.(string) != "value" {
				t.Errorf("unexpected result %v %v", v, err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestRemember_DoesNotCacheErrors(t *testing.T) {
	c := New()
	boom := errors.New("boom")
	if _, err := c.Remember("k", func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	v, err := c.Remember("k", func() (any, error) { return 7, nil })
	if err != nil || v.(int) != 7 {
		t.Fatalf("expected retry to succeed, got %v %v", v, err)
	}
}
