package ident

import (
	"errors"
	"sync"
	"testing"
)

type tagAsset struct{}

func TestIdentifierWriteOnce(t *testing.T) {
	var id Identifier[tagAsset]
	if _, err := id.Get(); !errors.Is(err, ErrIDNotSet) {
		t.Fatalf("Get before Set: err = %v, want %v", err, ErrIDNotSet)
	}
	if err := id.Set(7); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := id.Set(8); !errors.Is(err, ErrIDAlreadySet) {
		t.Fatalf("second Set: err = %v, want %v", err, ErrIDAlreadySet)
	}
	got, err := id.Get()
	if err != nil || got != 7 {
		t.Fatalf("Get = %d, %v; want 7, nil", got, err)
	}
	if id.String() != "7" {
		t.Fatalf("String = %q, want %q", id.String(), "7")
	}
}

func TestCounterMonotonicUnderConcurrency(t *testing.T) {
	var c Counter
	const workers, per = 8, 500
	seen := make(chan InternalID, workers*per)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := InternalID(0)
			for range per {
				id := c.Next()
				if id <= prev {
					t.Errorf("id %d not greater than previous %d", id, prev)
				}
				prev = id
				seen <- id
			}
		}()
	}
	wg.Wait()
	close(seen)
	uniq := make(map[InternalID]struct{})
	for id := range seen {
		if _, dup := uniq[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		uniq[id] = struct{}{}
	}
	if len(uniq) != workers*per {
		t.Fatalf("unique ids = %d, want %d", len(uniq), workers*per)
	}
	if c.Last() != InternalID(workers*per) {
		t.Fatalf("Last = %d, want %d", c.Last(), workers*per)
	}
}

func TestInternalIDString(t *testing.T) {
	if got := InternalID(18446744073709551615).String(); got != "18446744073709551615" {
		t.Fatalf("String = %q", got)
	}
}
