package dedup_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"draftdrop/internal/dedup"
)

func TestClaimTwiceReturnsTrueThenFalse(t *testing.T) {
	r := dedup.New()
	if !r.Claim("design1.png") {
		t.Fatal("expected first claim to succeed")
	}
	if r.Claim("design1.png") {
		t.Fatal("expected second claim to fail")
	}
}

func TestSeededFilenameCannotBeClaimed(t *testing.T) {
	r := dedup.New()
	r.Seed("done.png", "busy.png", "")
	if r.Claim("done.png") {
		t.Fatal("expected seeded name to be rejected")
	}
	if !r.Claim("fresh.png") {
		t.Fatal("expected unseeded name to be claimable")
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", r.Len())
	}
}

func TestClaimIsCaseSensitive(t *testing.T) {
	r := dedup.New()
	r.Claim("A.png")
	if !r.Claim("a.png") {
		t.Fatal("expected different case to be a distinct filename")
	}
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	r := dedup.New()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Claim("race.png") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
	if !r.Contains("race.png") {
		t.Fatal("expected registry to contain race.png")
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := dedup.New(), dedup.New()
	a.Claim("x.png")
	if !b.Claim("x.png") {
		t.Fatal("expected fresh registry to be independent")
	}
}
