package bootstrap

import (
	"strings"
	"testing"
)

func TestParseSeedsSkipsCommentsAndBlanks(t *testing.T) {
	input := "# comment\n\n" +
		"951C88B7E75C867418ACDB5D273821372BB5BD652740BC3C6A6C288C438E1A30 example.com 33445\n"
	seeds, err := parseSeeds(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parseSeeds: %v", err)
	}
	if len(seeds) != 1 {
		t.Fatalf("expected 1 seed, got %d", len(seeds))
	}
	if seeds[0].Host != "example.com" || seeds[0].Port != 33445 {
		t.Errorf("unexpected seed: %+v", seeds[0])
	}
}

func TestParseSeedsRejectsBadKey(t *testing.T) {
	if _, err := parseSeeds(strings.NewReader("nothex example.com 33445\n")); err == nil {
		t.Error("expected error for non-hex public key")
	}
}

func TestParseSeedsRejectsBadFieldCount(t *testing.T) {
	if _, err := parseSeeds(strings.NewReader("onlyonefield\n")); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestParseSeedsRejectsEmptyList(t *testing.T) {
	if _, err := parseSeeds(strings.NewReader("# only comments\n")); err == nil {
		t.Error("expected error for empty seed list")
	}
}

func TestDefaultSeedsLoad(t *testing.T) {
	seeds, err := DefaultSeeds()
	if err != nil {
		t.Fatalf("DefaultSeeds: %v", err)
	}
	if len(seeds) == 0 {
		t.Error("expected at least one embedded seed")
	}
}

func TestRoundCounterInProgress(t *testing.T) {
	r := &RoundCounter{}
	for i := 0; i < MaxBootstrapTimes; i++ {
		if !r.InProgress() {
			t.Fatalf("expected in progress at count %d", i)
		}
		r.Increment()
	}
	if r.InProgress() {
		t.Error("expected bootstrap phase to end after MaxBootstrapTimes rounds")
	}
}
