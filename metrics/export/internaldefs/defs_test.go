package internaldefs

import (
	"strings"
	"testing"
)

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDefinitionsUnique(t *testing.T) {
	seen := map[string]bool{}
	ids := map[uint16]bool{}
	for _, def := range CounterDefs {
		if seen[def.Name] || ids[uint16(def.ID)] {
			t.Fatalf("duplicate counter definition %s", def.Name)
		}
		if !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %s lacks _total suffix", def.Name)
		}
		seen[def.Name] = true
		ids[uint16(def.ID)] = true
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatal("bucket bounds and suffixes disagree")
	}
}
