package internaldefs

import (
	"strings"
	"testing"
)

func TestDefinitionNamesUniqueAndPrefixed(t *testing.T) {
	seen := map[string]bool{AuditDroppedName: true}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "authstate_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q does not follow naming convention", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate metric name %q", def.Name)
		}
		seen[def.Name] = true
	}
	for _, def := range HistogramDefs {
		if !strings.HasSuffix(def.Name, "_seconds") {
			t.Fatalf("histogram %q should be in seconds", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate metric name %q", def.Name)
		}
		seen[def.Name] = true
	}
	if len(HistogramBoundSuffix) != len(HistogramUpperBounds)+1 {
		t.Fatalf("bucket suffixes %d, bounds %d", len(HistogramBoundSuffix), len(HistogramUpperBounds))
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 0, 2, 0, 0, 0, 0, 3, 99}))
	want := [8]uint64{1, 1, 3, 3, 3, 3, 3, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestApproximateSum(t *testing.T) {
	got := ApproximateSum([8]uint64{2, 0, 0, 0, 0, 0, 1, 1})
	want := 2*0.005 + 0.5 + 0.5
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
