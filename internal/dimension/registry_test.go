package dimension

import "testing"

func TestExpectedLayer(t *testing.T) {
	layer, ok := ExpectedLayer("incremental-task-stratification")
	if !ok || layer != LayerL2 {
		t.Errorf("ExpectedLayer(task-stratification) = (%v, %v), want (L2, true)", layer, ok)
	}

	layer, ok = ExpectedLayer("incremental-root-causes")
	if !ok || layer != LayerL3 {
		t.Errorf("ExpectedLayer(root-causes) = (%v, %v), want (L3, true)", layer, ok)
	}

	if _, ok := ExpectedLayer("not-a-dimension"); ok {
		t.Errorf("expected unsupported dimension to report ok=false")
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("incremental-compounding") {
		t.Errorf("expected incremental-compounding to be supported")
	}
	if IsSupported("incremental-unknown") {
		t.Errorf("expected incremental-unknown to be unsupported")
	}
}

func TestSortKeysUnknownLast(t *testing.T) {
	keys := []SortKey{
		{Dimension: "incremental-root-causes", Period: "p1"},
		{Dimension: "unknown-dim", Period: "p1"},
		{Dimension: "incremental-trigger-chains", Period: "p1"},
	}
	SortKeys(keys)
	if keys[0].Dimension != "incremental-trigger-chains" {
		t.Errorf("expected trigger-chains first, got %s", keys[0].Dimension)
	}
	if keys[len(keys)-1].Dimension != "unknown-dim" {
		t.Errorf("expected unknown dimension last, got %s", keys[len(keys)-1].Dimension)
	}
}

func TestNamesLength(t *testing.T) {
	if len(Names()) != 11 {
		t.Errorf("expected 11 registered dimensions, got %d", len(Names()))
	}
}
