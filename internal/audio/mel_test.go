package audio

import (
	"math"
	"testing"
)

func TestMelHzRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 125, 440, 1000, 4000, 8000} {
		got := melToHz(hzToMel(hz))
		if math.Abs(got-hz) > 1e-6 {
			t.Errorf("melToHz(hzToMel(%f)) = %f", hz, got)
		}
	}
}

func TestMelScaleReferencePoints(t *testing.T) {
	// 1000 Hz is defined as 2595*log10(1+1000/700) mel ≈ 999.99 mel.
	if got := hzToMel(1000); math.Abs(got-999.99) > 0.1 {
		t.Errorf("hzToMel(1000) = %f, want ≈1000", got)
	}
	if got := hzToMel(0); got != 0 {
		t.Errorf("hzToMel(0) = %f, want 0", got)
	}
}

func TestMelFilterBank_Geometry(t *testing.T) {
	filters := melFilterBank(40, 512, 16000, 0, 8000)

	if len(filters) != 40 {
		t.Fatalf("expected 40 filters, got %d", len(filters))
	}

	maxBin := 512 / 2
	for i, f := range filters {
		if f.left > f.center || f.center > f.right {
			t.Errorf("filter %d boundaries out of order: %+v", i, f)
		}
		if f.left < 0 || f.right > maxBin {
			t.Errorf("filter %d exceeds spectrum bins [0,%d]: %+v", i, maxBin, f)
		}
	}

	// Consecutive filters share boundary bins: filter m's center is
	// filter m+1's left edge.
	for i := 0; i+1 < len(filters); i++ {
		if filters[i].center != filters[i+1].left {
			t.Errorf("filters %d/%d do not share a boundary: %+v vs %+v",
				i, i+1, filters[i], filters[i+1])
		}
	}

	// Filter centers are monotonically non-decreasing in frequency.
	for i := 0; i+1 < len(filters); i++ {
		if filters[i+1].center < filters[i].center {
			t.Errorf("filter centers not monotonic at %d", i)
		}
	}
}

func TestNormalize_Idempotence(t *testing.T) {
	m := MelFeatureMap{
		{-80, -40, -10},
		{-60, -20, 0},
	}

	once := Normalize(m)
	twice := Normalize(once)

	for i := range once {
		for j := range once[i] {
			if once[i][j] != twice[i][j] {
				t.Errorf("normalize not idempotent at [%d][%d]: %f vs %f",
					i, j, once[i][j], twice[i][j])
			}
			if once[i][j] < 0 || once[i][j] > 1 {
				t.Errorf("normalized value out of [0,1] at [%d][%d]: %f", i, j, once[i][j])
			}
		}
	}

	// Extremes map exactly to 0 and 1.
	if once[0][0] != 0 {
		t.Errorf("global min normalized to %f, want 0", once[0][0])
	}
	if once[1][2] != 1 {
		t.Errorf("global max normalized to %f, want 1", once[1][2])
	}
}

func TestNormalize_ConstantMapUnchanged(t *testing.T) {
	m := MelFeatureMap{
		{0.5, 0.5},
		{0.5, 0.5},
	}
	got := Normalize(m)
	for i := range m {
		for j := range m[i] {
			if got[i][j] != 0.5 {
				t.Errorf("constant map changed at [%d][%d]: %f", i, j, got[i][j])
			}
		}
	}
}

func TestNormalize_EmptyMap(t *testing.T) {
	if got := Normalize(MelFeatureMap{}); len(got) != 0 {
		t.Errorf("expected empty map, got %d rows", len(got))
	}
}
