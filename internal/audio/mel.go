package audio

import "math"

// logFloor keeps log compression defined for silent bins.
const logFloor = 1e-10

// hzToMel converts frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// melToHz is the inverse of hzToMel.
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilter is one triangular filter expressed as three spectrum bin
// boundaries. Overlapping filters share boundary bins.
type melFilter struct {
	left   int
	center int
	right  int
}

// melFilterBank builds nMels triangular filters spaced linearly in
// mel-frequency between fMin and fMax, mapped onto fftSize/2+1 spectrum bins.
func melFilterBank(nMels, fftSize, sampleRate int, fMin, fMax float64) []melFilter {
	melMin := hzToMel(fMin)
	melMax := hzToMel(fMax)

	// nMels+2 points: each filter spans three consecutive points.
	points := make([]int, nMels+2)
	maxBin := fftSize / 2
	for i := range points {
		mel := melMin + (melMax-melMin)*float64(i)/float64(nMels+1)
		bin := int(float64(fftSize+1) * melToHz(mel) / float64(sampleRate))
		if bin > maxBin {
			bin = maxBin
		}
		points[i] = bin
	}

	filters := make([]melFilter, nMels)
	for m := range filters {
		filters[m] = melFilter{
			left:   points[m],
			center: points[m+1],
			right:  points[m+2],
		}
	}
	return filters
}

// apply projects a power spectrum onto the filter with linear rising and
// falling ramps, then log-compresses the result to decibels.
func (f melFilter) apply(power []float64) float64 {
	var sum float64
	for k := f.left; k < f.center; k++ {
		w := float64(k-f.left) / float64(f.center-f.left)
		sum += w * power[k]
	}
	for k := f.center; k <= f.right; k++ {
		var w float64
		if f.right == f.center {
			w = 1
		} else {
			w = float64(f.right-k) / float64(f.right-f.center)
		}
		sum += w * power[k]
	}
	return 10 * math.Log10(math.Max(sum, logFloor))
}

// Normalize rescales the map to [0,1] using its global min and max. A
// constant map (silence) is returned unchanged, which makes Normalize
// idempotent in both cases.
func Normalize(m MelFeatureMap) MelFeatureMap {
	if len(m) == 0 {
		return m
	}

	minV := m[0][0]
	maxV := m[0][0]
	for _, row := range m {
		for _, v := range row {
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}
	if maxV == minV {
		return m
	}

	scale := maxV - minV
	out := make(MelFeatureMap, len(m))
	for i, row := range m {
		out[i] = make([]float32, len(row))
		for j, v := range row {
			out[i][j] = (v - minV) / scale
		}
	}
	return out
}
