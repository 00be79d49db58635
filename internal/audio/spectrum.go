package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// hannWindow returns an n-point Hann window. Frames are multiplied by it
// elementwise before the transform to reduce spectral leakage.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// spectrum writes the magnitude spectrum of one windowed frame into dst,
// which must have length len(frame)/2+1, as must coeffs. The transform sits
// behind this narrow boundary so the mel-filter and log-scaling logic never
// sees how the spectrum is produced.
func spectrum(fft *fourier.FFT, windowed []float64, coeffs []complex128, dst []float64) {
	coeffs = fft.Coefficients(coeffs, windowed)
	for i, c := range coeffs {
		re := real(c)
		im := imag(c)
		dst[i] = math.Sqrt(re*re + im*im)
	}
}

// directSpectrum computes the same magnitude spectrum by direct discrete
// Fourier summation, O(n²). It is the reference implementation the FFT path
// is verified against in tests.
func directSpectrum(windowed []float64) []float64 {
	n := len(windowed)
	bins := n/2 + 1
	out := make([]float64, bins)
	for k := 0; k < bins; k++ {
		var re, im float64
		for t, s := range windowed {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			re += s * math.Cos(angle)
			im += s * math.Sin(angle)
		}
		out[k] = math.Sqrt(re*re + im*im)
	}
	return out
}
