// Package analysis characterizes unrolled motions in the frequency domain.
//
//   - [PowerSpectrum]: one-sided magnitude spectrum of a uniformly sampled signal
//   - [DominantFrequency]: strongest non-DC component of a spectrum
//   - [SpectralArcLength]: smoothness of a speed profile (SPARC)
//
// # Smoothness
//
// A smooth point-to-point reach has a single-lobed speed profile whose spectrum
// decays quickly, giving an arc length close to that of a minimum-jerk reach.
// Oscillating or corrected motions score lower:
//
//	sparc, err := analysis.SpectralArcLength(speeds, dt, 10)
package analysis
