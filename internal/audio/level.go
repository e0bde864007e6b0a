package audio

import "math"

const maxSample = 32767

// MergeChunks concatenates chunks in order.
func MergeChunks(chunks [][]int16) []int16 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	merged := make([]int16, 0, total)
	for _, c := range chunks {
		merged = append(merged, c...)
	}
	return merged
}

// DurationSeconds is sampleCount / sampleRate.
func DurationSeconds(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(sampleRate)
}

// RMS returns the root-mean-square amplitude of samples in raw 16-bit units.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DetectActivity reports whether the RMS energy exceeds threshold.
// It is a cheap heuristic, not a speech detector.
func DetectActivity(samples []int16, threshold float64) bool {
	return RMS(samples) > threshold
}

// Normalize scales samples so the peak magnitude becomes targetLevel × 32767.
// Silent input is returned unchanged.
func Normalize(samples []int16, targetLevel float64) []int16 {
	peak := 0
	for _, s := range samples {
		abs := int(s)
		if abs < 0 {
			abs = -abs
		}
		peak = max(peak, abs)
	}
	if peak == 0 {
		return samples
	}

	factor := targetLevel * maxSample / float64(peak)
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * factor)
		out[i] = int16(max(math.MinInt16, min(math.MaxInt16, v)))
	}
	return out
}
