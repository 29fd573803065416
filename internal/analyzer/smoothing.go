package analyzer

// Smooth applies a centered moving average to wpm values. smoothness
// ranges 1-100: 1 returns the raw series unchanged, 100 applies the
// widest supported window. The window is adaptive to series length and
// always forced odd so the average is symmetric around each point.
func Smooth(wpmValues []float64, smoothness int) (smoothed []float64, xPositions []int) {
	n := len(wpmValues)
	if n == 0 || smoothness <= 1 {
		smoothed = append(smoothed, wpmValues...)
		xPositions = make([]int, n)
		for i := range xPositions {
			xPositions[i] = i + 1
		}
		return smoothed, xPositions
	}

	maxWindow := 5
	if v := int(0.20 * float64(n)); v > maxWindow {
		maxWindow = v
	}

	window := 1 + int(float64(smoothness-1)/99*float64(maxWindow-1))
	if window%2 == 0 {
		window++
	}

	half := window / 2
	smoothed = make([]float64, n)
	xPositions = make([]int, n)
	for i := 0; i < n; i++ {
		start := i - half
		if start < 0 {
			start = 0
		}
		end := i + half + 1
		if end > n {
			end = n
		}
		var sum float64
		for _, v := range wpmValues[start:end] {
			sum += v
		}
		smoothed[i] = sum / float64(end-start)
		xPositions[i] = i + 1
	}
	return smoothed, xPositions
}
