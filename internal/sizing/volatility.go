package sizing

import "math"

// LogReturnVolatility is the sample standard deviation of log returns over
// the given price series, newest last. The second return is false when the
// series is too short to estimate from.
func LogReturnVolatility(prices []float64) (float64, bool) {
	if len(prices) < 3 {
		return 0, false
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}
	if len(returns) < 2 {
		return 0, false
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance), true
}
