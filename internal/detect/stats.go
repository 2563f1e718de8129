package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// olsFit regresses y on x with intercept: y = alpha + beta*x + e.
func olsFit(x, y []float64) (alpha, beta float64) {
	alpha, beta = stat.LinearRegression(x, y, nil, false)
	return alpha, beta
}

// residuals returns y - (alpha + beta*x).
func residuals(x, y []float64, alpha, beta float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = y[i] - alpha - beta*x[i]
	}
	return out
}

// adfStat runs a constant-only augmented Dickey-Fuller regression on e:
//
//	Δe_t = c + γ·e_{t-1} + ε_t
//
// and returns the t-statistic of γ. Values below the 5% critical value
// (about -2.86) reject a unit root, i.e. the residual is stationary.
func adfStat(e []float64) float64 {
	n := len(e) - 1
	if n < 10 {
		return 0
	}
	lag := make([]float64, n)
	diff := make([]float64, n)
	for t := 1; t < len(e); t++ {
		lag[t-1] = e[t-1]
		diff[t-1] = e[t] - e[t-1]
	}
	c, gamma := stat.LinearRegression(lag, diff, nil, false)

	// Standard error of the slope.
	var sse, sxx float64
	meanLag := stat.Mean(lag, nil)
	for i := 0; i < n; i++ {
		pred := c + gamma*lag[i]
		sse += (diff[i] - pred) * (diff[i] - pred)
		sxx += (lag[i] - meanLag) * (lag[i] - meanLag)
	}
	if sxx == 0 || n <= 2 {
		return 0
	}
	se := math.Sqrt(sse / float64(n-2) / sxx)
	if se == 0 {
		return 0
	}
	return gamma / se
}

// adfCritical5 is the approximate 5% critical value for the constant-only
// Dickey-Fuller distribution at the sample sizes the detector sees.
const adfCritical5 = -2.86

// rollingMeanStd computes mean and sample stddev over the trailing w points.
func rollingMeanStd(xs []float64, w int) (mu, sigma float64) {
	if w > len(xs) {
		w = len(xs)
	}
	tail := xs[len(xs)-w:]
	mu = stat.Mean(tail, nil)
	sigma = stat.StdDev(tail, nil)
	return mu, sigma
}

// halfLife estimates the mean-reversion half-life of a series from its AR(1)
// coefficient. Returns 0 when the series does not revert.
func halfLife(e []float64) float64 {
	if len(e) < 3 {
		return 0
	}
	x := e[:len(e)-1]
	y := e[1:]
	_, rho := stat.LinearRegression(x, y, nil, false)
	if rho <= 0 || rho >= 1 {
		return 0
	}
	return -math.Ln2 / math.Log(rho)
}

// sharpeRatio annualizes the Sharpe of per-sample returns given samples per
// year. Returns nil when fewer than minSamples observations exist.
func sharpeRatio(returns []float64, riskFree, samplesPerYear float64, minSamples int) *float64 {
	if len(returns) < minSamples {
		return nil
	}
	mu := stat.Mean(returns, nil)
	sd := stat.StdDev(returns, nil)
	if sd == 0 {
		return nil
	}
	perSampleRF := riskFree / samplesPerYear
	s := (mu - perSampleRF) / sd * math.Sqrt(samplesPerYear)
	return &s
}
