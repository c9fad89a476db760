// Package stats wraps the gonum statistics routines used by the miners and
// the metric classifier. All functions are pure and guard the degenerate
// inputs (empty series, zero means, zero variance) that gonum leaves as NaN.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ChiSquareResult is a goodness-of-fit test against a uniform distribution.
type ChiSquareResult struct {
	Statistic        float64
	DegreesOfFreedom int
	PValue           float64
	Expected         []float64
	Total            int
}

// ChiSquareUniform tests observed bucket counts against a uniform expectation.
// An empty sample yields statistic 0 and p-value 1.
func ChiSquareUniform(observed []int) ChiSquareResult {
	k := len(observed)
	res := ChiSquareResult{DegreesOfFreedom: k - 1, Expected: make([]float64, k), PValue: 1}
	if k < 2 {
		return res
	}

	for _, o := range observed {
		res.Total += o
	}
	if res.Total == 0 {
		return res
	}

	exp := float64(res.Total) / float64(k)
	obs := make([]float64, k)
	for i, o := range observed {
		obs[i] = float64(o)
		res.Expected[i] = exp
	}
	res.Statistic = stat.ChiSquare(obs, res.Expected)
	res.PValue = clampProb(distuv.ChiSquared{K: float64(res.DegreesOfFreedom)}.Survival(res.Statistic))
	return res
}

// CramersV is the effect size of a goodness-of-fit chi-square, in [0,1].
func CramersV(chi2 float64, n, k int) float64 {
	if n <= 0 || k < 2 {
		return 0
	}
	v := math.Sqrt(chi2 / (float64(n) * float64(k-1)))
	return math.Min(1, math.Max(0, v))
}

// Summary describes a sample.
type Summary struct {
	N        int
	Mean     float64
	Median   float64
	StdDev   float64
	CV       float64
	Skewness float64
	Kurtosis float64
}

// Describe summarizes xs. Shape moments need at least 3 (skew) and 4
// (kurtosis) points and are 0 otherwise.
func Describe(xs []float64) Summary {
	s := Summary{N: len(xs)}
	if s.N == 0 {
		return s
	}
	s.Mean = stat.Mean(xs, nil)
	s.Median = Median(xs)
	if s.N > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	s.CV = CV(xs)
	if s.N >= 3 && s.StdDev > 0 {
		s.Skewness = finite(stat.Skew(xs, nil))
	}
	if s.N >= 4 && s.StdDev > 0 {
		s.Kurtosis = finite(stat.ExKurtosis(xs, nil))
	}
	return s
}

// Median returns the middle value (average of the two middles for even n).
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// CV is the coefficient of variation (sample stddev / mean). It is 0 for
// fewer than two points or a zero mean.
func CV(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if mean == 0 {
		return 0
	}
	return finite(math.Abs(std / mean))
}

// TrendResult is an OLS fit of y against x with a slope t-test.
type TrendResult struct {
	Slope     float64
	Intercept float64
	TStat     float64
	PValue    float64
}

// LinearTrend fits y = a + b*x and tests b != 0 with a two-sided t-test on
// n-2 degrees of freedom. Fewer than 3 points returns p-value 1.
func LinearTrend(xs, ys []float64) TrendResult {
	res := TrendResult{PValue: 1}
	n := len(xs)
	if n != len(ys) || n < 3 {
		return res
	}

	res.Intercept, res.Slope = stat.LinearRegression(xs, ys, nil, false)

	meanX := stat.Mean(xs, nil)
	var ssr, sxx float64
	for i := range xs {
		r := ys[i] - (res.Intercept + res.Slope*xs[i])
		ssr += r * r
		d := xs[i] - meanX
		sxx += d * d
	}
	if sxx == 0 {
		res.Slope = 0
		return res
	}

	se := math.Sqrt(ssr / float64(n-2) / sxx)
	if se == 0 {
		if res.Slope != 0 {
			res.TStat = math.Inf(sign(res.Slope))
			res.PValue = 0
		}
		return res
	}

	res.TStat = res.Slope / se
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	res.PValue = clampProb(2 * t.Survival(math.Abs(res.TStat)))
	return res
}

// Autocorrelation returns the sample autocorrelation at the given lag.
func Autocorrelation(xs []float64, lag int) float64 {
	n := len(xs)
	if lag <= 0 || n <= lag {
		return 0
	}
	mean := stat.Mean(xs, nil)
	var num, den float64
	for i := 0; i < n; i++ {
		d := xs[i] - mean
		den += d * d
		if i+lag < n {
			num += d * (xs[i+lag] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// TwoSidedScore maps a z-score to 2*Phi(|z|) - 1, in [0,1).
func TwoSidedScore(z float64) float64 {
	if math.IsNaN(z) {
		return 0
	}
	return clampProb(2*distuv.UnitNormal.CDF(math.Abs(z)) - 1)
}

// ZScore standardizes x against mean and std; zero std yields 0.
func ZScore(x, mean, std float64) float64 {
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (x - mean) / std
}

// PercentileRank is count(values <= v) / len(values); 0 for an empty population.
func PercentileRank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, x := range values {
		if x <= v {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

// NormalizedEntropy is Shannon entropy of the counts divided by log(k), in [0,1].
// A single category (or none) has entropy 0.
func NormalizedEntropy(counts []float64) float64 {
	var total float64
	k := 0
	for _, c := range counts {
		if c > 0 {
			total += c
			k++
		}
	}
	if k < 2 {
		return 0
	}
	p := make([]float64, 0, k)
	for _, c := range counts {
		if c > 0 {
			p = append(p, c/total)
		}
	}
	return clampProb(stat.Entropy(p) / math.Log(float64(len(counts))))
}

// Herfindahl is the sum of squared shares.
func Herfindahl(counts []float64) float64 {
	var total float64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		s := c / total
		h += s * s
	}
	return h
}

// TotalVariation is half the L1 distance between two normalized distributions.
// Vectors of different lengths are compared over the longer one with zeros.
func TotalVariation(a, b []float64) float64 {
	pa, pb := normalize(a), normalize(b)
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	var d float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		d += math.Abs(x - y)
	}
	return d / 2
}

func normalize(xs []float64) []float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	out := make([]float64, len(xs))
	if total == 0 {
		return out
	}
	for i, x := range xs {
		out[i] = x / total
	}
	return out
}

func clampProb(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
