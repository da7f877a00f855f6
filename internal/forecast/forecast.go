// Package forecast smooths daily check-in counts and produces a
// one-step-ahead forecast with accuracy metrics. It is a pure
// computation: no storage, no clock, no shared state. Sparse history
// degrades to NaN sentinels rather than errors so dashboards always
// render.
package forecast

import (
	"fmt"
	"math"
	"time"
)

// Algorithms.
const (
	AlgoMovingAverage = "ma"
	AlgoHoltWinters   = "hw"
)

// Parameter bounds. Out-of-range inputs are clamped, never rejected.
const (
	MinWindow = 1
	MaxWindow = 30
	MinSeason = 2
	MaxSeason = 14
	MinFactor = 0.01
	MaxFactor = 0.99

	DefaultWindow = 7
	DefaultSeason = 7
	DefaultAlpha  = 0.3
	DefaultBeta   = 0.1
	DefaultGamma  = 0.3
)

// DateLayout is the calendar-day format used throughout the series.
const DateLayout = "2006-01-02"

// Point is one day of the input series.
type Point struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Options selects the algorithm and its parameters. Zero values take
// the documented defaults.
type Options struct {
	Window int
	Algo   string
	Season int
	Alpha  float64
	Beta   float64
	Gamma  float64
}

func (o Options) normalized() Options {
	if o.Window == 0 {
		o.Window = DefaultWindow
	}
	if o.Season == 0 {
		o.Season = DefaultSeason
	}
	if o.Alpha == 0 {
		o.Alpha = DefaultAlpha
	}
	if o.Beta == 0 {
		o.Beta = DefaultBeta
	}
	if o.Gamma == 0 {
		o.Gamma = DefaultGamma
	}
	o.Window = clampInt(o.Window, MinWindow, MaxWindow)
	o.Season = clampInt(o.Season, MinSeason, MaxSeason)
	o.Alpha = clampFloat(o.Alpha, MinFactor, MaxFactor)
	o.Beta = clampFloat(o.Beta, MinFactor, MaxFactor)
	o.Gamma = clampFloat(o.Gamma, MinFactor, MaxFactor)
	if o.Algo != AlgoHoltWinters {
		o.Algo = AlgoMovingAverage
	}
	return o
}

// Result is the ephemeral forecast output. Undefined numeric values
// are NaN; Confidence is "" when MAPE is undefined; the interval
// bounds are only meaningful when HasInterval is true.
type Result struct {
	Window       int
	Algo         string
	Smoothed     []float64
	Forecast     float64
	MAE          float64
	RMSE         float64
	MAPE         float64
	Lower        int
	Upper        int
	HasInterval  bool
	Confidence   string
	FallbackUsed bool
	Explanation  string
}

// Run smooths the series and forecasts the next day. The series must
// be chronological ascending with no gaps; see BuildSeries.
func Run(series []Point, opts Options) Result {
	opts = opts.normalized()
	counts := make([]float64, len(series))
	for i, p := range series {
		counts[i] = float64(p.Count)
	}

	res := Result{Window: opts.Window, Algo: opts.Algo}
	switch {
	case opts.Algo == AlgoHoltWinters && len(counts) >= 2*opts.Season:
		res.Smoothed, res.Forecast = holtWinters(counts, opts.Season, opts.Alpha, opts.Beta, opts.Gamma)
	case opts.Algo == AlgoHoltWinters:
		// Not enough history for two full seasons.
		res.FallbackUsed = true
		res.Algo = AlgoMovingAverage
		res.Smoothed, res.Forecast = movingAverage(counts, opts.Window)
	default:
		res.Smoothed, res.Forecast = movingAverage(counts, opts.Window)
	}

	res.MAE, res.RMSE, res.MAPE = accuracy(counts, res.Smoothed)
	res.Lower, res.Upper, res.HasInterval = interval(counts, res.Smoothed, res.Forecast)
	res.Confidence = confidence(res.MAPE)
	res.Explanation = explain(res, opts, len(counts))
	return res
}

// BuildSeries produces a gap-free daily series of the last days
// calendar days ending today, zero-filling days absent from counts.
func BuildSeries(counts map[string]int, days int, today time.Time) []Point {
	if days < 1 {
		days = 1
	}
	series := make([]Point, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(DateLayout)
		series = append(series, Point{Date: day, Count: counts[day]})
	}
	return series
}

// movingAverage returns the trailing-mean series and the one-step
// forecast. Indexes with fewer than window trailing points are NaN.
func movingAverage(x []float64, window int) ([]float64, float64) {
	smoothed := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= window {
			sum -= x[i-window]
		}
		if i >= window-1 {
			smoothed[i] = round2(sum / float64(window))
		} else {
			smoothed[i] = math.NaN()
		}
	}
	if len(x) < window {
		return smoothed, math.NaN()
	}
	var tail float64
	for _, v := range x[len(x)-window:] {
		tail += v
	}
	return smoothed, round2(tail / float64(window))
}

// holtWinters runs additive triple exponential smoothing. Fitted
// values before one full season are NaN, matching the moving-average
// burn-in. Callers guarantee len(x) >= 2*m.
func holtWinters(x []float64, m int, alpha, beta, gamma float64) ([]float64, float64) {
	n := len(x)

	level := mean(x[:m])
	trend := (mean(x[m:2*m]) - mean(x[:m])) / float64(m)
	seasonal := make([]float64, n)
	for i := 0; i < m; i++ {
		seasonal[i] = x[i] - level
	}

	fitted := make([]float64, n)
	for i := range fitted {
		fitted[i] = math.NaN()
	}

	for t := 1; t < n; t++ {
		prevSeason := seasonal[t%m]
		if t >= m {
			prevSeason = seasonal[t-m]
			fitted[t] = round2(level + trend + prevSeason)
		}
		prevLevel := level
		level = alpha*(x[t]-prevSeason) + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
		seasonal[t] = gamma*(x[t]-level) + (1-gamma)*prevSeason
	}

	return fitted, round2(level + trend + seasonal[n-m])
}

// accuracy computes MAE, RMSE and MAPE over the pairs where the
// smoothed value is defined. MAPE additionally skips zero actuals and
// is NaN when no pair qualifies.
func accuracy(actual, predicted []float64) (mae, rmse, mape float64) {
	var absSum, sqSum float64
	var n int
	var pctSum float64
	var pctN int
	for i := range actual {
		if math.IsNaN(predicted[i]) {
			continue
		}
		diff := actual[i] - predicted[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		n++
		if actual[i] != 0 {
			pctSum += math.Abs(diff) / actual[i]
			pctN++
		}
	}
	if n == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	mae = round2(absSum / float64(n))
	rmse = round2(math.Sqrt(sqSum / float64(n)))
	if pctN == 0 {
		return mae, rmse, math.NaN()
	}
	return mae, rmse, round2(pctSum / float64(pctN) * 100)
}

// interval derives the 95% band around the forecast from the residual
// spread (sample standard deviation). The lower bound never goes
// below zero: a negative visitor count is meaningless.
func interval(actual, predicted []float64, forecast float64) (lower, upper int, ok bool) {
	if math.IsNaN(forecast) {
		return 0, 0, false
	}
	var residuals []float64
	for i := range actual {
		if !math.IsNaN(predicted[i]) {
			residuals = append(residuals, actual[i]-predicted[i])
		}
	}
	if len(residuals) == 0 {
		return 0, 0, false
	}
	m := mean(residuals)
	var sqSum float64
	for _, r := range residuals {
		d := r - m
		sqSum += d * d
	}
	sd := math.Sqrt(sqSum / float64(maxInt(1, len(residuals)-1)))
	margin := 1.96 * sd
	lower = int(math.Round(math.Max(0, forecast-margin)))
	upper = int(math.Round(forecast + margin))
	return lower, upper, true
}

func confidence(mape float64) string {
	switch {
	case math.IsNaN(mape):
		return ""
	case mape <= 10:
		return "high"
	case mape <= 20:
		return "medium"
	default:
		return "low"
	}
}

func explain(res Result, opts Options, n int) string {
	switch {
	case res.FallbackUsed:
		return fmt.Sprintf("insufficient history for Holt-Winters (%d days, need %d); fell back to a %d-day moving average", n, 2*opts.Season, res.Window)
	case res.Algo == AlgoHoltWinters:
		return fmt.Sprintf("Holt-Winters additive smoothing over %d days (season %d, alpha %.2f, beta %.2f, gamma %.2f)", n, opts.Season, opts.Alpha, opts.Beta, opts.Gamma)
	default:
		return fmt.Sprintf("%d-day trailing moving average over %d days of check-ins", res.Window, n)
	}
}

func mean(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
