package analysis

import (
	"errors"
	"math"

	"github.com/oxriver/flowmodel/internal/series"
)

// minRegressionSamples is the smallest paired-sample count the published
// model may be fitted from. Below this the relation between the channels is
// too thin to trust for threshold conversion.
const minRegressionSamples = 100

var (
	// ErrInsufficientData is returned by FitRegression when fewer than 100
	// paired samples are available. Only the regression step aborts.
	ErrInsufficientData = errors.New("analysis: insufficient paired samples")

	// ErrDegenerateModel is returned when a model cannot be fitted or
	// inverted because the fitted line carries no slope.
	ErrDegenerateModel = errors.New("analysis: degenerate model")
)

// Regression is an ordinary-least-squares line between two paired channels.
type Regression struct {
	Slope       float64
	Intercept   float64
	RSquared    float64
	Correlation float64
	NSamples    int
}

// FitRegression fits y = slope·x + intercept over the paired samples using
// population-style sums.
func FitRegression(samples []series.Sample) (Regression, error) {
	n := len(samples)
	if n < minRegressionSamples {
		return Regression{}, ErrInsufficientData
	}

	var sumX, sumY float64
	for _, s := range samples {
		sumX += s.X
		sumY += s.Y
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, syy, sxy float64
	for _, s := range samples {
		dx := s.X - meanX
		dy := s.Y - meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if sxx == 0 {
		return Regression{}, ErrDegenerateModel
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	var ssRes float64
	for _, s := range samples {
		resid := s.Y - (slope*s.X + intercept)
		ssRes += resid * resid
	}

	rSquared := 0.0
	if syy > 0 {
		rSquared = 1 - ssRes/syy
	}

	correlation := 0.0
	if syy > 0 {
		// Population covariance over population standard deviations; the
		// n denominators cancel, leaving the product-moment form.
		correlation = sxy / math.Sqrt(sxx*syy)
	}

	return Regression{
		Slope:       slope,
		Intercept:   intercept,
		RSquared:    rSquared,
		Correlation: correlation,
		NSamples:    n,
	}, nil
}

// Predict evaluates the fitted line at x.
func (r Regression) Predict(x float64) float64 {
	return r.Slope*x + r.Intercept
}

// Invert solves slope·x + intercept = y for x, converting a threshold
// expressed in y units into x units.
func (r Regression) Invert(y float64) (float64, error) {
	if r.Slope == 0 {
		return 0, ErrDegenerateModel
	}
	return (y - r.Intercept) / r.Slope, nil
}

// olsFit is the shared least-squares kernel for pre-validated point sets:
// slope and intercept of y on x plus the R² of the fit. Callers guarantee at
// least two points with distinct x values.
func olsFit(xs, ys []float64) (slope, intercept, rSquared float64) {
	n := float64(len(xs))

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / n
	meanY := sumY / n

	var sxx, sxy, syy float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return 0, meanY, 0
	}

	slope = sxy / sxx
	intercept = meanY - slope*meanX

	var ssRes float64
	for i := range xs {
		resid := ys[i] - (slope*xs[i] + intercept)
		ssRes += resid * resid
	}
	if syy > 0 {
		rSquared = 1 - ssRes/syy
	}
	return slope, intercept, rSquared
}
