package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxriver/flowmodel/internal/series"
)

func linearSamples(n int, slope, intercept float64) []series.Sample {
	out := make([]series.Sample, n)
	for i := range out {
		x := float64(i) * 0.5
		out[i] = series.Sample{X: x, Y: slope*x + intercept}
	}
	return out
}

func TestFitRegression(t *testing.T) {
	t.Run("recovers a noiseless line exactly", func(t *testing.T) {
		model, err := FitRegression(linearSamples(120, 2, 1))

		require.NoError(t, err)
		assert.InDelta(t, 2.0, model.Slope, 1e-9)
		assert.InDelta(t, 1.0, model.Intercept, 1e-9)
		assert.InDelta(t, 1.0, model.RSquared, 1e-9)
		assert.InDelta(t, 1.0, model.Correlation, 1e-9)
		assert.Equal(t, 120, model.NSamples)
	})

	t.Run("negative relation", func(t *testing.T) {
		model, err := FitRegression(linearSamples(150, -0.5, 3))

		require.NoError(t, err)
		assert.InDelta(t, -0.5, model.Slope, 1e-9)
		assert.InDelta(t, -1.0, model.Correlation, 1e-9)
	})

	t.Run("too few samples", func(t *testing.T) {
		_, err := FitRegression(linearSamples(99, 2, 1))

		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("constant x is degenerate", func(t *testing.T) {
		samples := make([]series.Sample, 100)
		for i := range samples {
			samples[i] = series.Sample{X: 4.2, Y: float64(i)}
		}

		_, err := FitRegression(samples)

		assert.ErrorIs(t, err, ErrDegenerateModel)
	})
}

func TestRegressionInvert(t *testing.T) {
	model := Regression{Slope: 2, Intercept: 1}

	t.Run("solves for x", func(t *testing.T) {
		x, err := model.Invert(5)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, x, 1e-9)
	})

	t.Run("zero slope", func(t *testing.T) {
		flat := Regression{Slope: 0, Intercept: 1}
		_, err := flat.Invert(5)
		assert.ErrorIs(t, err, ErrDegenerateModel)
	})

	t.Run("round-trips with Predict", func(t *testing.T) {
		x, err := model.Invert(model.Predict(3.7))
		require.NoError(t, err)
		assert.InDelta(t, 3.7, x, 1e-9)
	})
}
