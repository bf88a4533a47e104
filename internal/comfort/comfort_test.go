package comfort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

func TestCalculateComfortTemp(t *testing.T) {
	r, err := Calculate(NewInput(22.0, 20.0, 0.1))
	require.NoError(t, err)

	assert.Equal(t, 24.0, r.ComfortTemp)
	assert.Equal(t, 20.5, r.Low80)
	assert.Equal(t, 27.5, r.Up80)
	assert.Equal(t, 21.5, r.Low90)
	assert.Equal(t, 26.5, r.Up90)
	assert.True(t, r.Acceptable80)
	assert.True(t, r.Acceptable90)
}

func TestCalculateRunningMeanOutOfRange(t *testing.T) {
	_, err := Calculate(NewInput(22.0, 5.0, 0.1))
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "running_mean_temp", ve.Field)

	_, err = Calculate(NewInput(22.0, 40.0, 0.1))
	require.Error(t, err)
}

func TestCalculateNegativeVelocity(t *testing.T) {
	_, err := Calculate(NewInput(22.0, 20.0, -0.5))
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "air_velocity", ve.Field)
}

func TestCalculateVelocityCooling(t *testing.T) {
	// 28°C operative with rm=25 (comfort 25.275, up80 28.775). Still air is
	// acceptable; high air speed keeps it acceptable by cooling perception.
	still, err := Calculate(NewInput(28.0, 25.0, 0.05))
	require.NoError(t, err)
	assert.True(t, still.Acceptable80)

	// At 0.6 m/s the log adjustment adds ~0.93°C, pushing 28 past up80.
	breezy, err := Calculate(NewInput(28.2, 25.0, 0.6))
	require.NoError(t, err)
	assert.False(t, breezy.Acceptable80)
}

func TestCalculateVelocityInterpolation(t *testing.T) {
	// Between 0.1 and 0.2 m/s the adjustment interpolates linearly from
	// 0 to 0.6°C. At exactly 0.1 there is no adjustment.
	a, err := Calculate(NewInput(24.0, 20.0, 0.1))
	require.NoError(t, err)
	b, err := Calculate(NewInput(24.0, 20.0, 0.15))
	require.NoError(t, err)
	assert.Equal(t, a.ComfortTemp, b.ComfortTemp)
	// 24 + 0.3 = 24.3 is still inside 21.5-26.5, both acceptable.
	assert.True(t, a.Acceptable90)
	assert.True(t, b.Acceptable90)
}

func TestBoundsByCategory(t *testing.T) {
	r, err := Calculate(NewInput(22.0, 20.0, 0.1))
	require.NoError(t, err)

	low, high := r.Bounds(model.CategoryI)
	assert.Equal(t, 21.5, low)
	assert.Equal(t, 26.5, high)

	low, high = r.Bounds(model.CategoryII)
	assert.Equal(t, 20.5, low)
	assert.Equal(t, 27.5, high)
}

func TestFanVelocity(t *testing.T) {
	assert.Equal(t, 0.0, FanVelocity(model.FanOff))
	assert.Equal(t, 0.15, FanVelocity(model.FanLow))
	assert.Equal(t, 0.30, FanVelocity(model.FanMid))
	assert.Equal(t, 0.45, FanVelocity(model.FanHigh))
	assert.Equal(t, 0.60, FanVelocity(model.FanHighest))
}

func TestRunningMean(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	history := []model.TempSample{
		{Temp: 20.0, Taken: base},
		{Temp: 25.0, Taken: base.AddDate(0, 0, 1)},
	}
	rm, ok := RunningMean(history, DefaultAlpha)
	require.True(t, ok)
	assert.InDelta(t, 0.2*25.0+0.8*20.0, rm, 1e-9)
}

func TestRunningMeanUnordered(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ordered := []model.TempSample{
		{Temp: 18.0, Taken: base},
		{Temp: 22.0, Taken: base.AddDate(0, 0, 1)},
		{Temp: 26.0, Taken: base.AddDate(0, 0, 2)},
	}
	shuffled := []model.TempSample{ordered[2], ordered[0], ordered[1]}

	a, ok := RunningMean(ordered, DefaultAlpha)
	require.True(t, ok)
	b, ok := RunningMean(shuffled, DefaultAlpha)
	require.True(t, ok)
	assert.Equal(t, a, b)
}

func TestRunningMeanEmpty(t *testing.T) {
	_, ok := RunningMean(nil, DefaultAlpha)
	assert.False(t, ok)
}

func TestDailyMeans(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	history := []model.TempSample{
		{Temp: 18.0, Taken: base.Add(6 * time.Hour)},
		{Temp: 26.0, Taken: base.Add(14 * time.Hour)},
		{Temp: 20.0, Taken: base.AddDate(0, 0, 1).Add(12 * time.Hour)},
	}
	means := DailyMeans(history)
	require.Len(t, means, 2)
	assert.Equal(t, 22.0, means[0].Temp)
	assert.Equal(t, 20.0, means[1].Temp)
	assert.True(t, means[0].Taken.Before(means[1].Taken))
}

func TestHumidityAdjustment(t *testing.T) {
	assert.Equal(t, 0.0, HumidityAdjustment(45))
	assert.InDelta(t, 0.3, HumidityAdjustment(70), 1e-9)
	assert.InDelta(t, -0.2, HumidityAdjustment(20), 1e-9)
}
