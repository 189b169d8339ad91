package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() ProjectionConfig {
	cfg := DefaultProjectionConfig()
	cfg.StartDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.Principal = 1_000_000
	cfg.DenominatorMode = DenominatorPrincipal
	cfg.SharesHeld = 100
	cfg.EndDay = 365
	return cfg
}

func TestProjectionConfig_Validate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestProjectionConfig_Validate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ProjectionConfig)
		field  string
	}{
		{"missing start date", func(c *ProjectionConfig) { c.StartDate = time.Time{} }, "startDate"},
		{"zero principal", func(c *ProjectionConfig) { c.Principal = 0 }, "principal"},
		{"missing denominator", func(c *ProjectionConfig) { c.DenominatorMode = "" }, "denominator"},
		{"unknown denominator", func(c *ProjectionConfig) { c.DenominatorMode = "float" }, "denominator"},
		{"supply mode without supply", func(c *ProjectionConfig) { c.DenominatorMode = DenominatorSupply }, "tokenSupply"},
		{"zero shares", func(c *ProjectionConfig) { c.SharesHeld = 0 }, "sharesHeld"},
		{"curve intensity above one", func(c *ProjectionConfig) { c.CurveIntensity = 1.5 }, "curveIntensity"},
		{"curve intensity zero", func(c *ProjectionConfig) { c.CurveIntensity = 0 }, "curveIntensity"},
		{"negative dampening", func(c *ProjectionConfig) { c.Oscillation.DampeningRate = -0.1 }, "dampeningRate"},
		{"end before start", func(c *ProjectionConfig) { c.StartDay = 10; c.EndDay = 5 }, "endDay"},
		{"horizon too long", func(c *ProjectionConfig) { c.EndDay = 1_000_000_000 }, "endDay"},
		{"horizon one past the cap", func(c *ProjectionConfig) { c.StartDay = -5; c.EndDay = MaxSeriesDays - 5 }, "endDay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestProjectionConfig_Validate_HorizonAtCap(t *testing.T) {
	cfg := validConfig()
	cfg.StartDay = -5
	cfg.EndDay = MaxSeriesDays - 6
	assert.NoError(t, cfg.Validate())
}

func TestProjectionConfig_Denominator(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 1_000_000.0, cfg.Denominator())

	cfg.DenominatorMode = DenominatorSupply
	cfg.TokenSupply = 250_000
	assert.Equal(t, 250_000.0, cfg.Denominator())
}

func TestProjectionConfig_DayIndex(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, 0, cfg.DayIndex(cfg.StartDate))
	assert.Equal(t, 31, cfg.DayIndex(time.Date(2024, 2, 1, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, -1, cfg.DayIndex(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))

	// Day is taken in the timestamp's own zone.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, 1, cfg.DayIndex(time.Date(2024, 1, 2, 22, 0, 0, 0, est)))

	cfg.Epoch = time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 31, cfg.DayIndex(cfg.StartDate))
	assert.Equal(t, cfg.StartDate, cfg.DateOf(31))
}

func TestInsufficientDataError_Is(t *testing.T) {
	err := error(&InsufficientDataError{Points: 1, Required: 2})
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.NotErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "have 1 usable points")
}
